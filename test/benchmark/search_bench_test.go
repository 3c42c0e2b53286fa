package benchmark

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/searchlite/searchlite/internal/index"
	"github.com/searchlite/searchlite/internal/search"
	"github.com/searchlite/searchlite/pkg/config"
)

func searchEngine(b *testing.B, docs int, accelerator string) *search.Engine {
	b.Helper()
	builder := index.NewBuilder(buildCfg(4))
	for _, d := range corpus(docs) {
		if err := builder.Add(d); err != nil {
			b.Fatal(err)
		}
	}
	snap, err := builder.Build(context.Background())
	if err != nil {
		b.Fatal(err)
	}
	engine := search.NewEngine(config.SearchConfig{
		DefaultTopK:     10,
		MaxTopK:         100,
		MaxQueryLength:  200,
		RankTimeout:     time.Second,
		ExpansionCap:    3,
		ExpansionWeight: 0.4,
		PhraseBonus:     0.1,
		Accelerator:     accelerator,
		MaxCandidates:   1000,
	}, nil)
	engine.Install(snap)
	return engine
}

// BenchmarkSearch measures the full query pipeline at various corpus sizes.
func BenchmarkSearch(b *testing.B) {
	for _, size := range []int{1000, 10000} {
		b.Run(fmt.Sprintf("docs_%d", size), func(b *testing.B) {
			engine := searchEngine(b, size, "exact")
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				res, err := engine.Search(context.Background(), "search engines relevance", 10)
				if err != nil {
					b.Fatal(err)
				}
				_ = res
			}
		})
	}
}

// BenchmarkSearchParallel measures concurrent query throughput against one
// shared snapshot.
func BenchmarkSearchParallel(b *testing.B) {
	engine := searchEngine(b, 10000, "exact")
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			res, err := engine.Search(context.Background(), "documents relevance", 10)
			if err != nil {
				b.Fatal(err)
			}
			_ = res
		}
	})
}

// BenchmarkSearchAccelerators compares the exact scorer against the simhash
// prefilter on a corpus large enough for the prefilter to engage.
func BenchmarkSearchAccelerators(b *testing.B) {
	for _, accel := range []string{"exact", "simhash"} {
		b.Run(accel, func(b *testing.B) {
			engine := searchEngine(b, 10000, accel)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				res, err := engine.Search(context.Background(), "weighted term profile", 10)
				if err != nil {
					b.Fatal(err)
				}
				_ = res
			}
		})
	}
}

// BenchmarkSuggest measures prefix autocomplete latency.
func BenchmarkSuggest(b *testing.B) {
	engine := searchEngine(b, 10000, "exact")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		suggestions, err := engine.Suggest(context.Background(), "se", 10)
		if err != nil {
			b.Fatal(err)
		}
		_ = suggestions
	}
}

// BenchmarkSpellcheck measures correction latency for a term at edit
// distance one from the vocabulary.
func BenchmarkSpellcheck(b *testing.B) {
	engine := searchEngine(b, 10000, "exact")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res, err := engine.Spellcheck(context.Background(), "serch")
		if err != nil {
			b.Fatal(err)
		}
		_ = res
	}
}
