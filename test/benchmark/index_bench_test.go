// Package benchmark contains Go benchmarks for the index builder and the
// search pipeline, measuring throughput and allocation behaviour.
package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/searchlite/searchlite/internal/index"
	"github.com/searchlite/searchlite/pkg/config"
)

func corpus(n int) []index.RawDocument {
	topics := []string{
		"search engines rank documents by relevance using term weights",
		"databases store structured records with transactional guarantees",
		"caches reduce latency for repeated identical requests",
		"crawlers fetch pages and extract their textual content",
		"vectors capture the weighted term profile of each document",
	}
	docs := make([]index.RawDocument, n)
	for i := range docs {
		docs[i] = index.RawDocument{
			URL:   fmt.Sprintf("https://example.com/doc-%d", i),
			Title: fmt.Sprintf("Document %d", i),
			Text:  topics[i%len(topics)] + fmt.Sprintf(" variant %d", i),
		}
	}
	return docs
}

func buildCfg(workers int) config.IndexConfig {
	return config.IndexConfig{BuildWorkers: workers, TermShards: 16}
}

// BenchmarkBuilderAdd measures per-record intake throughput.
func BenchmarkBuilderAdd(b *testing.B) {
	builder := index.NewBuilder(buildCfg(1))
	doc := index.RawDocument{
		URL:   "https://example.com/bench",
		Title: "benchmark title",
		Text:  "this is a benchmark document with several terms for measuring intake performance",
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = builder.Add(doc)
	}
}

// BenchmarkBuild measures full snapshot build throughput at various corpus
// sizes and worker counts.
func BenchmarkBuild(b *testing.B) {
	for _, size := range []int{100, 1000, 5000} {
		for _, workers := range []int{1, 4} {
			b.Run(fmt.Sprintf("docs_%d_workers_%d", size, workers), func(b *testing.B) {
				builder := index.NewBuilder(buildCfg(workers))
				for _, d := range corpus(size) {
					if err := builder.Add(d); err != nil {
						b.Fatal(err)
					}
				}
				b.ReportAllocs()
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					snap, err := builder.Build(context.Background())
					if err != nil {
						b.Fatal(err)
					}
					_ = snap
				}
			})
		}
	}
}

// BenchmarkSnapshotPostingsLookup measures single-term posting retrieval
// over a 10 000 document snapshot.
func BenchmarkSnapshotPostingsLookup(b *testing.B) {
	builder := index.NewBuilder(buildCfg(4))
	for _, d := range corpus(10000) {
		if err := builder.Add(d); err != nil {
			b.Fatal(err)
		}
	}
	snap, err := builder.Build(context.Background())
	if err != nil {
		b.Fatal(err)
	}
	id, ok := snap.LookupTerm("search")
	if !ok {
		b.Fatal("term 'search' missing from benchmark corpus")
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pl := snap.PostingsFor(id)
		_ = pl
	}
}
