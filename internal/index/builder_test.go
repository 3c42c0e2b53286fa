package index

import (
	"context"
	"errors"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/searchlite/searchlite/pkg/config"
	pkgerrors "github.com/searchlite/searchlite/pkg/errors"
)

func testBuilderConfig() config.IndexConfig {
	return config.IndexConfig{BuildWorkers: 2, TermShards: 4}
}

func buildSnapshot(t *testing.T, docs []RawDocument) *Snapshot {
	t.Helper()
	b := NewBuilder(testBuilderConfig())
	for _, d := range docs {
		if err := b.Add(d); err != nil {
			t.Fatalf("Add(%q): %v", d.URL, err)
		}
	}
	snap, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return snap
}

func sampleCorpus() []RawDocument {
	now := time.Now().UTC()
	return []RawDocument{
		{URL: "https://example.com/cats", Title: "Cats", Text: "cats are wonderful pets and cats purr loudly", CrawledAt: now},
		{URL: "https://example.com/dogs", Title: "Dogs", Text: "dogs are loyal pets", CrawledAt: now},
		{URL: "https://example.com/cars", Title: "Cars", Text: "cars need fuel and regular service", CrawledAt: now},
	}
}

func TestBuildDocFreqMatchesPostings(t *testing.T) {
	snap := buildSnapshot(t, sampleCorpus())
	if snap.N() != 3 {
		t.Fatalf("document count: got %d, want 3", snap.N())
	}
	for id := range snap.Terms {
		if snap.DocFreqs[id] != len(snap.Postings[id]) {
			t.Errorf("term %q: doc freq %d but %d postings",
				snap.Terms[id], snap.DocFreqs[id], len(snap.Postings[id]))
		}
		if len(snap.Postings[id]) == 0 {
			t.Errorf("term %q has an empty posting list", snap.Terms[id])
		}
	}
}

func TestBuildPostingsOrdered(t *testing.T) {
	snap := buildSnapshot(t, sampleCorpus())
	for id, pl := range snap.Postings {
		for i := 1; i < len(pl); i++ {
			if pl[i-1].DocID >= pl[i].DocID {
				t.Errorf("term %q: postings out of order at %d", snap.Terms[id], i)
			}
		}
		for _, p := range pl {
			if p.TermFreq != len(p.Positions) {
				t.Errorf("term %q doc %d: freq %d but %d positions",
					snap.Terms[id], p.DocID, p.TermFreq, len(p.Positions))
			}
			if !sort.IntsAreSorted(p.Positions) {
				t.Errorf("term %q doc %d: positions not sorted", snap.Terms[id], p.DocID)
			}
		}
	}
}

func TestBuildVocabularySorted(t *testing.T) {
	snap := buildSnapshot(t, sampleCorpus())
	if !sort.StringsAreSorted(snap.Terms) {
		t.Errorf("vocabulary not sorted: %v", snap.Terms)
	}
	for i, term := range snap.Terms {
		id, ok := snap.LookupTerm(term)
		if !ok || id != uint32(i) {
			t.Errorf("LookupTerm(%q) = (%d, %v), want (%d, true)", term, id, ok, i)
		}
	}
}

func TestBuildVectorsNormalized(t *testing.T) {
	snap := buildSnapshot(t, sampleCorpus())
	for docID, v := range snap.Vectors {
		norm := v.Norm()
		if norm != 0 && math.Abs(norm-1) > 1e-9 {
			t.Errorf("doc %d vector norm = %v, want 1 or 0", docID, norm)
		}
	}
	// "cat" appears only in doc 0, so its weight there must be positive.
	id, ok := snap.LookupTerm("cat")
	if !ok {
		t.Fatal("expected 'cat' in vocabulary")
	}
	if w := snap.Vectors[0].Weight(id); w <= 0 {
		t.Errorf("weight of 'cat' in doc 0 = %v, want > 0", w)
	}
	if w := snap.Vectors[1].Weight(id); w != 0 {
		t.Errorf("weight of 'cat' in doc 1 = %v, want 0", w)
	}
}

func TestBuildDeterministic(t *testing.T) {
	// Parallel workers and map iteration must not leak into the output.
	a := buildSnapshot(t, sampleCorpus())
	b := buildSnapshot(t, sampleCorpus())
	if len(a.Terms) != len(b.Terms) {
		t.Fatalf("vocabulary sizes differ: %d vs %d", len(a.Terms), len(b.Terms))
	}
	for i := range a.Terms {
		if a.Terms[i] != b.Terms[i] {
			t.Errorf("term %d differs: %q vs %q", i, a.Terms[i], b.Terms[i])
		}
		if len(a.Postings[i]) != len(b.Postings[i]) {
			t.Errorf("term %q posting lengths differ", a.Terms[i])
		}
	}
}

func TestBuildEmptyCorpus(t *testing.T) {
	snap := buildSnapshot(t, nil)
	if snap.N() != 0 || len(snap.Terms) != 0 {
		t.Errorf("empty build: got %d docs, %d terms", snap.N(), len(snap.Terms))
	}
}

func TestAddRejectsMalformedRecords(t *testing.T) {
	b := NewBuilder(testBuilderConfig())
	bad := []RawDocument{
		{URL: "", Title: "No URL", Text: "text"},
		{URL: "https://example.com/empty"},
	}
	for _, d := range bad {
		err := b.Add(d)
		if !errors.Is(err, pkgerrors.ErrInvalidInput) {
			t.Errorf("Add(%+v): got %v, want ErrInvalidInput", d, err)
		}
	}
	if got := b.Skipped(); got != len(bad) {
		t.Errorf("Skipped = %d, want %d", got, len(bad))
	}
	if got := b.Len(); got != 0 {
		t.Errorf("Len = %d, want 0", got)
	}

	snap, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if snap.SkippedInputs != len(bad) {
		t.Errorf("SkippedInputs = %d, want %d", snap.SkippedInputs, len(bad))
	}
}

func TestBuildZeroTokenDocument(t *testing.T) {
	// A document whose text is all stop-words still gets metadata and an
	// empty vector, and must not derail the rest of the build.
	docs := append(sampleCorpus(), RawDocument{
		URL:   "https://example.com/stopwords",
		Title: "the",
		Text:  "the and of is",
	})
	snap := buildSnapshot(t, docs)
	if snap.N() != 4 {
		t.Fatalf("document count: got %d, want 4", snap.N())
	}
	last := snap.Docs[3]
	if last.NormalizedLength != 0 {
		t.Errorf("normalized length = %d, want 0", last.NormalizedLength)
	}
	if len(snap.Vectors[3].Terms) != 0 {
		t.Errorf("expected empty vector, got %v", snap.Vectors[3])
	}
}

func TestHolderInstall(t *testing.T) {
	var h Holder
	if h.Current() != nil {
		t.Fatal("expected nil before first install")
	}
	snap := buildSnapshot(t, sampleCorpus())
	h.Install(snap)
	if h.Current() != snap {
		t.Error("Current did not return installed snapshot")
	}
}
