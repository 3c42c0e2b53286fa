package search

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/searchlite/searchlite/internal/index"
	"github.com/searchlite/searchlite/pkg/config"
	pkgerrors "github.com/searchlite/searchlite/pkg/errors"
)

func testSearchConfig() config.SearchConfig {
	return config.SearchConfig{
		DefaultTopK:     10,
		MaxTopK:         100,
		MaxQueryLength:  200,
		RankTimeout:     500 * time.Millisecond,
		ExpansionCap:    3,
		ExpansionWeight: 0.4,
		PhraseBonus:     0.1,
		Accelerator:     "exact",
		MaxCandidates:   5000,
	}
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	b := index.NewBuilder(config.IndexConfig{BuildWorkers: 2, TermShards: 4})
	docs := []index.RawDocument{
		{URL: "https://example.com/cats", Title: "Cats", Text: "cats are wonderful pets and cats purr", CrawledAt: time.Now().UTC()},
		{URL: "https://example.com/dogs", Title: "Dogs", Text: "dogs are loyal pets", CrawledAt: time.Now().UTC()},
		{URL: "https://example.com/cars", Title: "Cars", Text: "cars need fuel and regular service", CrawledAt: time.Now().UTC()},
	}
	for _, d := range docs {
		if err := b.Add(d); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	snap, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	e := NewEngine(testSearchConfig(), nil)
	e.Install(snap)
	return e
}

func TestSearchRanksMatchingDocuments(t *testing.T) {
	e := testEngine(t)
	res, err := e.Search(context.Background(), "cats", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(res.Hits))
	}
	hit := res.Hits[0]
	if hit.URL != "https://example.com/cats" {
		t.Errorf("top hit = %q, want the cats document", hit.URL)
	}
	if hit.Score <= 0 {
		t.Errorf("score = %v, want > 0", hit.Score)
	}
	found := false
	for _, term := range hit.MatchedTerms {
		if term == "cat" {
			found = true
		}
	}
	if !found {
		t.Errorf("matched terms %v missing 'cat'", hit.MatchedTerms)
	}
	if res.Truncated {
		t.Error("unexpected truncation")
	}
}

func TestSearchSpellCorrectsUnknownTerm(t *testing.T) {
	e := testEngine(t)
	res, err := e.Search(context.Background(), "catz", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Corrections) != 1 {
		t.Fatalf("got %d corrections, want 1: %+v", len(res.Corrections), res.Corrections)
	}
	c := res.Corrections[0]
	if c.Input != "catz" || c.Suggestion != "cat" {
		t.Errorf("correction = %+v, want catz -> cat", c)
	}
	if c.Confidence <= 0 || c.Confidence > 1 {
		t.Errorf("confidence = %v, want (0,1]", c.Confidence)
	}
	if len(res.Hits) == 0 {
		t.Error("expected hits after correction")
	}
}

func TestSearchUnmatchedTermsReported(t *testing.T) {
	e := testEngine(t)
	res, err := e.Search(context.Background(), "cats zzzzqqqqzzzz", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.UnmatchedTerms) != 1 || res.UnmatchedTerms[0] != "zzzzqqqqzzzz" {
		t.Errorf("unmatched = %v, want [zzzzqqqqzzzz]", res.UnmatchedTerms)
	}
	if len(res.Hits) == 0 {
		t.Error("the matching term should still produce hits")
	}
}

func TestSearchNoMatches(t *testing.T) {
	e := testEngine(t)
	res, err := e.Search(context.Background(), "zzzzqqqqzzzz", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Hits) != 0 {
		t.Errorf("got %d hits, want 0", len(res.Hits))
	}
}

func TestSearchInvalidInput(t *testing.T) {
	e := testEngine(t)
	tests := []struct {
		name  string
		query string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"over limit", strings.Repeat("x", 201)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Search(context.Background(), tt.query, 5)
			if !errors.Is(err, pkgerrors.ErrInvalidInput) {
				t.Errorf("got %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestSearchWithoutSnapshot(t *testing.T) {
	e := NewEngine(testSearchConfig(), nil)
	if e.Ready() {
		t.Fatal("engine should not be ready before install")
	}
	_, err := e.Search(context.Background(), "cats", 5)
	if !errors.Is(err, pkgerrors.ErrIndexUnavailable) {
		t.Errorf("got %v, want ErrIndexUnavailable", err)
	}
	if _, err := e.Stats(); !errors.Is(err, pkgerrors.ErrIndexUnavailable) {
		t.Errorf("Stats: got %v, want ErrIndexUnavailable", err)
	}
}

func TestSearchTopKClamped(t *testing.T) {
	e := testEngine(t)
	res, err := e.Search(context.Background(), "pets", 100000)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Hits) > testSearchConfig().MaxTopK {
		t.Errorf("got %d hits, want at most MaxTopK", len(res.Hits))
	}
}

func TestSuggestByPrefix(t *testing.T) {
	e := testEngine(t)
	suggestions, err := e.Suggest(context.Background(), "ca", 10)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(suggestions) < 2 {
		t.Fatalf("got %v, want at least 'car' and 'cat'", suggestions)
	}
	for i := 1; i < len(suggestions); i++ {
		if suggestions[i-1].DocFreq < suggestions[i].DocFreq {
			t.Errorf("suggestions not ordered by doc freq: %v", suggestions)
		}
	}
}

func TestSuggestFallsBackToCorrection(t *testing.T) {
	e := testEngine(t)
	suggestions, err := e.Suggest(context.Background(), "dogz", 10)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(suggestions) != 1 || suggestions[0].Term != "dog" {
		t.Errorf("got %v, want the corrected term 'dog'", suggestions)
	}
}

func TestSpellcheck(t *testing.T) {
	e := testEngine(t)

	res, err := e.Spellcheck(context.Background(), "cats purr")
	if err != nil {
		t.Fatalf("Spellcheck: %v", err)
	}
	if res.HasCorrections || res.Confidence != 1 {
		t.Errorf("in-vocabulary query: got %+v, want no corrections", res)
	}
	if res.CorrectedQuery != "cat purr" {
		t.Errorf("corrected query = %q, want the normalized terms", res.CorrectedQuery)
	}

	res, err = e.Spellcheck(context.Background(), "catz purr")
	if err != nil {
		t.Fatalf("Spellcheck: %v", err)
	}
	if !res.HasCorrections || len(res.Corrections) != 1 {
		t.Fatalf("misspelling: got %+v, want one correction", res)
	}
	if res.Corrections[0].Input != "catz" || res.Corrections[0].Suggestion != "cat" {
		t.Errorf("correction = %+v, want catz -> cat", res.Corrections[0])
	}
	if res.CorrectedQuery != "cat purr" {
		t.Errorf("corrected query = %q, want 'cat purr'", res.CorrectedQuery)
	}
	if res.Confidence <= 0 || res.Confidence >= 1 {
		t.Errorf("confidence = %v, want (0,1)", res.Confidence)
	}

	res, err = e.Spellcheck(context.Background(), "zzzzqqqqzzzz")
	if err != nil {
		t.Fatalf("Spellcheck: %v", err)
	}
	if res.HasCorrections {
		t.Errorf("hopeless input: got %+v, want no corrections", res)
	}
	if res.CorrectedQuery != "zzzzqqqqzzzz" {
		t.Errorf("uncorrectable term should pass through, got %q", res.CorrectedQuery)
	}
}

func TestExpandWorksWithoutSnapshot(t *testing.T) {
	e := NewEngine(testSearchConfig(), nil)
	res, err := e.Expand(context.Background(), "fast search")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if !res.HasExpansion || len(res.NewTerms) == 0 {
		t.Fatalf("expected expansion terms, got %+v", res)
	}
	originals := 0
	for _, term := range res.Terms {
		if term.Original {
			originals++
		}
	}
	if originals != 2 {
		t.Errorf("got %d originals in %v, want 2", originals, res.Terms)
	}
	if !strings.HasPrefix(res.ExpandedQuery, "fast search") {
		t.Errorf("expanded query %q should start with the originals", res.ExpandedQuery)
	}
}

func TestSearchPhraseAdjacencyBoost(t *testing.T) {
	b := index.NewBuilder(config.IndexConfig{BuildWorkers: 1, TermShards: 2})
	// Doc 0 carries one more distinct term than doc 1, so on cosine alone
	// doc 1 wins; only the adjacency bonus puts doc 0 on top.
	docs := []index.RawDocument{
		{URL: "u0", Title: "a", Text: "loyal pets live here today"},
		{URL: "u1", Title: "b", Text: "pets roam loyal spaces"},
		{URL: "u2", Title: "c", Text: "unrelated filler text"},
	}
	for _, d := range docs {
		if err := b.Add(d); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	snap, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	e := NewEngine(testSearchConfig(), nil)
	e.Install(snap)

	res, err := e.Search(context.Background(), "loyal pets", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Hits) < 2 {
		t.Fatalf("got %d hits, want 2", len(res.Hits))
	}
	if res.Hits[0].URL != "u0" {
		t.Errorf("top hit = %q, want u0 where the terms are adjacent", res.Hits[0].URL)
	}
}
