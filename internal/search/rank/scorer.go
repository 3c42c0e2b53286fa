// Package rank scores candidate documents against a prepared query and
// returns the top-K by cosine similarity plus a phrase-adjacency bonus.
// Two scorers implement the same interface: an exact one that scores the
// full candidate set, and a simhash-prefiltered one for large corpora.
package rank

import (
	"context"
	"sort"

	"github.com/searchlite/searchlite/internal/index"
)

// checkEvery is how many candidates are scored between deadline checks.
const checkEvery = 256

// PhrasePair is a pair of query terms that were adjacent in the original
// query, before expansion. Delta is the positional gap between them in
// the pre-removal token stream; a document matches the pair when term A
// occurs at some position p and term B at p+Delta.
type PhrasePair struct {
	A, B  uint32
	Delta int
}

// Query is a fully prepared query: a normalized TF-IDF vector over the
// snapshot's term IDs, the adjacency pairs for the phrase bonus, and the
// number of results wanted.
type Query struct {
	Vector index.SparseVector
	Pairs  []PhrasePair
	TopK   int
}

// ScoredDoc is one ranked result.
type ScoredDoc struct {
	DocID uint32
	Score float64
}

// Result is the outcome of scoring. Truncated is set when the deadline
// expired before every candidate was scored; the documents returned are
// then the best of those actually visited.
type Result struct {
	Docs       []ScoredDoc
	Candidates int
	Truncated  bool
}

// Scorer ranks a prepared query against one snapshot. Implementations
// are built per snapshot and must be safe for concurrent use.
type Scorer interface {
	Score(ctx context.Context, q Query) Result
}

// ExactScorer scores every candidate document. Candidates are the union
// of the posting lists of the query's nonzero-weight terms, so documents
// sharing no term with the query are never visited.
type ExactScorer struct {
	snap        *index.Snapshot
	phraseBonus float64
}

// NewExactScorer creates an exact scorer over snap.
func NewExactScorer(snap *index.Snapshot, phraseBonus float64) *ExactScorer {
	return &ExactScorer{snap: snap, phraseBonus: phraseBonus}
}

func (s *ExactScorer) Score(ctx context.Context, q Query) Result {
	candidates := s.collect(q)
	return s.rescore(ctx, q, candidates)
}

// collect returns the sorted union of doc IDs appearing in any query
// term's posting list.
func (s *ExactScorer) collect(q Query) []uint32 {
	seen := make(map[uint32]struct{})
	for i, termID := range q.Vector.Terms {
		if q.Vector.Weights[i] == 0 {
			continue
		}
		for _, p := range s.snap.PostingsFor(termID) {
			seen[p.DocID] = struct{}{}
		}
	}
	candidates := make([]uint32, 0, len(seen))
	for docID := range seen {
		candidates = append(candidates, docID)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })
	return candidates
}

// rescore computes the exact score for each candidate, keeping the top K
// in a bounded heap. Shared with the simhash scorer, which hands in a
// prefiltered candidate set.
func (s *ExactScorer) rescore(ctx context.Context, q Query, candidates []uint32) Result {
	res := Result{Candidates: len(candidates)}
	if q.TopK <= 0 || len(candidates) == 0 {
		return res
	}
	heap := newTopK(q.TopK)
	for i, docID := range candidates {
		if i%checkEvery == 0 && ctx.Err() != nil {
			res.Truncated = true
			break
		}
		score := s.snap.Vectors[docID].Dot(q.Vector)
		if score <= 0 {
			continue
		}
		score += s.phraseBonus * float64(s.phraseMatches(docID, q.Pairs))
		heap.offer(ScoredDoc{DocID: docID, Score: score})
	}
	res.Docs = heap.ranked()
	return res
}

// phraseMatches counts the adjacency pairs the document satisfies: pair
// (A, B, delta) matches when A occurs at a position p and B at p+delta.
// Each pair counts at most once.
func (s *ExactScorer) phraseMatches(docID uint32, pairs []PhrasePair) int {
	matched := 0
	for _, pair := range pairs {
		posA := positionsIn(s.snap.PostingsFor(pair.A), docID)
		if len(posA) == 0 {
			continue
		}
		posB := positionsIn(s.snap.PostingsFor(pair.B), docID)
		if len(posB) == 0 {
			continue
		}
		for _, p := range posA {
			if containsPosition(posB, p+pair.Delta) {
				matched++
				break
			}
		}
	}
	return matched
}

// positionsIn returns the term's positions within docID, or nil when the
// document is absent from the posting list. Lists are ordered by doc ID,
// so the lookup is a binary search.
func positionsIn(pl index.PostingList, docID uint32) []int {
	i := sort.Search(len(pl), func(i int) bool { return pl[i].DocID >= docID })
	if i < len(pl) && pl[i].DocID == docID {
		return pl[i].Positions
	}
	return nil
}

func containsPosition(positions []int, want int) bool {
	i := sort.SearchInts(positions, want)
	return i < len(positions) && positions[i] == want
}
