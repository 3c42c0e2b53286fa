package rank

import (
	"context"
	"math/bits"
	"sort"

	farmhash "github.com/leemcloughlin/gofarmhash"

	"github.com/searchlite/searchlite/internal/index"
)

// SimHashScorer prefilters large candidate sets with 64-bit random
// hyperplane signatures before exact rescoring. Each term ID hashes to a
// fixed 64-bit sign pattern; a vector's signature bit b is the sign of
// the weighted sum of the pattern bits b across its terms, so vectors
// with small angles get small Hamming distances. When the candidate set
// fits within maxCandidates the prefilter is skipped entirely and the
// result is exact.
type SimHashScorer struct {
	exact         *ExactScorer
	maxCandidates int
	signatures    []uint64
}

// NewSimHashScorer builds per-document signatures for snap. The build is
// linear in the total number of vector components.
func NewSimHashScorer(snap *index.Snapshot, phraseBonus float64, maxCandidates int) *SimHashScorer {
	if maxCandidates <= 0 {
		maxCandidates = 5000
	}
	signatures := make([]uint64, len(snap.Vectors))
	for i, v := range snap.Vectors {
		signatures[i] = signature(v)
	}
	return &SimHashScorer{
		exact:         NewExactScorer(snap, phraseBonus),
		maxCandidates: maxCandidates,
		signatures:    signatures,
	}
}

func (s *SimHashScorer) Score(ctx context.Context, q Query) Result {
	candidates := s.exact.collect(q)
	if len(candidates) <= s.maxCandidates {
		return s.exact.rescore(ctx, q, candidates)
	}

	querySig := signature(q.Vector)
	type ranked struct {
		docID uint32
		dist  int
	}
	byDist := make([]ranked, len(candidates))
	for i, docID := range candidates {
		byDist[i] = ranked{docID, bits.OnesCount64(s.signatures[docID] ^ querySig)}
	}
	sort.Slice(byDist, func(i, j int) bool {
		if byDist[i].dist != byDist[j].dist {
			return byDist[i].dist < byDist[j].dist
		}
		return byDist[i].docID < byDist[j].docID
	})

	kept := make([]uint32, s.maxCandidates)
	for i := range kept {
		kept[i] = byDist[i].docID
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i] < kept[j] })

	res := s.exact.rescore(ctx, q, kept)
	res.Candidates = len(candidates)
	return res
}

// signature folds a sparse vector onto 64 random hyperplanes.
func signature(v index.SparseVector) uint64 {
	var sums [64]float64
	for i, termID := range v.Terms {
		pattern := termPattern(termID)
		w := v.Weights[i]
		for b := 0; b < 64; b++ {
			if pattern&(1<<uint(b)) != 0 {
				sums[b] += w
			} else {
				sums[b] -= w
			}
		}
	}
	var sig uint64
	for b := 0; b < 64; b++ {
		if sums[b] > 0 {
			sig |= 1 << uint(b)
		}
	}
	return sig
}

// termPattern is the fixed 64-bit sign pattern for one term ID, derived
// from two independently seeded hashes of the ID.
func termPattern(termID uint32) uint64 {
	var key [4]byte
	key[0] = byte(termID)
	key[1] = byte(termID >> 8)
	key[2] = byte(termID >> 16)
	key[3] = byte(termID >> 24)
	hi := farmhash.Hash32WithSeed(key[:], 0x9747b28c)
	lo := farmhash.Hash32WithSeed(key[:], 0x85ebca6b)
	return uint64(hi)<<32 | uint64(lo)
}
