// Package spell suggests corrections for query terms that are absent from
// the index vocabulary. Candidates come from length buckets around the
// input's length, so the Damerau-Levenshtein computation never scans the
// whole vocabulary, and the distance itself is capped at MaxDistance.
package spell

import (
	"math"

	"github.com/searchlite/searchlite/internal/index"
)

// MaxDistance is the edit-distance bound for suggestions. Transpositions
// count as a single edit.
const MaxDistance = 2

// Suggestion is a single spelling correction with its confidence in [0,1].
type Suggestion struct {
	Term       string  `json:"term"`
	Distance   int     `json:"distance"`
	DocFreq    int     `json:"doc_freq"`
	Confidence float64 `json:"confidence"`
}

type candidate struct {
	term    string
	docFreq int
}

// Corrector holds a length-bucketed view of one snapshot's vocabulary.
// Build one per snapshot; it is read-only afterwards.
type Corrector struct {
	byLength map[int][]candidate
}

// NewCorrector indexes the snapshot's vocabulary by term length.
func NewCorrector(snap *index.Snapshot) *Corrector {
	byLength := make(map[int][]candidate)
	for id, term := range snap.Terms {
		byLength[len(term)] = append(byLength[len(term)], candidate{
			term:    term,
			docFreq: snap.DocFreqs[id],
		})
	}
	return &Corrector{byLength: byLength}
}

// Correct returns the best vocabulary term within MaxDistance of the
// input, or ok=false when none qualifies. Candidates are ranked by edit
// distance, then document frequency (more common terms win), then
// lexicographic order, so the result is deterministic.
func (c *Corrector) Correct(term string) (Suggestion, bool) {
	if term == "" {
		return Suggestion{}, false
	}
	best := Suggestion{Distance: MaxDistance + 1}
	for length := len(term) - MaxDistance; length <= len(term)+MaxDistance; length++ {
		if length < 1 {
			continue
		}
		for _, cand := range c.byLength[length] {
			dist := damerauLevenshtein(term, cand.term, MaxDistance)
			if dist > MaxDistance {
				continue
			}
			if better(dist, cand, best) {
				best = Suggestion{
					Term:       cand.term,
					Distance:   dist,
					DocFreq:    cand.docFreq,
					Confidence: confidence(term, cand.term, dist),
				}
			}
		}
	}
	if best.Distance > MaxDistance {
		return Suggestion{}, false
	}
	return best, true
}

func better(dist int, cand candidate, best Suggestion) bool {
	if dist != best.Distance {
		return dist < best.Distance
	}
	if cand.docFreq != best.DocFreq {
		return cand.docFreq > best.DocFreq
	}
	return cand.term < best.Term
}

func confidence(input, suggestion string, dist int) float64 {
	maxLen := len(input)
	if len(suggestion) > maxLen {
		maxLen = len(suggestion)
	}
	if maxLen == 0 {
		return 0
	}
	conf := 1 - float64(dist)/float64(maxLen)
	return math.Max(0, math.Min(1, conf))
}

// damerauLevenshtein computes the optimal-string-alignment distance
// between a and b, counting adjacent transpositions as one edit. Values
// above max are reported as max+1; rows whose minimum already exceeds max
// cut the computation short.
func damerauLevenshtein(a, b string, max int) int {
	la, lb := len(a), len(b)
	diff := la - lb
	if diff < 0 {
		diff = -diff
	}
	if diff > max {
		return max + 1
	}
	prev2 := make([]int, lb+1)
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			d := min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
			if i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] {
				if t := prev2[j-2] + 1; t < d {
					d = t
				}
			}
			curr[j] = d
			if d < rowMin {
				rowMin = d
			}
		}
		if rowMin > max {
			return max + 1
		}
		prev2, prev, curr = prev, curr, prev2
	}
	if prev[lb] > max {
		return max + 1
	}
	return prev[lb]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
