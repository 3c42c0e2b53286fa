package index

import (
	"math"
	"sort"
)

// SparseVector is a TF-IDF weight vector stored as parallel slices sorted
// by ascending term ID. Document and query vectors are L2-normalized, so
// their dot product is directly the cosine similarity.
type SparseVector struct {
	Terms   []uint32  `json:"t"`
	Weights []float64 `json:"w"`
}

// Weight returns the vector's weight for the given term ID, or 0 when the
// term is absent.
func (v SparseVector) Weight(termID uint32) float64 {
	i := sort.Search(len(v.Terms), func(i int) bool { return v.Terms[i] >= termID })
	if i < len(v.Terms) && v.Terms[i] == termID {
		return v.Weights[i]
	}
	return 0
}

// Dot computes the sparse dot product of two vectors as a merge over their
// sorted term IDs; only the term intersection is visited.
func (v SparseVector) Dot(other SparseVector) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(v.Terms) && j < len(other.Terms) {
		switch {
		case v.Terms[i] < other.Terms[j]:
			i++
		case v.Terms[i] > other.Terms[j]:
			j++
		default:
			sum += v.Weights[i] * other.Weights[j]
			i++
			j++
		}
	}
	return sum
}

// Norm returns the Euclidean norm of the vector.
func (v SparseVector) Norm() float64 {
	var sum float64
	for _, w := range v.Weights {
		sum += w * w
	}
	return math.Sqrt(sum)
}

// Normalize divides every component by the vector's norm, in place. A zero
// vector is left untouched; similarity against it is 0 by definition.
func (v SparseVector) Normalize() {
	norm := v.Norm()
	if norm == 0 {
		return
	}
	for i := range v.Weights {
		v.Weights[i] /= norm
	}
}

// IDF is the pinned inverse-document-frequency formula: ln(N/df), with df
// guarded at 1. A term present in every document gets 0: it carries no
// distinguishing signal.
func IDF(totalDocs, docFreq int) float64 {
	if docFreq < 1 {
		docFreq = 1
	}
	if totalDocs < 1 {
		return 0
	}
	return math.Log(float64(totalDocs) / float64(docFreq))
}
