package index

import (
	"math"
	"testing"
)

func TestSparseVectorWeight(t *testing.T) {
	v := SparseVector{Terms: []uint32{1, 4, 9}, Weights: []float64{0.5, 1.5, 2.0}}
	tests := []struct {
		termID uint32
		want   float64
	}{
		{1, 0.5},
		{4, 1.5},
		{9, 2.0},
		{0, 0},
		{5, 0},
		{100, 0},
	}
	for _, tt := range tests {
		if got := v.Weight(tt.termID); got != tt.want {
			t.Errorf("Weight(%d) = %v, want %v", tt.termID, got, tt.want)
		}
	}
}

func TestSparseVectorDot(t *testing.T) {
	a := SparseVector{Terms: []uint32{1, 3, 5}, Weights: []float64{1, 2, 3}}
	b := SparseVector{Terms: []uint32{2, 3, 5}, Weights: []float64{10, 4, 5}}
	if got := a.Dot(b); got != 2*4+3*5 {
		t.Errorf("Dot = %v, want 23", got)
	}
	disjoint := SparseVector{Terms: []uint32{0, 2}, Weights: []float64{9, 9}}
	if got := a.Dot(disjoint); got != 0 {
		t.Errorf("Dot of disjoint vectors = %v, want 0", got)
	}
}

func TestNormalize(t *testing.T) {
	v := SparseVector{Terms: []uint32{0, 1}, Weights: []float64{3, 4}}
	v.Normalize()
	if got := v.Norm(); math.Abs(got-1) > 1e-12 {
		t.Errorf("norm after Normalize = %v, want 1", got)
	}
	// Cosine of a normalized vector with itself is 1.
	if got := v.Dot(v); math.Abs(got-1) > 1e-12 {
		t.Errorf("self similarity = %v, want 1", got)
	}
}

func TestNormalizeZeroVector(t *testing.T) {
	v := SparseVector{}
	v.Normalize()
	if v.Norm() != 0 {
		t.Errorf("zero vector norm = %v, want 0", v.Norm())
	}
}

func TestIDF(t *testing.T) {
	tests := []struct {
		name      string
		totalDocs int
		docFreq   int
		want      float64
	}{
		{"common term", 100, 10, math.Log(10)},
		{"ubiquitous term has no signal", 50, 50, 0},
		{"zero df guarded", 10, 0, math.Log(10)},
		{"empty corpus", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IDF(tt.totalDocs, tt.docFreq); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("IDF(%d, %d) = %v, want %v", tt.totalDocs, tt.docFreq, got, tt.want)
			}
		})
	}
}
