package index

import (
	"sort"
	"sync/atomic"
	"time"
)

// Snapshot is one complete, consistent, immutable build of the index.
// All fields are read-only after construction; the Holder swaps whole
// snapshots atomically, so in-flight queries keep the one they started
// with.
type Snapshot struct {
	Docs []Document
	// Terms maps term ID to term string; IDs are assigned in
	// lexicographic order at build time.
	Terms    []string
	DocFreqs []int
	Postings []PostingList
	Vectors  []SparseVector
	BuiltAt  time.Time
	// SkippedInputs counts malformed records dropped during the build.
	SkippedInputs int

	termIDs map[string]uint32
}

// NewSnapshot finalises a snapshot by building the term lookup table.
// Callers must not mutate any slice afterwards.
func NewSnapshot(docs []Document, terms []string, docFreqs []int, postings []PostingList, vectors []SparseVector, builtAt time.Time, skipped int) *Snapshot {
	ids := make(map[string]uint32, len(terms))
	for i, t := range terms {
		ids[t] = uint32(i)
	}
	return &Snapshot{
		Docs:          docs,
		Terms:         terms,
		DocFreqs:      docFreqs,
		Postings:      postings,
		Vectors:       vectors,
		BuiltAt:       builtAt,
		SkippedInputs: skipped,
		termIDs:       ids,
	}
}

// N returns the number of indexed documents.
func (s *Snapshot) N() int {
	return len(s.Docs)
}

// LookupTerm returns the dense term ID for a normalised term.
func (s *Snapshot) LookupTerm(term string) (uint32, bool) {
	id, ok := s.termIDs[term]
	return id, ok
}

// PostingsFor returns the posting list for a term ID. The returned slice
// must be treated as read-only.
func (s *Snapshot) PostingsFor(termID uint32) PostingList {
	return s.Postings[termID]
}

// DocFreq returns the number of documents containing the term.
func (s *Snapshot) DocFreq(termID uint32) int {
	return s.DocFreqs[termID]
}

// TermsWithPrefix returns the IDs of all vocabulary terms starting with
// prefix, in lexicographic order. Terms are sorted at build time, so the
// range is found with two binary searches.
func (s *Snapshot) TermsWithPrefix(prefix string) []uint32 {
	lo := sort.SearchStrings(s.Terms, prefix)
	hi := lo
	for hi < len(s.Terms) && len(s.Terms[hi]) >= len(prefix) && s.Terms[hi][:len(prefix)] == prefix {
		hi++
	}
	ids := make([]uint32, 0, hi-lo)
	for i := lo; i < hi; i++ {
		ids = append(ids, uint32(i))
	}
	return ids
}

// Stats summarises the snapshot.
func (s *Snapshot) Stats() Stats {
	totalPostings := 0
	for _, pl := range s.Postings {
		totalPostings += len(pl)
	}
	var avgLen float64
	if len(s.Docs) > 0 {
		total := 0
		for _, d := range s.Docs {
			total += d.NormalizedLength
		}
		avgLen = float64(total) / float64(len(s.Docs))
	}
	return Stats{
		Documents:     len(s.Docs),
		Terms:         len(s.Terms),
		Postings:      totalPostings,
		AvgDocLength:  avgLen,
		SkippedInputs: s.SkippedInputs,
		BuiltAt:       s.BuiltAt,
	}
}

// Holder is the process-wide "current snapshot" pointer. Install replaces
// it atomically; Current may return nil before the first install.
type Holder struct {
	ptr atomic.Pointer[Snapshot]
}

// Current returns the active snapshot, or nil when none is installed.
func (h *Holder) Current() *Snapshot {
	return h.ptr.Load()
}

// Install atomically replaces the active snapshot.
func (h *Holder) Install(s *Snapshot) {
	h.ptr.Store(s)
}
