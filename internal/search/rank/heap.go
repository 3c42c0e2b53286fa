package rank

import "container/heap"

// topK keeps the K best scored documents in a min-heap: the root is the
// current worst kept entry, so each new candidate either displaces it or
// is dropped in O(log K). Ties on score break toward the lower doc ID.
type topK struct {
	limit int
	docs  scoredHeap
}

func newTopK(limit int) *topK {
	return &topK{limit: limit, docs: make(scoredHeap, 0, limit)}
}

func (t *topK) offer(d ScoredDoc) {
	if len(t.docs) < t.limit {
		heap.Push(&t.docs, d)
		return
	}
	if t.docs.worse(t.docs[0], d) {
		t.docs[0] = d
		heap.Fix(&t.docs, 0)
	}
}

// ranked drains the heap into final order: score descending, doc ID
// ascending on equal scores.
func (t *topK) ranked() []ScoredDoc {
	if len(t.docs) == 0 {
		return nil
	}
	out := make([]ScoredDoc, len(t.docs))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&t.docs).(ScoredDoc)
	}
	return out
}

type scoredHeap []ScoredDoc

// worse reports whether a ranks below b.
func (h scoredHeap) worse(a, b ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.DocID > b.DocID
}

func (h scoredHeap) Len() int           { return len(h) }
func (h scoredHeap) Less(i, j int) bool { return h.worse(h[i], h[j]) }
func (h scoredHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *scoredHeap) Push(x any) { *h = append(*h, x.(ScoredDoc)) }
func (h *scoredHeap) Pop() any {
	old := *h
	n := len(old)
	d := old[n-1]
	*h = old[:n-1]
	return d
}
