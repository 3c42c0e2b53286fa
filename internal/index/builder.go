package index

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/huandu/skiplist"
	farmhash "github.com/leemcloughlin/gofarmhash"
	"golang.org/x/sync/errgroup"

	"github.com/searchlite/searchlite/internal/index/tokenizer"
	"github.com/searchlite/searchlite/pkg/config"
	pkgerrors "github.com/searchlite/searchlite/pkg/errors"
)

// Builder accumulates crawler records and turns them into a Snapshot in a
// single batch. Normalization runs in parallel (map phase); per-term merge
// goes through term-hashed shards so workers writing different terms never
// contend on the same lock (reduce phase). Document vectors are computed
// after all postings are merged, once global document frequencies are
// known.
type Builder struct {
	workers   int
	numShards int
	logger    *slog.Logger

	mu      sync.Mutex
	pending []RawDocument
	skipped int
}

// NewBuilder creates a Builder using the worker and shard counts from cfg.
func NewBuilder(cfg config.IndexConfig) *Builder {
	workers := cfg.BuildWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	numShards := cfg.TermShards
	if numShards <= 0 {
		numShards = 16
	}
	return &Builder{
		workers:   workers,
		numShards: numShards,
		logger:    slog.Default().With("component", "index-builder"),
	}
}

// Add queues one crawler record. Records missing both text and title, or
// missing a URL, are counted and rejected without failing the batch.
func (b *Builder) Add(doc RawDocument) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if doc.URL == "" || (doc.Text == "" && doc.Title == "") {
		b.skipped++
		return fmt.Errorf("%w: document record missing url or text", pkgerrors.ErrInvalidInput)
	}
	b.pending = append(b.pending, doc)
	return nil
}

// Len returns the number of accepted records.
func (b *Builder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Skipped returns the number of malformed records rejected so far.
func (b *Builder) Skipped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.skipped
}

// Reset drops all accumulated records and counters.
func (b *Builder) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
	b.skipped = 0
}

type termShard struct {
	mu sync.Mutex
	// term -> skiplist keyed by doc ID, so freezing yields posting
	// lists already ordered by ascending doc ID.
	lists map[string]*skiplist.SkipList
}

// Build produces an immutable Snapshot from every record accepted so far.
// An empty input yields a valid empty snapshot; all queries against it
// return zero results. Build does not consume the accumulated records, so
// a feed-driven indexer can keep adding and rebuild periodically.
func (b *Builder) Build(ctx context.Context) (*Snapshot, error) {
	b.mu.Lock()
	docs := make([]RawDocument, len(b.pending))
	copy(docs, b.pending)
	skipped := b.skipped
	b.mu.Unlock()

	start := time.Now()
	n := len(docs)
	meta := make([]Document, n)
	shards := make([]termShard, b.numShards)
	for i := range shards {
		shards[i].lists = make(map[string]*skiplist.SkipList)
	}

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan int)
	go func() {
		defer close(jobs)
		for i := 0; i < n; i++ {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return
			}
		}
	}()
	for w := 0; w < b.workers; w++ {
		g.Go(func() error {
			for i := range jobs {
				if err := gctx.Err(); err != nil {
					return err
				}
				b.indexOne(docs[i], uint32(i), meta, shards)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("building index: %w", err)
	}

	snap := b.freeze(meta, shards, skipped)
	b.logger.Info("snapshot built",
		"documents", n,
		"terms", len(snap.Terms),
		"skipped", skipped,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return snap, nil
}

// indexOne normalizes a single document and merges its term data into the
// shared term shards.
func (b *Builder) indexOne(doc RawDocument, docID uint32, meta []Document, shards []termShard) {
	tokens, rawLen := tokenizer.Analyze(doc.Title + " " + doc.Text)
	meta[docID] = Document{
		ID:               docID,
		URL:              doc.URL,
		Title:            doc.Title,
		RawLength:        rawLen,
		NormalizedLength: len(tokens),
		CrawledAt:        doc.CrawledAt,
	}

	local := make(map[string]*Posting, len(tokens))
	for _, tok := range tokens {
		p, ok := local[tok.Term]
		if !ok {
			p = &Posting{DocID: docID}
			local[tok.Term] = p
		}
		p.TermFreq++
		p.Positions = append(p.Positions, tok.Position)
	}

	for term, posting := range local {
		sh := &shards[farmhash.Hash32WithSeed([]byte(term), 0)%uint32(len(shards))]
		sh.mu.Lock()
		list, ok := sh.lists[term]
		if !ok {
			list = skiplist.New(skiplist.Uint32)
			sh.lists[term] = list
		}
		list.Set(posting.DocID, posting)
		sh.mu.Unlock()
	}
}

// freeze assigns dense term IDs in lexicographic order, materialises the
// posting lists, and derives the L2-normalized TF-IDF document vectors.
func (b *Builder) freeze(meta []Document, shards []termShard, skipped int) *Snapshot {
	n := len(meta)
	var terms []string
	for i := range shards {
		for term := range shards[i].lists {
			terms = append(terms, term)
		}
	}
	sort.Strings(terms)

	docFreqs := make([]int, len(terms))
	postings := make([]PostingList, len(terms))
	vectors := make([]SparseVector, n)

	for id, term := range terms {
		sh := &shards[farmhash.Hash32WithSeed([]byte(term), 0)%uint32(len(shards))]
		list := sh.lists[term]
		pl := make(PostingList, 0, list.Len())
		for el := list.Front(); el != nil; el = el.Next() {
			pl = append(pl, *el.Value.(*Posting))
		}
		postings[id] = pl
		docFreqs[id] = len(pl)

		// Terms ascend here, so per-document vector components come
		// out sorted by term ID without an extra sort.
		idf := IDF(n, len(pl))
		if idf <= 0 {
			continue
		}
		for _, p := range pl {
			v := &vectors[p.DocID]
			v.Terms = append(v.Terms, uint32(id))
			v.Weights = append(v.Weights, float64(p.TermFreq)*idf)
		}
	}
	for i := range vectors {
		vectors[i].Normalize()
	}

	return NewSnapshot(meta, terms, docFreqs, postings, vectors, time.Now().UTC(), skipped)
}
