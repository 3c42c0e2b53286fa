// Package search implements the query pipeline: normalization, spell
// correction, synonym expansion, TF-IDF ranking with a phrase bonus, and
// prefix suggestions. The Engine serves queries against whichever
// snapshot is currently installed; installs are atomic, so queries in
// flight finish on the snapshot they started with.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/searchlite/searchlite/internal/index"
	"github.com/searchlite/searchlite/internal/index/tokenizer"
	"github.com/searchlite/searchlite/internal/search/rank"
	"github.com/searchlite/searchlite/internal/search/spell"
	"github.com/searchlite/searchlite/internal/search/synonym"
	"github.com/searchlite/searchlite/pkg/config"
	pkgerrors "github.com/searchlite/searchlite/pkg/errors"
	"github.com/searchlite/searchlite/pkg/metrics"
	"github.com/searchlite/searchlite/pkg/tracing"
)

// Hit is one ranked search result.
type Hit struct {
	DocID        uint32   `json:"doc_id"`
	URL          string   `json:"url"`
	Title        string   `json:"title"`
	Score        float64  `json:"score"`
	MatchedTerms []string `json:"matched_terms"`
}

// Correction reports one spell-corrected query term.
type Correction struct {
	Input      string  `json:"input"`
	Suggestion string  `json:"suggestion"`
	Confidence float64 `json:"confidence"`
}

// Result is a complete search response, including the diagnostics that
// explain how the query was rewritten before ranking.
type Result struct {
	Query           string       `json:"query"`
	ProcessedTerms  []string     `json:"processed_terms"`
	Corrections     []Correction `json:"corrections,omitempty"`
	AddedTerms      []string     `json:"added_terms,omitempty"`
	UnmatchedTerms  []string     `json:"unmatched_terms,omitempty"`
	Hits            []Hit        `json:"hits"`
	TotalCandidates int          `json:"total_candidates"`
	Truncated       bool         `json:"truncated"`
	TookMs          int64        `json:"took_ms"`
}

// TermSuggestion is one autocomplete candidate.
type TermSuggestion struct {
	Term    string `json:"term"`
	DocFreq int    `json:"doc_freq"`
}

// SpellcheckResult reports query-level spelling correction: the query
// with every correctable out-of-vocabulary term replaced, plus the
// individual corrections made.
type SpellcheckResult struct {
	OriginalQuery  string       `json:"original_query"`
	CorrectedQuery string       `json:"corrected_query"`
	HasCorrections bool         `json:"has_corrections"`
	Confidence     float64      `json:"confidence"`
	Corrections    []Correction `json:"corrections,omitempty"`
}

// ExpandResult reports the synonym expansion of a query.
type ExpandResult struct {
	OriginalQuery string         `json:"original_query"`
	ExpandedQuery string         `json:"expanded_query"`
	HasExpansion  bool           `json:"has_expansion"`
	NewTerms      []string       `json:"new_terms,omitempty"`
	Terms         []synonym.Term `json:"terms"`
}

// serving bundles a snapshot with the per-snapshot structures derived
// from it, so a single atomic load gives a consistent view of all three.
type serving struct {
	snap      *index.Snapshot
	scorer    rank.Scorer
	corrector *spell.Corrector
}

// Engine executes queries. Create one per process; Install and
// SetSynonyms may be called at any time from other goroutines.
type Engine struct {
	cfg     config.SearchConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	serving  atomic.Pointer[serving]
	synonyms atomic.Pointer[synonym.Table]
}

// NewEngine creates an Engine with the built-in synonym table and no
// snapshot installed. m may be nil in tests.
func NewEngine(cfg config.SearchConfig, m *metrics.Metrics) *Engine {
	e := &Engine{
		cfg:     cfg,
		logger:  slog.Default().With("component", "search-engine"),
		metrics: m,
	}
	e.synonyms.Store(synonym.Default())
	return e
}

// Install makes snap the serving snapshot, building the scorer and spell
// corrector for it first so queries never observe a half-initialised
// state.
func (e *Engine) Install(snap *index.Snapshot) {
	var scorer rank.Scorer
	switch e.cfg.Accelerator {
	case "simhash":
		scorer = rank.NewSimHashScorer(snap, e.cfg.PhraseBonus, e.cfg.MaxCandidates)
	default:
		scorer = rank.NewExactScorer(snap, e.cfg.PhraseBonus)
	}
	e.serving.Store(&serving{
		snap:      snap,
		scorer:    scorer,
		corrector: spell.NewCorrector(snap),
	})
	if e.metrics != nil {
		e.metrics.SnapshotDocCount.Set(float64(snap.N()))
		e.metrics.SnapshotTermCount.Set(float64(len(snap.Terms)))
	}
	e.logger.Info("snapshot installed",
		"documents", snap.N(),
		"terms", len(snap.Terms),
		"built_at", snap.BuiltAt,
		"accelerator", e.cfg.Accelerator,
	)
}

// SetSynonyms atomically replaces the synonym table.
func (e *Engine) SetSynonyms(t *synonym.Table) {
	e.synonyms.Store(t)
	e.logger.Info("synonym table replaced", "entries", t.Len())
}

// Ready reports whether a snapshot is installed.
func (e *Engine) Ready() bool {
	return e.serving.Load() != nil
}

// Stats returns the serving snapshot's statistics.
func (e *Engine) Stats() (index.Stats, error) {
	sv := e.serving.Load()
	if sv == nil {
		return index.Stats{}, pkgerrors.ErrIndexUnavailable
	}
	return sv.snap.Stats(), nil
}

// Search runs the full query pipeline and returns the top-K hits. A query
// matching nothing returns an empty Hits slice, not an error; errors are
// reserved for invalid input and a missing snapshot.
func (e *Engine) Search(ctx context.Context, query string, topK int) (*Result, error) {
	start := time.Now()
	ctx, span := tracing.StartChildSpan(ctx, "search")
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		e.countQuery("invalid")
		return nil, fmt.Errorf("%w: empty query", pkgerrors.ErrInvalidInput)
	}
	if len(query) > e.cfg.MaxQueryLength {
		e.countQuery("invalid")
		return nil, fmt.Errorf("%w: query exceeds %d characters", pkgerrors.ErrInvalidInput, e.cfg.MaxQueryLength)
	}
	if topK <= 0 {
		topK = e.cfg.DefaultTopK
	}
	if topK > e.cfg.MaxTopK {
		topK = e.cfg.MaxTopK
	}
	sv := e.serving.Load()
	if sv == nil {
		e.countQuery("unavailable")
		return nil, fmt.Errorf("%w: no snapshot installed", pkgerrors.ErrIndexUnavailable)
	}
	span.SetAttr("query", query)
	span.SetAttr("top_k", topK)

	res := &Result{Query: query, Hits: []Hit{}}
	tokens := tokenizer.Tokenize(query)
	if len(tokens) == 0 {
		e.countQuery("zero_result")
		res.TookMs = time.Since(start).Milliseconds()
		return res, nil
	}

	tokens = e.correct(sv, tokens, res)
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	res.ProcessedTerms = terms

	expanded := e.synonyms.Load().Expand(terms, e.cfg.ExpansionCap)
	q := e.prepare(sv.snap, tokens, expanded, topK, res)

	rctx, cancel := context.WithTimeout(ctx, e.cfg.RankTimeout)
	defer cancel()
	ranked := sv.scorer.Score(rctx, q)

	res.TotalCandidates = ranked.Candidates
	res.Truncated = ranked.Truncated
	for _, d := range ranked.Docs {
		doc := sv.snap.Docs[d.DocID]
		res.Hits = append(res.Hits, Hit{
			DocID:        d.DocID,
			URL:          doc.URL,
			Title:        doc.Title,
			Score:        d.Score,
			MatchedTerms: e.matchedTerms(sv.snap, q.Vector, d.DocID),
		})
	}
	res.TookMs = time.Since(start).Milliseconds()

	span.SetAttr("hits", len(res.Hits))
	span.SetAttr("candidates", res.TotalCandidates)
	if e.metrics != nil {
		if res.Truncated {
			e.metrics.TruncatedTotal.Inc()
		}
		e.metrics.SearchResultsCount.Observe(float64(len(res.Hits)))
	}
	if len(res.Hits) == 0 {
		e.countQuery("zero_result")
	} else {
		e.countQuery("hit")
	}
	return res, nil
}

// correct replaces out-of-vocabulary terms with their best spelling
// suggestion, keeping positions so phrase deltas stay valid. Terms with
// no acceptable suggestion pass through unchanged and surface later as
// unmatched.
func (e *Engine) correct(sv *serving, tokens []tokenizer.Token, res *Result) []tokenizer.Token {
	corrected := false
	for i, tok := range tokens {
		if _, ok := sv.snap.LookupTerm(tok.Term); ok {
			continue
		}
		sug, ok := sv.corrector.Correct(tok.Term)
		if !ok {
			continue
		}
		res.Corrections = append(res.Corrections, Correction{
			Input:      tok.Term,
			Suggestion: sug.Term,
			Confidence: sug.Confidence,
		})
		tokens[i].Term = sug.Term
		corrected = true
	}
	if corrected && e.metrics != nil {
		e.metrics.CorrectionsTotal.Inc()
	}
	return tokens
}

// prepare builds the normalized query vector and phrase pairs. Original
// terms contribute their full TF-IDF weight; expansion terms are dampened
// by the configured expansion weight. Terms absent from the vocabulary
// are recorded as unmatched and contribute nothing.
func (e *Engine) prepare(snap *index.Snapshot, tokens []tokenizer.Token, expanded []synonym.Term, topK int, res *Result) rank.Query {
	weights := make(map[uint32]float64)
	expansionAdded := false
	for _, t := range expanded {
		id, ok := snap.LookupTerm(t.Term)
		if !ok {
			if t.Original {
				res.UnmatchedTerms = appendUnique(res.UnmatchedTerms, t.Term)
			}
			continue
		}
		idf := index.IDF(snap.N(), snap.DocFreq(id))
		if idf <= 0 {
			continue
		}
		if t.Original {
			weights[id] += idf
		} else {
			weights[id] += e.cfg.ExpansionWeight * idf
			res.AddedTerms = append(res.AddedTerms, t.Term)
			expansionAdded = true
		}
	}
	if expansionAdded && e.metrics != nil {
		e.metrics.ExpansionsTotal.Inc()
	}

	ids := make([]uint32, 0, len(weights))
	for id := range weights {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	vec := index.SparseVector{
		Terms:   ids,
		Weights: make([]float64, len(ids)),
	}
	for i, id := range ids {
		vec.Weights[i] = weights[id]
	}
	vec.Normalize()

	var pairs []rank.PhrasePair
	for i := 0; i+1 < len(tokens); i++ {
		a, okA := snap.LookupTerm(tokens[i].Term)
		b, okB := snap.LookupTerm(tokens[i+1].Term)
		if okA && okB {
			pairs = append(pairs, rank.PhrasePair{
				A:     a,
				B:     b,
				Delta: tokens[i+1].Position - tokens[i].Position,
			})
		}
	}
	return rank.Query{Vector: vec, Pairs: pairs, TopK: topK}
}

// matchedTerms lists the query vector terms present in the document, for
// the per-hit diagnostics.
func (e *Engine) matchedTerms(snap *index.Snapshot, vec index.SparseVector, docID uint32) []string {
	matched := make([]string, 0, len(vec.Terms))
	for _, id := range vec.Terms {
		pl := snap.PostingsFor(id)
		i := sort.Search(len(pl), func(i int) bool { return pl[i].DocID >= docID })
		if i < len(pl) && pl[i].DocID == docID {
			matched = append(matched, snap.Terms[id])
		}
	}
	return matched
}

// Suggest returns up to limit vocabulary terms starting with prefix,
// most-frequent first. When nothing matches the prefix, the spell
// corrector is tried as a fallback so a near-miss still yields something.
func (e *Engine) Suggest(ctx context.Context, prefix string, limit int) ([]TermSuggestion, error) {
	_, span := tracing.StartChildSpan(ctx, "suggest")
	defer span.End()

	prefix = tokenizer.Stem(strings.ToLower(strings.TrimSpace(prefix)))
	if prefix == "" {
		return nil, fmt.Errorf("%w: empty prefix", pkgerrors.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = e.cfg.DefaultTopK
	}
	sv := e.serving.Load()
	if sv == nil {
		return nil, fmt.Errorf("%w: no snapshot installed", pkgerrors.ErrIndexUnavailable)
	}

	ids := sv.snap.TermsWithPrefix(prefix)
	if len(ids) == 0 {
		if sug, ok := sv.corrector.Correct(prefix); ok {
			return []TermSuggestion{{Term: sug.Term, DocFreq: sug.DocFreq}}, nil
		}
		return []TermSuggestion{}, nil
	}
	sort.Slice(ids, func(i, j int) bool {
		if sv.snap.DocFreqs[ids[i]] != sv.snap.DocFreqs[ids[j]] {
			return sv.snap.DocFreqs[ids[i]] > sv.snap.DocFreqs[ids[j]]
		}
		return sv.snap.Terms[ids[i]] < sv.snap.Terms[ids[j]]
	})
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]TermSuggestion, len(ids))
	for i, id := range ids {
		out[i] = TermSuggestion{Term: sv.snap.Terms[id], DocFreq: sv.snap.DocFreqs[id]}
	}
	return out, nil
}

// Spellcheck runs only the correction stage of the pipeline: each
// out-of-vocabulary term is replaced by its best suggestion, in-vocabulary
// terms pass through, and nothing is scored. Confidence is the lowest
// confidence among the corrections made, or 1 when none were needed.
func (e *Engine) Spellcheck(ctx context.Context, query string) (*SpellcheckResult, error) {
	_, span := tracing.StartChildSpan(ctx, "spellcheck")
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", pkgerrors.ErrInvalidInput)
	}
	if len(query) > e.cfg.MaxQueryLength {
		return nil, fmt.Errorf("%w: query exceeds %d characters", pkgerrors.ErrInvalidInput, e.cfg.MaxQueryLength)
	}
	sv := e.serving.Load()
	if sv == nil {
		return nil, fmt.Errorf("%w: no snapshot installed", pkgerrors.ErrIndexUnavailable)
	}

	res := &SpellcheckResult{OriginalQuery: query, Confidence: 1}
	tokens := tokenizer.Tokenize(query)
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		term := tok.Term
		if _, ok := sv.snap.LookupTerm(term); !ok {
			if sug, ok := sv.corrector.Correct(term); ok {
				res.Corrections = append(res.Corrections, Correction{
					Input:      term,
					Suggestion: sug.Term,
					Confidence: sug.Confidence,
				})
				if sug.Confidence < res.Confidence {
					res.Confidence = sug.Confidence
				}
				term = sug.Term
			}
		}
		terms = append(terms, term)
	}
	res.CorrectedQuery = strings.Join(terms, " ")
	res.HasCorrections = len(res.Corrections) > 0
	return res, nil
}

// Expand returns the synonym expansion of a query. It needs only the
// synonym table, so it works before any snapshot is installed.
func (e *Engine) Expand(ctx context.Context, query string) (*ExpandResult, error) {
	_, span := tracing.StartChildSpan(ctx, "expand")
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", pkgerrors.ErrInvalidInput)
	}
	if len(query) > e.cfg.MaxQueryLength {
		return nil, fmt.Errorf("%w: query exceeds %d characters", pkgerrors.ErrInvalidInput, e.cfg.MaxQueryLength)
	}
	tokens := tokenizer.Tokenize(query)
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	expanded := e.synonyms.Load().Expand(terms, e.cfg.ExpansionCap)

	res := &ExpandResult{OriginalQuery: query, Terms: expanded}
	all := make([]string, len(expanded))
	for i, t := range expanded {
		all[i] = t.Term
		if !t.Original {
			res.NewTerms = append(res.NewTerms, t.Term)
		}
	}
	res.ExpandedQuery = strings.Join(all, " ")
	res.HasExpansion = len(res.NewTerms) > 0
	return res, nil
}

func (e *Engine) countQuery(outcome string) {
	if e.metrics != nil {
		e.metrics.SearchQueriesTotal.WithLabelValues(outcome).Inc()
	}
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
