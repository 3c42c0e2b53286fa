// Package synonym expands query terms from a static synonym table. The
// table is loaded once (YAML file or the built-in default), normalised
// through the same stemmer as the index, and read-only afterwards;
// reloading produces a fresh Table that callers swap in atomically.
package synonym

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/searchlite/searchlite/internal/index/tokenizer"
)

// Table maps a normalised term to its ordered related terms.
type Table struct {
	entries map[string][]string
}

// Term is one element of an expanded query. Expansion terms keep a link
// to the original they came from and are weighted below it during
// scoring.
type Term struct {
	Term     string `json:"term"`
	Original bool   `json:"original"`
	// SourceTerm is the original query term an expansion came from;
	// empty for originals.
	SourceTerm string `json:"source_term,omitempty"`
}

// LoadFile reads a YAML synonym table (term -> list of related terms).
// Keys and values are stemmed so lookups line up with normalised query
// terms.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading synonym table %s: %w", path, err)
	}
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing synonym table %s: %w", path, err)
	}
	return fromRaw(raw), nil
}

// Default returns the built-in table used when no synonym file is
// configured.
func Default() *Table {
	return fromRaw(map[string][]string{
		"search":    {"query", "lookup", "find"},
		"engine":    {"system", "platform"},
		"crawl":     {"scrape", "fetch", "spider"},
		"index":     {"catalog", "directory"},
		"rank":      {"order", "score", "sort"},
		"document":  {"page", "record", "file"},
		"fast":      {"quick", "rapid", "speedy"},
		"big":       {"large", "huge"},
		"small":     {"little", "tiny"},
		"great":     {"excellent", "good"},
		"error":     {"fault", "failure", "bug"},
		"machine":   {"computer"},
		"learning":  {"training"},
		"web":       {"internet", "online"},
		"data":      {"information"},
		"algorithm": {"method", "procedure"},
	})
}

func fromRaw(raw map[string][]string) *Table {
	entries := make(map[string][]string, len(raw))
	for key, values := range raw {
		stemmedKey := tokenizer.Stem(key)
		seen := map[string]struct{}{stemmedKey: {}}
		list := make([]string, 0, len(values))
		for _, v := range values {
			stemmed := tokenizer.Stem(v)
			if _, dup := seen[stemmed]; dup {
				continue
			}
			seen[stemmed] = struct{}{}
			list = append(list, stemmed)
		}
		if len(list) > 0 {
			entries[stemmedKey] = list
		}
	}
	return &Table{entries: entries}
}

// Lookup returns the related terms for a normalised term, or nil.
func (t *Table) Lookup(term string) []string {
	return t.entries[term]
}

// Len returns the number of table entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// Expand returns the query terms in order, each original flagged as such,
// followed by up to cap related terms per original. Terms already present
// in the query (or already added) are not added again, so expansion never
// more than (cap+1)-folds the term count and always preserves every
// original.
func (t *Table) Expand(terms []string, cap int) []Term {
	result := make([]Term, 0, len(terms))
	present := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		result = append(result, Term{Term: term, Original: true})
		present[term] = struct{}{}
	}
	for _, term := range terms {
		added := 0
		for _, related := range t.entries[term] {
			if added >= cap {
				break
			}
			if _, dup := present[related]; dup {
				continue
			}
			present[related] = struct{}{}
			result = append(result, Term{Term: related, SourceTerm: term})
			added++
		}
	}
	return result
}
