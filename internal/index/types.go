// Package index builds and holds immutable snapshots of the positional
// inverted index: per-term posting lists, per-document metadata, TF-IDF
// document vectors, and the vocabulary. A snapshot is built once by the
// Builder and never mutated afterwards, so any number of queries may read
// it concurrently without locking.
package index

import "time"

// RawDocument is one record from the crawler: the unit of input to the
// Builder. Order of arrival defines document IDs.
type RawDocument struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Text      string    `json:"raw_text"`
	CrawledAt time.Time `json:"crawl_timestamp"`
}

// Document is the indexed metadata for one document.
type Document struct {
	ID uint32 `json:"id"`
	// URL and Title as supplied by the crawler.
	URL   string `json:"url"`
	Title string `json:"title"`
	// RawLength counts tokens before stop-word removal,
	// NormalizedLength after.
	RawLength        int       `json:"raw_length"`
	NormalizedLength int       `json:"normalized_length"`
	CrawledAt        time.Time `json:"crawled_at"`
}

// Posting records one term's occurrences within one document. Positions are
// strictly increasing pre-removal token offsets and never empty.
type Posting struct {
	DocID     uint32 `json:"d"`
	TermFreq  int    `json:"f"`
	Positions []int  `json:"p"`
}

// PostingList is a term's postings ordered by ascending DocID, one entry
// per document.
type PostingList []Posting

// Stats summarises one snapshot.
type Stats struct {
	Documents     int       `json:"documents"`
	Terms         int       `json:"terms"`
	Postings      int       `json:"postings"`
	AvgDocLength  float64   `json:"avg_doc_length"`
	SkippedInputs int       `json:"skipped_inputs"`
	BuiltAt       time.Time `json:"built_at"`
}
