// Package ingest feeds crawler output into the index builder from one of
// three sources: a JSONL file, the crawler's Postgres landing table, or
// the crawled-documents Kafka topic. Malformed records are counted by the
// builder and never abort an ingest run.
package ingest

import (
	"github.com/searchlite/searchlite/internal/index"
)

// Sink accepts crawler records. *index.Builder is the production sink.
type Sink interface {
	Add(doc index.RawDocument) error
}
