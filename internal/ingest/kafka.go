package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/searchlite/searchlite/internal/index"
	"github.com/searchlite/searchlite/pkg/config"
	"github.com/searchlite/searchlite/pkg/kafka"
)

// Feeder consumes the crawled-documents topic and accumulates records in
// the sink. The indexer rebuilds snapshots on a timer while the Feeder
// keeps consuming, so builds pick up whatever has arrived since startup.
type Feeder struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
	received atomic.Int64
}

// NewFeeder creates a Feeder consuming cfg's crawled-documents topic.
func NewFeeder(cfg config.KafkaConfig, sink Sink) *Feeder {
	f := &Feeder{
		logger: slog.Default().With("component", "ingest-kafka"),
	}
	f.consumer = kafka.NewConsumer(cfg, cfg.Topics.DocumentsCrawled, func(ctx context.Context, key, value []byte) error {
		doc, err := kafka.DecodeJSON[index.RawDocument](value)
		if err != nil {
			return fmt.Errorf("decoding crawled document: %w", err)
		}
		if err := sink.Add(doc); err != nil {
			// Malformed records are counted by the sink; commit the
			// offset rather than redelivering them forever.
			f.logger.Warn("record rejected", "url", doc.URL, "error", err)
			return nil
		}
		f.received.Add(1)
		return nil
	})
	return f
}

// Run consumes until ctx is cancelled.
func (f *Feeder) Run(ctx context.Context) error {
	return f.consumer.Start(ctx)
}

// Received returns the number of records accepted so far.
func (f *Feeder) Received() int64 {
	return f.received.Load()
}

// Close closes the underlying consumer.
func (f *Feeder) Close() error {
	return f.consumer.Close()
}
