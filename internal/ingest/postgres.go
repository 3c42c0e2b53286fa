package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/searchlite/searchlite/internal/index"
	"github.com/searchlite/searchlite/pkg/postgres"
)

// FromPostgres streams the crawler's landing table into the sink in
// insertion order, so document IDs stay stable across rebuilds of an
// unchanged table.
func FromPostgres(ctx context.Context, client *postgres.Client, table string, sink Sink) (accepted int, err error) {
	logger := slog.Default().With("component", "ingest-postgres", "table", table)
	query := fmt.Sprintf(
		"SELECT url, COALESCE(title, ''), COALESCE(content, ''), crawled_at FROM %s ORDER BY id",
		table,
	)
	rows, err := client.DB.QueryContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("querying crawled pages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var doc index.RawDocument
		var crawledAt sql.NullTime
		if err := rows.Scan(&doc.URL, &doc.Title, &doc.Text, &crawledAt); err != nil {
			return accepted, fmt.Errorf("scanning crawled page row: %w", err)
		}
		if crawledAt.Valid {
			doc.CrawledAt = crawledAt.Time
		}
		if err := sink.Add(doc); err != nil {
			logger.Warn("record rejected", "url", doc.URL, "error", err)
			continue
		}
		accepted++
	}
	if err := rows.Err(); err != nil {
		return accepted, fmt.Errorf("iterating crawled pages: %w", err)
	}
	logger.Info("postgres ingest complete", "accepted", accepted)
	return accepted, nil
}
