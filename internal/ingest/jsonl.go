package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/searchlite/searchlite/internal/index"
)

// maxLineBytes bounds a single JSONL record; crawled pages can be large.
const maxLineBytes = 16 << 20

// FromFile streams a JSONL file into the sink, one crawler record per
// line. Blank lines are ignored; unparseable lines are logged and
// counted, not fatal. Returns the number of records handed to the sink
// and the number of unparseable lines.
func FromFile(ctx context.Context, path string, sink Sink) (accepted, malformed int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("opening document file: %w", err)
	}
	defer f.Close()
	logger := slog.Default().With("component", "ingest-file", "path", path)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return accepted, malformed, err
			}
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var doc index.RawDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			logger.Warn("skipping unparseable record", "line", line, "error", err)
			malformed++
			continue
		}
		if err := sink.Add(doc); err != nil {
			logger.Warn("record rejected", "line", line, "url", doc.URL, "error", err)
			continue
		}
		accepted++
	}
	if err := scanner.Err(); err != nil {
		return accepted, malformed, fmt.Errorf("reading document file: %w", err)
	}
	logger.Info("file ingest complete", "accepted", accepted, "malformed", malformed)
	return accepted, malformed, nil
}
