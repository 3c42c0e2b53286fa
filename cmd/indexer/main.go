package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/searchlite/searchlite/internal/index"
	"github.com/searchlite/searchlite/internal/index/snapshotio"
	"github.com/searchlite/searchlite/internal/ingest"
	"github.com/searchlite/searchlite/pkg/config"
	"github.com/searchlite/searchlite/pkg/kafka"
	"github.com/searchlite/searchlite/pkg/logger"
	"github.com/searchlite/searchlite/pkg/metrics"
	"github.com/searchlite/searchlite/pkg/postgres"
	"github.com/searchlite/searchlite/pkg/resilience"
)

// indexCompleteEvent is published after each successful snapshot write so
// downstream consumers know a fresh index exists.
type indexCompleteEvent struct {
	Snapshot  string    `json:"snapshot"`
	Documents int       `json:"documents"`
	Terms     int       `json:"terms"`
	Skipped   int       `json:"skipped"`
	BuiltAt   time.Time `json:"built_at"`
}

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer",
		"source", cfg.Index.Source,
		"data_dir", cfg.Index.DataDir,
		"workers", cfg.Index.BuildWorkers,
	)

	var m *metrics.Metrics
	var stopMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		m = metrics.New()
		stopMetrics = metrics.StartServer(cfg.Metrics.Port)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	builder := index.NewBuilder(cfg.Index)
	writer := snapshotio.NewWriter(cfg.Index.DataDir)
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
	defer producer.Close()

	run := func() error {
		return buildAndPersist(ctx, cfg, builder, writer, producer, m)
	}

	switch cfg.Index.Source {
	case "file":
		if _, _, err := ingest.FromFile(ctx, cfg.Index.SourcePath, builder); err != nil {
			slog.Error("file ingest failed", "error", err)
			os.Exit(1)
		}
		err = run()
	case "postgres":
		var pgClient *postgres.Client
		pgClient, err = postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer pgClient.Close()
		if _, err = ingest.FromPostgres(ctx, pgClient, cfg.Postgres.PagesTable, builder); err != nil {
			slog.Error("postgres ingest failed", "error", err)
			os.Exit(1)
		}
		err = run()
	case "kafka":
		err = runFromKafka(ctx, cfg, builder, run)
	}
	if err != nil {
		slog.Error("indexing failed", "error", err)
		os.Exit(1)
	}

	if stopMetrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		stopMetrics(shutdownCtx)
	}
	slog.Info("indexer stopped")
}

// runFromKafka consumes the crawled-documents topic continuously and
// rebuilds a snapshot on every rebuild tick, so the searcher's poller
// picks up new documents without either process restarting.
func runFromKafka(ctx context.Context, cfg *config.Config, builder *index.Builder, rebuild func() error) error {
	feeder := ingest.NewFeeder(cfg.Kafka, builder)
	defer feeder.Close()
	go func() {
		if err := feeder.Run(ctx); err != nil {
			slog.Error("kafka feeder stopped", "error", err)
		}
	}()

	ticker := time.NewTicker(cfg.Index.RebuildInterval)
	defer ticker.Stop()
	var lastBuilt int64 = -1
	for {
		select {
		case <-ctx.Done():
			// Final build so nothing consumed since the last tick is lost.
			if feeder.Received() != lastBuilt {
				return rebuild()
			}
			return nil
		case <-ticker.C:
			received := feeder.Received()
			if received == lastBuilt {
				continue
			}
			if err := rebuild(); err != nil {
				slog.Error("periodic rebuild failed", "error", err)
				continue
			}
			lastBuilt = received
		}
	}
}

func buildAndPersist(
	ctx context.Context,
	cfg *config.Config,
	builder *index.Builder,
	writer *snapshotio.Writer,
	producer *kafka.Producer,
	m *metrics.Metrics,
) error {
	start := time.Now()
	snap, err := builder.Build(ctx)
	if err != nil {
		return err
	}
	name, err := writer.Write(snap)
	if err != nil {
		return fmt.Errorf("persisting snapshot: %w", err)
	}
	if m != nil {
		m.DocsIndexedTotal.Add(float64(snap.N()))
		m.DocsSkippedTotal.Add(float64(snap.SkippedInputs))
		m.BuildDuration.Observe(time.Since(start).Seconds())
	}
	slog.Info("snapshot persisted", "file", name, "documents", snap.N(), "terms", len(snap.Terms))

	event := kafka.Event{
		Key: name,
		Value: indexCompleteEvent{
			Snapshot:  name,
			Documents: snap.N(),
			Terms:     len(snap.Terms),
			Skipped:   snap.SkippedInputs,
			BuiltAt:   snap.BuiltAt,
		},
	}
	// The snapshot is already durable; a failed notification is worth
	// retrying but not failing the build over. Each attempt is bounded
	// so a hung broker cannot stall shutdown.
	if err := resilience.Retry(ctx, "publish-index-complete", resilience.RetryConfig{}, func() error {
		return resilience.WithTimeout(ctx, 10*time.Second, "publish-index-complete", func(ctx context.Context) error {
			return producer.Publish(ctx, event)
		})
	}); err != nil {
		slog.Warn("failed to publish index completion event", "error", err)
	}
	return nil
}
