package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/searchlite/searchlite/internal/index/snapshotio"
	"github.com/searchlite/searchlite/internal/search"
	"github.com/searchlite/searchlite/internal/search/cache"
	"github.com/searchlite/searchlite/internal/search/handler"
	"github.com/searchlite/searchlite/internal/search/synonym"
	"github.com/searchlite/searchlite/pkg/config"
	"github.com/searchlite/searchlite/pkg/health"
	"github.com/searchlite/searchlite/pkg/logger"
	"github.com/searchlite/searchlite/pkg/metrics"
	pkgredis "github.com/searchlite/searchlite/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting searcher", "port", cfg.Server.Port, "data_dir", cfg.Index.DataDir)

	var m *metrics.Metrics
	var stopMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		m = metrics.New()
		stopMetrics = metrics.StartServer(cfg.Metrics.Port)
	}

	engine := search.NewEngine(cfg.Search, m)
	if cfg.Synonyms.Path != "" {
		table, err := synonym.LoadFile(cfg.Synonyms.Path)
		if err != nil {
			slog.Error("failed to load synonym table", "path", cfg.Synonyms.Path, "error", err)
			os.Exit(1)
		}
		engine.SetSynonyms(table)
	}

	var queryCache *cache.QueryCache
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, query caching disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
		queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
		slog.Info("query cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load whatever snapshot already exists, then keep polling for newer
	// files written by the indexer.
	loaded := loadLatest(engine, queryCache, cfg.Index.DataDir, "", m)
	go pollSnapshots(ctx, engine, queryCache, cfg.Index, loaded, m)

	checker := health.NewChecker()
	checker.Register("snapshot", func(ctx context.Context) health.ComponentHealth {
		stats, err := engine.Stats()
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: "no snapshot loaded"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents, %d terms", stats.Documents, stats.Terms),
		}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	h := handler.New(engine, queryCache, checker, m)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h.Router(cfg.Server),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if stopMetrics != nil {
			stopMetrics(shutdownCtx)
		}
	}()

	slog.Info("searcher listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("searcher stopped")
}

// loadLatest installs the newest snapshot in dataDir if it is newer than
// current. Returns the path of the installed (or retained) snapshot.
func loadLatest(engine *search.Engine, queryCache *cache.QueryCache, dataDir, current string, m *metrics.Metrics) string {
	path, err := snapshotio.LatestPath(dataDir)
	if err != nil {
		slog.Error("scanning snapshot directory failed", "error", err)
		return current
	}
	if path == "" || path == current {
		return current
	}
	snap, err := snapshotio.Load(path)
	if err != nil {
		if m != nil {
			m.SnapshotLoadsTotal.WithLabelValues("error").Inc()
		}
		slog.Error("snapshot load failed", "path", path, "error", err)
		return current
	}
	engine.Install(snap)
	if m != nil {
		m.SnapshotLoadsTotal.WithLabelValues("ok").Inc()
	}
	if queryCache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := queryCache.Invalidate(ctx); err != nil {
			slog.Warn("cache invalidation after snapshot install failed", "error", err)
		}
	}
	slog.Info("snapshot loaded", "path", path, "documents", snap.N())
	return path
}

func pollSnapshots(ctx context.Context, engine *search.Engine, queryCache *cache.QueryCache, cfg config.IndexConfig, current string, m *metrics.Metrics) {
	ticker := time.NewTicker(cfg.ReloadInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current = loadLatest(engine, queryCache, cfg.DataDir, current, m)
		}
	}
}
