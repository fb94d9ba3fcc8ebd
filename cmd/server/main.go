package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/filevet/filevet/internal/config"
	"github.com/filevet/filevet/internal/logging"
	"github.com/filevet/filevet/internal/pipeline"
	"github.com/filevet/filevet/internal/record"
	"github.com/filevet/filevet/internal/storage"
	"github.com/filevet/filevet/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"storage_backend", cfg.Storage.Backend,
		"records_backend", cfg.Records.Backend,
		"pipeline_max_concurrent", cfg.Pipeline.MaxConcurrent,
	)

	ctx := context.Background()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize byte store", "error", err)
		os.Exit(1)
	}

	records, pool, err := buildRecordStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize record store", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}

	metrics := pipeline.NewMetrics(prometheus.DefaultRegisterer)

	processor := pipeline.NewProcessor(pipeline.ProcessorConfig{
		MaxConcurrentProves: cfg.Pipeline.MaxConcurrent,
		ProveWaitTime:       cfg.Pipeline.MaxWaitTime,
		Records:             records,
		Metrics:             metrics,
	})

	policies := buildPolicies(cfg, store)
	slog.Info("policies registered",
		"kinds", len(policies),
		"families", pipeline.Families(),
	)

	server := web.NewServer(processor, policies, records, store, cfg)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let in-flight uploads finish before closing the listener
		status := processor.LimiterStatus()
		if status.Active > 0 {
			slog.Info("waiting for uploads to complete", "active", status.Active)
			if err := processor.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("shutdown timeout with uploads in flight", "error", err)
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// buildStore selects the byte store backend from config.
func buildStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch strings.ToLower(cfg.Storage.Backend) {
	case "s3":
		return storage.NewS3(ctx, storage.S3Config{
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			Endpoint:  cfg.Storage.Endpoint,
			PathStyle: cfg.Storage.PathStyle,
		})
	default:
		return storage.NewLocal(cfg.Storage.Root)
	}
}

// buildRecordStore selects the metadata backend from config. The pool
// is returned for lifecycle management and is nil for non-postgres
// backends.
func buildRecordStore(ctx context.Context, cfg *config.Config) (record.Store, *pgxpool.Pool, error) {
	switch strings.ToLower(cfg.Records.Backend) {
	case "postgres":
		poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
		if err != nil {
			return nil, nil, err
		}
		poolConfig.MaxConns = int32(cfg.Database.MaxConns)
		poolConfig.MinConns = int32(cfg.Database.MinConns)
		poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return record.NewPostgres(pool), pool, nil

	case "memory":
		return record.NewMemory(), nil, nil

	default:
		return record.NewNoop(), nil, nil
	}
}

// buildPolicies wires the upload kinds this deployment accepts. Each
// kind binds the image strategy to its own limits, filters, and
// variants.
func buildPolicies(cfg *config.Config, store storage.Store) map[string]*pipeline.Policy {
	base := pipeline.Options{
		Images: pipeline.ImageOptions{
			MaxBytes: cfg.Pipeline.MaxFileSize,
		},
		Storage: pipeline.StorageOptions{
			TempDir: cfg.Pipeline.TempDir,
		},
		Prove: pipeline.ProveOptions{
			Timeout: cfg.Pipeline.ProveTimeout,
		},
	}

	images := pipeline.NewPolicy("image", store, base)
	images.Space = "images"

	avatars := pipeline.NewPolicy("image", store, base.Merge(pipeline.Options{
		Images: pipeline.ImageOptions{
			MaxBytes:     5 * 1024 * 1024,
			AllowedMimes: []string{"image/png", "image/jpeg", "image/webp"},
		},
	}))
	avatars.Space = "avatars"
	avatars.FilterChain = []pipeline.Filter{
		pipeline.MinDimensions{Width: 64, Height: 64},
		pipeline.MaxDimensions{Width: 8192, Height: 8192},
	}
	avatars.Profiles = []pipeline.VariantProfile{
		{
			Name:   "thumbnail",
			Suffix: "-thumb",
			Chain: []pipeline.Transformer{
				pipeline.Resize{MaxWidth: 300, MaxHeight: 300, TempDir: cfg.Pipeline.TempDir},
			},
		},
	}

	return map[string]*pipeline.Policy{
		"image":  images,
		"avatar": avatars,
	}
}
