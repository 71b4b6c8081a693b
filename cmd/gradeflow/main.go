// Package main is the entry point for the gradeflow CLI.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"gradeflow/config"
	"gradeflow/internal/cachestore"
	"gradeflow/internal/exam"
	"gradeflow/internal/gemini"
	"gradeflow/internal/grader"
	"gradeflow/internal/invoke"
	"gradeflow/internal/observability"
	"gradeflow/internal/server"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	var (
		examPath       = flag.String("exam", "", "Path to the exam definition file (required)")
		cacheDir       = flag.String("cache-dir", "", "Cache directory (overrides CACHE_DIR)")
		cacheBackend   = flag.String("cache-backend", "", "Cache backend: fs, memory, sqlite, redis (overrides CACHE_BACKEND)")
		serve          = flag.Bool("serve", false, "Expose the status server after the run")
		pretty         = flag.Bool("pretty", false, "Human-readable colored logs instead of JSON")
		regrade        = flag.Bool("regrade", false, "Bypass cache probes and recompute every result")
		skipModeration = flag.Bool("skip-moderation", false, "Skip the consistency moderation pass")
		reportsDir     = flag.String("reports-dir", "", "Generate performance reports into this directory")
		clearCache     = flag.String("clear-cache", "", "Clear one cache category (or 'all') and exit")
		versionFlag    = flag.Bool("version", false, "Print version information")
	)
	flag.Parse()

	if *versionFlag {
		fmt.Println("gradeflow " + Version)
		os.Exit(0)
	}

	var handler slog.Handler
	if *pretty {
		handler = tint.NewHandler(os.Stderr, &tint.Options{TimeFormat: time.Kitchen})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *cacheDir != "" {
		cfg.Cache.Dir = *cacheDir
	}
	if *cacheBackend != "" {
		cfg.Cache.Backend = config.Backend(*cacheBackend)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("failed to open cache store", "backend", cfg.Cache.Backend, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if *clearCache != "" {
		if err := clear(store, *clearCache); err != nil {
			logger.Error("failed to clear cache", "category", *clearCache, "error", err)
			os.Exit(1)
		}
		logger.Info("cache cleared", "category", *clearCache)
		return
	}

	if *examPath == "" {
		logger.Error("-exam is required")
		os.Exit(1)
	}
	ex, err := exam.Load(*examPath)
	if err != nil {
		logger.Error("failed to load exam", "path", *examPath, "error", err)
		os.Exit(1)
	}
	items, err := ex.WorkItems()
	if err != nil {
		logger.Error("failed to load work items", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.New(registry)

	client := gemini.New(cfg.Gemini.APIKey, cfg.Gemini.Timeout)

	models := invoke.Models{
		Default:    cfg.Gemini.Model,
		Moderation: cfg.Gemini.ModerationModel,
	}
	if ex.Models.Default != "" {
		models.Default = ex.Models.Default
	}
	if ex.Models.Moderation != "" {
		models.Moderation = ex.Models.Moderation
	}

	inv := invoke.New(store, client, invoke.Options{
		Models:  models,
		Policy:  cfg.Retry,
		Logger:  logger,
		Metrics: metrics,
		Regrade: *regrade,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A run cannot proceed without rubric text, so a scheme extraction
	// failure is fatal, unlike per-item degradation.
	if ex.SchemeFile != "" {
		doc, err := ex.SchemeDocument()
		if err != nil {
			logger.Error("failed to read marking scheme document", "error", err)
			os.Exit(1)
		}
		scheme, err := inv.ExtractMarkingScheme(ctx, doc)
		if err != nil {
			logger.Error("failed to extract marking scheme", "error", err)
			os.Exit(1)
		}
		schemes := make(map[string]string, len(scheme.Questions))
		for _, q := range scheme.Questions {
			schemes[q.Number] = q.Scheme
		}
		ex.FillSchemes(schemes)
	}

	g := grader.New(inv, ex, grader.Options{
		Logger:         logger,
		SkipModeration: *skipModeration,
		Reports:        *reportsDir != "",
	})
	result, err := g.Run(ctx, items)
	if err != nil {
		logger.Error("run aborted", "error", err)
		os.Exit(1)
	}

	if *reportsDir != "" {
		if err := writeReports(*reportsDir, result); err != nil {
			logger.Error("failed to write reports", "dir", *reportsDir, "error", err)
			os.Exit(1)
		}
		logger.Info("reports written", "dir", *reportsDir, "students", len(result.Reports))
	}

	out, err := json.MarshalIndent(result.Summary, "", "  ")
	if err != nil {
		logger.Error("failed to encode summary", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(out))

	if !*serve {
		return
	}

	srv := server.New(registry)
	srv.SetSummary(result.Summary)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down status server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	logger.Info("status server listening", "address", addr)
	if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("status server failed", "error", err)
		os.Exit(1)
	}
}

func writeReports(dir string, result *grader.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for sid, report := range result.Reports {
		path := filepath.Join(dir, sid+".md")
		if err := os.WriteFile(path, []byte(report), 0o644); err != nil {
			return err
		}
	}
	return os.WriteFile(filepath.Join(dir, "class_overview.md"), []byte(result.Overview), 0o644)
}

func openStore(cfg *config.Config, logger *slog.Logger) (cachestore.Store, error) {
	switch cfg.Cache.Backend {
	case config.BackendMemory:
		return cachestore.NewMemory(), nil
	case config.BackendSQLite:
		if err := os.MkdirAll(cfg.Cache.Dir, 0o755); err != nil {
			return nil, err
		}
		return cachestore.NewSQLite(filepath.Join(cfg.Cache.Dir, "gradeflow.db"), logger)
	case config.BackendRedis:
		return cachestore.NewRedis(cachestore.RedisConfig{URL: cfg.Cache.RedisURL}, logger)
	default:
		return cachestore.NewFS(cfg.Cache.Dir, logger), nil
	}
}

// clearer is implemented by the persistent backends. Memory has nothing
// worth clearing from a fresh process.
type clearer interface {
	Clear(category string) error
}

func clear(store cachestore.Store, category string) error {
	c, ok := store.(clearer)
	if !ok {
		return fmt.Errorf("backend does not support clearing")
	}
	if category != "all" {
		return c.Clear(category)
	}
	for _, cat := range cachestore.Categories() {
		if err := c.Clear(cat); err != nil {
			return err
		}
	}
	return nil
}
