package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"invoicechat/internal/agent"
	"invoicechat/internal/bus"
	"invoicechat/internal/classify"
	"invoicechat/internal/config"
	"invoicechat/internal/conversation"
	"invoicechat/internal/domain"
	"invoicechat/internal/interpreter"
	"invoicechat/internal/metrics"
	"invoicechat/internal/provider"
	"invoicechat/internal/publish"
	"invoicechat/internal/records"
)

// app is the fully wired engine and everything it owns.
type app struct {
	cfg        *config.Config
	client     *provider.HTTPClient
	cache      records.Cache
	source     *records.HTTPSource
	updates    *bus.UpdateBus
	publisher  *publish.Publisher
	engine     *agent.Engine
	metrics    *metrics.Collector
	metricsSrv *http.Server
	logFile    io.Closer
}

// loadConfig reads the config file, falling back to defaults when it is
// missing so that chat works before `init` has been run.
func loadConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("config not found, using defaults", "path", cfgPath)
		return config.Defaults(), nil
	}
	return nil, err
}

// setupLogger replaces the bootstrap logger with one at the configured level.
// The returned closer is nil unless a log file was opened.
func setupLogger(cfg *config.Config) (io.Closer, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.General.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	var (
		w      io.Writer = os.Stderr
		closer io.Closer
	)
	if cfg.General.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
			return nil, fmt.Errorf("log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w, closer = f, f
	}
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	return closer, nil
}

func openCache(cfg *config.Config) (records.Cache, error) {
	switch strings.ToLower(cfg.Cache.Driver) {
	case "", "memory":
		return records.NewMemoryCache(), nil
	case "sqlite":
		c, err := records.NewSQLiteCache(cfg.Cache.DBPath, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Cache.Driver)
	}
}

// buildApp wires every component from cfg. onFrame may be nil.
func buildApp(cfg *config.Config, onFrame func(domain.Frame)) (*app, error) {
	logFile, err := setupLogger(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logFile: logFile}

	aliases := interpreter.DefaultAliases()
	if cfg.Interpreter.AliasFile != "" {
		if aliases, err = interpreter.LoadAliasFile(cfg.Interpreter.AliasFile); err != nil {
			a.Close()
			return nil, err
		}
	}
	interp := interpreter.New(interpreter.Config{Aliases: aliases, Logger: logger})

	toolChoice, err := domain.ParseToolChoice(cfg.Agent.ToolChoice)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
	}

	timeout := time.Duration(cfg.Backend.TimeoutSeconds) * time.Second
	a.client = provider.NewHTTPClient(provider.HTTPClientConfig{
		APIBase:    cfg.Backend.APIBase,
		APIKey:     cfg.Backend.APIKey,
		InvokePath: cfg.Backend.InvokePath,
		StreamPath: cfg.Backend.StreamPath,
		Timeout:    timeout,
		MaxRetries: cfg.Backend.MaxRetries,
		Logger:     logger,
	})
	a.source = records.NewHTTPSource(records.HTTPSourceConfig{
		APIBase:    cfg.Backend.APIBase,
		APIKey:     cfg.Backend.APIKey,
		Path:       cfg.Backend.RecordsPath,
		HTTPClient: provider.SharedHTTPClient(timeout),
		Aliases:    aliases,
		Logger:     logger,
	})

	if a.cache, err = openCache(cfg); err != nil {
		a.Close()
		return nil, fmt.Errorf("record cache: %w", err)
	}

	a.updates = bus.New(bus.Config{Logger: logger})
	a.publisher = publish.New(publish.Config{
		Interpreter: interp,
		Cache:       a.cache,
		Source:      a.source,
		Bus:         a.updates,
		Metrics:     a.metrics,
		Logger:      logger,
	})

	a.engine = agent.NewEngine(agent.EngineConfig{
		Client:       a.client,
		Interpreter:  interp,
		Classifier:   classify.New(classify.Config{Logger: logger}),
		Publisher:    a.publisher,
		IDs:          conversation.UUIDGenerator{},
		Metrics:      a.metrics,
		Logger:       logger,
		Mode:         agent.Mode(cfg.Agent.Mode),
		MaxSteps:     cfg.Agent.MaxSteps,
		ToolChoice:   toolChoice,
		Model:        cfg.Agent.Model,
		SystemPrompt: cfg.Agent.SystemPrompt,
		TurnTimeout:  time.Duration(cfg.Agent.TurnTimeoutSeconds) * time.Second,
		OnFrame:      onFrame,
	})
	return a, nil
}

// loadListing fills the record cache from the listing endpoint so that the
// first single-record answer can be reconciled. Failure only costs that.
func (a *app) loadListing(ctx context.Context) {
	recs, err := a.publisher.Refresh(ctx)
	if err != nil {
		logger.Warn("initial listing load failed", "err", err)
		return
	}
	logger.Debug("listing loaded", "records", len(recs))
}

// serveMetrics starts the Prometheus endpoint when enabled. It stops when
// ctx is cancelled.
func (a *app) serveMetrics(ctx context.Context) {
	if a.metrics == nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, a.metrics.Handler())
	a.metricsSrv = &http.Server{
		Addr:              a.cfg.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics endpoint listening", "addr", a.cfg.Metrics.Listen, "path", a.cfg.Metrics.Path)
		if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.metricsSrv.Shutdown(shutdownCtx)
	}()
}

func (a *app) Close() {
	if a.updates != nil {
		a.updates.Close()
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			logger.Warn("closing record cache", "err", err)
		}
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}
