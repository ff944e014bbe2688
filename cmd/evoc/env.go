package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/client"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/config"
	evctx "github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/context"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/logging"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/metrics"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/pipeline"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/render"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/store"
)

// env holds what a command needs. Commands that only read the store never
// build a gateway, so they work without an API key.
type env struct {
	cfg     *config.Config
	store   *store.Store
	hl      *render.Highlighter
	coord   *pipeline.Coordinator
	metrics *metrics.Metrics
	server  *http.Server
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = config.GetConfigPath()
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Version = version

	if dbPath != "" {
		cfg.Storage.DBPath = dbPath
	}
	if model != "" {
		cfg.Model.Name = model
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) error {
	level := logging.ParseLevel(cfg.Logging.Level)
	format := logging.ParseFormat(cfg.Logging.Format)
	if cfg.Logging.File != "" {
		return logging.OpenFile(cfg.Logging.File, level, format)
	}
	logging.ConfigureFormat(level, format, os.Stderr)
	return nil
}

// openEnv loads config, logging and the store.
func openEnv() (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := setupLogging(cfg); err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	st, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		logging.Close()
		return nil, err
	}

	color := !noColor && isatty.IsTerminal(os.Stdout.Fd())
	return &env{
		cfg:   cfg,
		store: st,
		hl:    render.NewHighlighter("monokai", color),
	}, nil
}

// openPipeline is openEnv plus the gateway chain and a coordinator.
func openPipeline(ctx context.Context, metricsAddr string) (*env, error) {
	return openPipelineWith(ctx, metricsAddr, nil)
}

// openPipelineWith lets the caller adjust the loaded config before the
// coordinator is built.
func openPipelineWith(ctx context.Context, metricsAddr string, adjust func(*env)) (*env, error) {
	e, err := openEnv()
	if err != nil {
		return nil, err
	}
	if adjust != nil {
		adjust(e)
	}
	if err := e.cfg.RequireAuth(); err != nil {
		e.close()
		return nil, err
	}

	budget := evctx.NewBudgeter(e.cfg.Context.Encoding)
	gw, err := client.New(ctx, e.cfg, &progress{}, budget.Estimate)
	if err != nil {
		e.close()
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	if metricsAddr == "" && e.cfg.Metrics.Enabled {
		metricsAddr = e.cfg.Metrics.Addr
	}
	var opts []pipeline.Option
	if metricsAddr != "" {
		e.metrics = metrics.New(nil)
		opts = append(opts, pipeline.WithMetrics(e.metrics))
		e.serveMetrics(metricsAddr)
	}

	e.coord = pipeline.New(e.store, gw, budget, pipeline.Config{
		MaxParseRetries:      e.cfg.Pipeline.MaxParseRetries,
		MaxContextTokens:     e.cfg.Context.MaxContextTokens,
		SummaryTriggerTokens: e.cfg.Context.SummaryTriggerTokens,
		Cascade:              pipeline.CascadePolicy(e.cfg.Pipeline.Cascade),
		BatchConcurrency:     e.cfg.Pipeline.BatchConcurrency,
	}, opts...)
	return e, nil
}

// inspector returns a coordinator without a gateway, for commands that read
// or settle checkpointed sessions but never run an agent.
func (e *env) inspector() *pipeline.Coordinator {
	return pipeline.New(e.store, nil, evctx.NewHeuristicBudgeter(), pipeline.DefaultConfig())
}

func (e *env) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.metrics.Handler())
	e.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("metrics: server stopped", "addr", addr, "error", err)
		}
	}()
	logging.Info("metrics: serving", "addr", addr)
}

func (e *env) close() {
	if e.coord != nil {
		e.coord.Close()
	}
	if e.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = e.server.Shutdown(ctx)
		cancel()
	}
	if err := e.store.Close(); err != nil {
		logging.Warn("store: close failed", "error", err)
	}
	logging.Close()
}

// progress reports gateway retries on stderr.
type progress struct{}

func (progress) OnRetry(attempt, maxAttempts int, delay time.Duration, reason string) {
	fmt.Fprintf(os.Stderr, "  retry %d/%d in %s: %s\n", attempt, maxAttempts, delay.Round(time.Millisecond), reason)
}

func (progress) OnRateLimit(waited time.Duration) {
	if waited >= time.Second {
		fmt.Fprintf(os.Stderr, "  rate limited, waited %s\n", waited.Round(time.Second))
	}
}

func (progress) OnError(error, bool) {}

var _ client.StatusCallback = progress{}
