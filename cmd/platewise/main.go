// Package main provides the platewise binary entry point.
// Platewise verifies LLM-generated recipes and product recommendations
// before they reach users.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	// Register LLM providers via init()
	_ "github.com/platewise/platewise/llm/providers"

	"github.com/platewise/platewise/cache"
	"github.com/platewise/platewise/config"
	"github.com/platewise/platewise/events"
	"github.com/platewise/platewise/execlog"
	"github.com/platewise/platewise/llm"
	"github.com/platewise/platewise/metrics"
	"github.com/platewise/platewise/model"
	"github.com/platewise/platewise/normalize"
	"github.com/platewise/platewise/pipeline"
	"github.com/platewise/platewise/pricing"
	"github.com/platewise/platewise/recipe"
	"github.com/platewise/platewise/server"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "platewise"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Recipe verification service",
		Long: `Platewise runs a two-model verification pipeline over recipe and
product-recommendation generation: a fast model drafts, a careful model
reviews, and the result is parsed, repaired, sanitized, cached, and
priced before anything reaches a user.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(serveCmd(&configPath, &logLevel))
	cmd.AddCommand(verifyCmd(&configPath, &logLevel))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func serveCmd(configPath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the verification HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(*configPath, *logLevel)
		},
	}
}

func verifyCmd(configPath, logLevel *string) *cobra.Command {
	var (
		items           string
		typeHint        string
		withPrices      bool
		recommendations bool
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Run one verification and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return verifyOnce(cmd.Context(), *configPath, *logLevel, items, typeHint, withPrices, recommendations)
		},
	}

	cmd.Flags().StringVar(&items, "items", "", "Comma-separated inventory items (required)")
	cmd.Flags().StringVar(&typeHint, "type", "", "Optional recipe type hint (e.g. dinner, dessert)")
	cmd.Flags().BoolVar(&withPrices, "prices", false, "Look up prices for missing ingredients")
	cmd.Flags().BoolVar(&recommendations, "recommendations", false, "Produce purchase recommendations instead of a recipe")
	_ = cmd.MarkFlagRequired("items")

	return cmd
}

// setup loads environment, logging, and configuration shared by both
// commands.
func setup(configPath, logLevel string) (*config.Config, *slog.Logger, error) {
	// Best effort; absence of a .env file is the normal case.
	_ = godotenv.Load()

	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
		if err == nil {
			err = cfg.Validate()
		}
	} else {
		cfg, err = config.NewLoader(logger).Load()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	return cfg, logger, nil
}

// buildPipeline assembles the verification pipeline from configuration.
// The returned cleanup releases the NATS mirror connection, if any.
func buildPipeline(cfg *config.Config, registry *model.Registry, logger *slog.Logger, reg *prometheus.Registry) (*pipeline.Pipeline, *events.Publisher, *execlog.Store, func(), error) {
	client := llm.NewClient(registry, llm.WithLogger(logger))

	generator, err := pipeline.NewLLMGenerator(client, registry)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("configure generator: %w", err)
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithGeneratorTimeout(cfg.Pipeline.GeneratorTimeout),
		pipeline.WithValidatorTimeout(cfg.Pipeline.ValidatorTimeout),
		pipeline.WithModifiedDelta(cfg.Pipeline.ModifiedDelta),
		pipeline.WithNormalizeOptions(normalize.Options{
			MaxItems:      cfg.Pipeline.MaxItems,
			MaxItemLength: cfg.Pipeline.MaxItemLength,
		}),
	}

	// The validator is optional: without one every run degrades to the
	// unvalidated draft.
	validator, err := pipeline.NewLLMValidator(client, registry)
	if err != nil {
		logger.Warn("No validator model configured, drafts will not be reviewed", "error", err)
	} else {
		opts = append(opts, pipeline.WithValidator(validator))
	}

	backend := cache.NewMemory(cfg.Cache.MaxEntries, 0)
	opts = append(opts, pipeline.WithCache(
		cache.NewStore(backend, cache.WithTTL(cfg.Cache.TTL), cache.WithLogger(logger))))

	if cfg.Pricing.BaseURL != "" {
		searcher := pricing.NewHTTPClient(cfg.Pricing.BaseURL, pricing.WithClientLogger(logger))
		opts = append(opts, pipeline.WithLookup(pricing.NewLookup(searcher,
			pricing.WithTopN(cfg.Pricing.TopN),
			pricing.WithPerItemTimeout(cfg.Pricing.PerItemTimeout),
			pricing.WithMaxConcurrent(cfg.Pricing.MaxConcurrent),
			pricing.WithLogger(logger),
		)))
	}

	pub := events.NewPublisher(events.WithLogger(logger))
	opts = append(opts, pipeline.WithEvents(pub))

	logOpts := []execlog.StoreOption{execlog.WithCapacity(cfg.Log.Capacity)}
	cleanup := func() {}
	if cfg.NATS.URL != "" {
		mirror, err := execlog.NewMirror(cfg.NATS.URL,
			execlog.WithSubject(cfg.NATS.Subject),
			execlog.WithMirrorLogger(logger))
		if err != nil {
			// Mirroring is best effort; the in-memory log still works.
			logger.Warn("Failed to connect execution log mirror", "url", cfg.NATS.URL, "error", err)
		} else {
			logOpts = append(logOpts, execlog.WithFinalizeHook(mirror.Publish))
			cleanup = mirror.Close
		}
	}
	logs := execlog.NewStore(logOpts...)
	opts = append(opts, pipeline.WithExecLog(logs))

	if reg != nil {
		opts = append(opts, pipeline.WithMetrics(metrics.New(reg)))
	}

	return pipeline.New(generator, opts...), pub, logs, cleanup, nil
}

func serve(configPath, logLevel string) error {
	cfg, logger, err := setup(configPath, logLevel)
	if err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	registry := cfg.Registry()
	pipe, pub, logs, cleanup, err := buildPipeline(cfg, registry, logger, promReg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Hot-reload model selection when a config file is in play.
	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, registry, logger)
		if err != nil {
			logger.Warn("Config watcher unavailable", "error", err)
		} else {
			go watcher.Run(ctx)
		}
	}

	srv := server.New(pipe,
		server.WithEvents(pub),
		server.WithExecLog(logs),
		server.WithLogger(logger),
		server.WithGatherer(promReg),
	)

	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Platewise ready", "version", Version, "addr", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func verifyOnce(ctx context.Context, configPath, logLevel, items, typeHint string, withPrices, recommendations bool) error {
	cfg, logger, err := setup(configPath, logLevel)
	if err != nil {
		return err
	}

	pipe, _, _, cleanup, err := buildPipeline(cfg, cfg.Registry(), logger, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	kind := recipe.KindRecipe
	if recommendations {
		kind = recipe.KindRecommendations
	}

	var list []string
	for _, item := range strings.Split(items, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			list = append(list, trimmed)
		}
	}

	result, err := pipe.Run(ctx, pipeline.RunRequest{
		Items:      list,
		TypeHint:   typeHint,
		Kind:       kind,
		WithPrices: withPrices,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
