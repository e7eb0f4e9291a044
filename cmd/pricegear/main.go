package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bdpricegear/pricegear/catalog"
	"github.com/bdpricegear/pricegear/compare"
	"github.com/bdpricegear/pricegear/config"
	"github.com/bdpricegear/pricegear/crawler"
	"github.com/bdpricegear/pricegear/ingest"
	"github.com/bdpricegear/pricegear/metrics"
	"github.com/bdpricegear/pricegear/models"
	"github.com/bdpricegear/pricegear/orchestrator"
	"github.com/bdpricegear/pricegear/retry"
	"github.com/bdpricegear/pricegear/shops"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "pricegear",
		Short:         "Scrape Bangladeshi PC-part shops into a price catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger, level := newLogger(verbose)
			slog.SetDefault(logger)
			slog.SetLogLoggerLevel(level.Level())
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newIngestCmd(), newCompareCmd(), newWatchCmd())
	return root
}

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [categories...]",
		Short: "Crawl every shop and merge the results into the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			categories := app.cfg.Categories
			if len(args) > 0 {
				categories = args
			}

			start := time.Now()
			result, err := app.service.IngestAll(app.ctx, categories)
			if err != nil {
				slog.Error("ingest failed", slog.Any("error", err))
				return err
			}
			printIngestSummary(result, categories, time.Since(start))
			return nil
		},
	}
}

func newCompareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <query>",
		Short: "Compare a product's price across every shop",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			query := strings.Join(args, " ")
			results, err := app.comparer.Compare(app.ctx, query)
			if err != nil {
				if errors.Is(err, compare.ErrNoResults) {
					fmt.Printf("No results for %q in any shop\n", query)
					return nil
				}
				return err
			}
			printComparison(query, results)
			return nil
		},
	}
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [categories...]",
		Short: "Re-crawl the configured categories on an interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			categories := app.cfg.Categories
			if len(args) > 0 {
				categories = args
			}

			slog.Info("watch mode started",
				slog.Duration("interval", app.cfg.WatchInterval),
				slog.Int("categories", len(categories)),
			)

			ticker := time.NewTicker(app.cfg.WatchInterval)
			defer ticker.Stop()
			for {
				start := time.Now()
				result, err := app.service.IngestAll(app.ctx, categories)
				if err != nil {
					if app.ctx.Err() != nil {
						return nil
					}
					slog.Error("scheduled ingest failed", slog.Any("error", err))
				} else {
					slog.Info("scheduled ingest complete",
						slog.Int("created", result.Created),
						slog.Int("updated", result.Updated),
						slog.Duration("duration", time.Since(start).Round(time.Second)),
					)
				}

				select {
				case <-app.ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
}

// app holds the wired pipeline shared by every subcommand.
type app struct {
	ctx      context.Context
	cfg      config.Config
	store    catalog.Store
	service  *ingest.Service
	comparer *compare.Comparer

	stop          context.CancelFunc
	metricsServer *http.Server
}

func newApp(parent context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return nil, err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	m := metrics.New()

	adapters, err := shops.Build(shops.DefaultConfigs(), shops.Options{
		UserAgent:      cfg.UserAgent,
		RequestTimeout: cfg.RequestTimeout,
		SettleDelay:    cfg.SettleDelay,
	})
	if err != nil {
		stop()
		return nil, fmt.Errorf("building shop adapters: %w", err)
	}

	var store catalog.Store
	if cfg.DatabaseURL != "" {
		pg, err := catalog.NewPG(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
		if err != nil {
			stop()
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			stop()
			return nil, fmt.Errorf("ensuring schema: %w", err)
		}
		store = pg
	} else {
		slog.Warn("no database configured, catalog will not survive exit")
		store = catalog.NewMemory()
	}

	netRetry := retry.Policy{
		MaxRetries: cfg.MaxRetries,
		Backoff:    cfg.RetryBackoff,
		BackoffMax: cfg.RetryBackoffMax,
	}
	storeRetry := retry.Policy{
		MaxRetries: cfg.StoreRetries,
		Backoff:    cfg.StoreBackoff,
		BackoffMax: cfg.StoreBackoffMax,
	}
	crawlCfg := crawler.Config{
		PageCap:        cfg.PageCap,
		EmptyPageLimit: cfg.EmptyPageLimit,
		PageDelay:      cfg.PageDelay,
	}

	orch := orchestrator.New(adapters, crawlCfg, netRetry, cfg.ShopTimeout, m)
	merger := ingest.NewMerger(store, storeRetry, cfg.BatchSize, m)

	a := &app{
		ctx:      ctx,
		cfg:      cfg,
		store:    store,
		service:  ingest.NewService(orch, merger),
		comparer: compare.New(adapters, cfg.CacheSize, cfg.CacheTTL, cfg.CompareTimeout, m),
		stop:     stop,
	}

	if cfg.MetricsAddr != "" {
		a.metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	return a, nil
}

func (a *app) Close() {
	if a.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}
	a.store.Close()
	a.stop()
}

func printIngestSummary(result ingest.Result, categories []string, duration time.Duration) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Ingest complete")
	fmt.Printf("  Categories:      %d\n", len(categories))
	fmt.Printf("  Entries created: %d\n", result.Created)
	fmt.Printf("  Entries updated: %d\n", result.Updated)
	fmt.Printf("  Items skipped:   %d\n", result.SkippedItems)
	fmt.Printf("  Batches skipped: %d\n", result.SkippedBatches)
	fmt.Printf("  Duration:        %v\n", duration.Round(time.Millisecond))
	fmt.Println(separator)
}

func printComparison(query string, results []models.ShopResult) {
	fmt.Printf("Results for %q\n", query)
	for _, shop := range results {
		fmt.Printf("\n%s (%d products)\n", shop.ShopName, len(shop.Products))
		for _, p := range shop.Products {
			price := "out of stock"
			if p.Price.Valid {
				price = "Tk " + p.Price.Decimal.StringFixed(2)
			}
			fmt.Printf("  %-60.60s %14s\n", p.Name, price)
		}
	}
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
