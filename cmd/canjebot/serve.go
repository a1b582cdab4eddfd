package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/martagil/canjebot/internal/bus"
	"github.com/martagil/canjebot/internal/config"
	"github.com/martagil/canjebot/internal/engine"
	"github.com/martagil/canjebot/internal/filter"
	"github.com/martagil/canjebot/internal/generate"
	"github.com/martagil/canjebot/internal/review"
	"github.com/martagil/canjebot/internal/scheduler"
	"github.com/martagil/canjebot/internal/server"
	"github.com/martagil/canjebot/internal/store"
	"github.com/martagil/canjebot/internal/submit"
)

var (
	serveConfigPath string
	servePort       int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline and the review API",
	Long: `Run the full pipeline: scheduled collection, filtering, document
generation, the human review API, and submission.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "config.json", "Path to the JSON config file")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.HTTPPort = servePort
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	logger := log.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifier := bus.New(logger)

	st, err := store.Connect(ctx, databaseURL, notifier)
	if err != nil {
		return err
	}
	defer st.Close()

	for _, src := range cfg.Sources {
		if _, err := st.EnsureSource(ctx, src.Name, src.Kind, src.Profile); err != nil {
			return err
		}
	}

	generator, err := generate.NewGemini(ctx, apiKey, cfg.Generation.Model, cfg.Generation.QualityMinimum)
	if err != nil {
		return err
	}
	defer generator.Close()

	f := filter.New(filter.Thresholds{
		AnnualFloor:    cfg.Filter.SalaryFloorAnnual,
		MonthlyFloor:   cfg.Filter.SalaryFloorMonthly,
		MinWeeklyHours: cfg.Filter.MinWeeklyHours,
	}, cfg.Filter.BlockedCompanies)

	gate := review.New(st, notifier, logger, cfg.ReviewWindow.Std(), cfg.ReviewWindow.Std()-cfg.ReviewWarning.Std())
	defer gate.Stop()

	applicant := submit.Applicant{
		FullName: os.Getenv("APPLICANT_NAME"),
		Email:    os.Getenv("APPLICANT_EMAIL"),
		Phone:    os.Getenv("APPLICANT_PHONE"),
	}

	eng := engine.New(st, f, generator, submit.NewBrowser(0), gate, applicant, logger, cfg)

	sched, err := scheduler.New(st, notifier, logger, cfg, eng.Ingest)
	if err != nil {
		return err
	}

	srv := server.New(cfg.HTTPPort, st, gate, eng, notifier, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(ctx) })
	g.Go(func() error { return sched.Run(ctx) })
	g.Go(func() error { return srv.Start(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Printf("canjebot: stopped")
	return nil
}
