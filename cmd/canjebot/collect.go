package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/martagil/canjebot/internal/bus"
	"github.com/martagil/canjebot/internal/collector"
	"github.com/martagil/canjebot/internal/config"
	"github.com/martagil/canjebot/internal/filter"
	"github.com/martagil/canjebot/internal/status"
	"github.com/martagil/canjebot/internal/store"
)

var (
	collectConfigPath string
	collectSource     string
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one collection pass and store the verdicts",
	Long: `Collect postings from one source (or all configured sources) once,
apply the eligibility filter, and persist the results. No documents are
generated; this is the dry-run path for checking sources and filter
thresholds.`,
	RunE: runCollect,
}

func init() {
	collectCmd.Flags().StringVar(&collectConfigPath, "config", "config.json", "Path to the JSON config file")
	collectCmd.Flags().StringVar(&collectSource, "source", "", "Collect only this source (default: all)")
	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(collectConfigPath)
	if err != nil {
		return err
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Connect(ctx, databaseURL, bus.New(log.Default()))
	if err != nil {
		return err
	}
	defer st.Close()

	f := filter.New(filter.Thresholds{
		AnnualFloor:    cfg.Filter.SalaryFloorAnnual,
		MonthlyFloor:   cfg.Filter.SalaryFloorMonthly,
		MinWeeklyHours: cfg.Filter.MinWeeklyHours,
	}, cfg.Filter.BlockedCompanies)

	var matched bool
	for _, src := range cfg.Sources {
		if collectSource != "" && src.Name != collectSource {
			continue
		}
		matched = true
		if err := collectOnce(ctx, st, f, src); err != nil {
			return err
		}
	}
	if !matched {
		return fmt.Errorf("no configured source named %q", collectSource)
	}
	return nil
}

func collectOnce(ctx context.Context, st *store.Store, f *filter.Filter, src config.SourceConfig) error {
	if _, err := st.EnsureSource(ctx, src.Name, src.Kind, src.Profile); err != nil {
		return err
	}

	c, err := collector.New(src.Kind, src.Name, src.URL)
	if err != nil {
		return err
	}

	postings, err := c.Collect(ctx)
	if err != nil {
		return fmt.Errorf("collection failed for %s: %w", src.Name, err)
	}

	var newJobs, qualified, rejected int
	for _, p := range postings {
		externalID := p.ExternalID
		if externalID == "" {
			externalID = store.SyntheticExternalID(src.Name, p.Title, p.Company, p.Location)
		}

		verdict := f.Evaluate(filter.Attributes{
			Title:        p.Title,
			Company:      p.Company,
			Description:  p.Description,
			ContractType: p.ContractType,
			SalaryRaw:    p.SalaryRaw,
		})

		in := store.NewJobInput{
			Source:       src.Name,
			ExternalID:   externalID,
			URL:          p.URL,
			Title:        p.Title,
			Company:      p.Company,
			Location:     p.Location,
			SalaryRaw:    p.SalaryRaw,
			ContractType: p.ContractType,
			Description:  p.Description,
			Profile:      src.Profile,
			Status:       status.Qualified,
		}
		if !verdict.Eligible {
			in.Status = status.RejectedByFilter
			in.VerdictReason = verdict.String()
		}

		_, isNew, err := st.UpsertJob(ctx, in)
		if err != nil {
			return err
		}
		if !isNew {
			continue
		}
		newJobs++
		if verdict.Eligible {
			qualified++
		} else {
			rejected++
		}
	}

	fmt.Printf("%s: %d postings, %d new (%d qualified, %d rejected by filter)\n",
		src.Name, len(postings), newJobs, qualified, rejected)
	return nil
}
