// Command ingest is the Scoracle Lake ingestion CLI.
//
// Usage:
//
//	scoracle-ingest run
//	scoracle-ingest backfill --from 2025-10-21 --to 2026-01-15 --workers 8
//	scoracle-ingest schedule --run-on-start
//	scoracle-ingest ledger status --from 2026-01-01 --to 2026-01-15 --entity game
//	scoracle-ingest dimensions
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/albapepper/scoracle-lake/internal/config"
	"github.com/albapepper/scoracle-lake/internal/ledger"
	"github.com/albapepper/scoracle-lake/internal/metrics"
	"github.com/albapepper/scoracle-lake/internal/model"
	"github.com/albapepper/scoracle-lake/internal/pipeline"
	"github.com/albapepper/scoracle-lake/internal/schedule"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

// overrides are the root flags that take precedence over the environment.
type overrides struct {
	workers      int
	entities     []string
	noShotCharts bool
}

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	var ov overrides
	root := &cobra.Command{
		Use:           "scoracle-ingest",
		Short:         "Scoracle Lake NBA stats ingestion CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().IntVar(&ov.workers, "workers", 0, "Concurrent task workers (overrides INGEST_WORKERS)")
	root.PersistentFlags().StringSliceVar(&ov.entities, "entities", nil, "Entity types to ingest (game,player_stat,team_stat,standing,shot_chart)")
	root.PersistentFlags().BoolVar(&ov.noShotCharts, "no-shot-charts", false, "Skip shot chart ingestion")

	root.AddCommand(runCmd(&ov))
	root.AddCommand(backfillCmd(&ov))
	root.AddCommand(scheduleCmd(&ov))
	root.AddCommand(ledgerCmd(&ov))
	root.AddCommand(dimensionsCmd(&ov))

	if err := root.Execute(); err != nil {
		logger.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// run / backfill commands
// --------------------------------------------------------------------------

func runCmd(ov *overrides) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Ingest yesterday and today in the league timezone",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, ov, func(ctx context.Context, e *engine) error {
				return e.runRange(ctx, schedule.DailyRange(time.Now(), e.cfg.LeagueTimezone))
			})
		},
	}
}

func backfillCmd(ov *overrides) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Ingest an explicit date range, skipping dates the ledger already holds",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := parseRange(from, to)
			if err != nil {
				return err
			}
			return withEngine(cmd, ov, func(ctx context.Context, e *engine) error {
				return e.runRange(ctx, r)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "First date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Last date (YYYY-MM-DD), defaults to --from")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

// runRange runs the orchestrator once and turns a failed report into an
// error so the process exits non-zero.
func (e *engine) runRange(ctx context.Context, r model.DateRange) error {
	if e.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.RunTimeout)
		defer cancel()
	}

	report := e.orchestrator.Run(ctx, r)
	for _, f := range report.Failures {
		logger.Error("task failed",
			"task", f.Task, "stage", f.Stage, "kind", f.Kind, "error", f.Error)
	}
	for _, w := range report.Warnings {
		logger.Warn("run warning", "warning", w)
	}
	logger.Info("Run finished",
		"run_id", report.RunID,
		"result", report.Result(e.cfg.FailureThreshold),
		"summary", report.Summary())
	return report.Err(e.cfg.FailureThreshold)
}

// --------------------------------------------------------------------------
// dimensions command
// --------------------------------------------------------------------------

func dimensionsCmd(ov *overrides) *cobra.Command {
	return &cobra.Command{
		Use:   "dimensions",
		Short: "Reload the teams and players datasets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, ov, func(ctx context.Context, e *engine) error {
				results, err := e.orchestrator.RefreshDimensions(ctx)
				if err != nil {
					return err
				}
				return printDimensions(cmd.OutOrStdout(), results)
			})
		},
	}
}

func printDimensions(out io.Writer, results []pipeline.DimensionResult) error {
	table := tablewriter.NewWriter(out)
	table.Header([]string{"Dataset", "Key", "Rows", "Dropped"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignLeft
	})

	data := make([][]string, 0, len(results))
	for _, r := range results {
		data = append(data, []string{
			string(r.Entity),
			r.Key,
			strconv.Itoa(r.Rows),
			strconv.Itoa(r.Dropped),
		})
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

// --------------------------------------------------------------------------
// ledger command
// --------------------------------------------------------------------------

func ledgerCmd(ov *overrides) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the ingestion ledger",
	}
	cmd.AddCommand(ledgerStatusCmd(ov))
	return cmd
}

func ledgerStatusCmd(ov *overrides) *cobra.Command {
	var (
		from, to string
		entity   string
		status   string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print ledger entries for a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := ledger.Filter{Limit: limit}
			if from != "" {
				r, err := parseRange(from, to)
				if err != nil {
					return err
				}
				f.From, f.To = r.From, r.To
			}
			if entity != "" {
				e, err := model.ParseEntityType(entity)
				if err != nil {
					return err
				}
				f.Entity = e
			}
			if status != "" {
				f.Status = model.Status(status)
				if !f.Status.Valid() {
					return fmt.Errorf("unknown status %q", status)
				}
			}

			ctx, cancel := signalContext()
			defer cancel()
			cfg, err := loadConfig(cmd, ov)
			if err != nil {
				return err
			}
			store, err := ledger.Open(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer store.Close()

			entries, err := store.List(ctx, f)
			if err != nil {
				return err
			}
			return printEntries(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "First date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Last date (YYYY-MM-DD), defaults to --from")
	cmd.Flags().StringVar(&entity, "entity", "", "Filter by entity type")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, complete, failed)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum entries; 0 = all")
	return cmd
}

// printEntries renders ledger entries as a table.
func printEntries(out io.Writer, entries []model.LedgerEntry) error {
	table := tablewriter.NewWriter(out)
	table.Header([]string{"Date", "Entity", "Status", "Attempts", "Last Attempt", "Error"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignLeft
	})

	data := make([][]string, 0, len(entries))
	for _, e := range entries {
		last := "-"
		if !e.LastAttemptAt.IsZero() {
			last = e.LastAttemptAt.UTC().Format(time.RFC3339)
		}
		data = append(data, []string{
			e.Date,
			string(e.Entity),
			string(e.Status),
			strconv.Itoa(e.AttemptCount),
			last,
			e.LastError,
		})
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// loadConfig reads the environment, applies flag overrides and sets the
// log level.
func loadConfig(cmd *cobra.Command, ov *overrides) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := applyOverrides(cmd, cfg, ov); err != nil {
		return nil, err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return cfg, nil
}

func applyOverrides(cmd *cobra.Command, cfg *config.Config, ov *overrides) error {
	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Workers = ov.workers
	}
	if flags.Changed("entities") {
		entities := make([]model.EntityType, 0, len(ov.entities))
		for _, s := range ov.entities {
			e, err := model.ParseEntityType(strings.TrimSpace(s))
			if err != nil {
				return err
			}
			entities = append(entities, e)
		}
		cfg.Entities = entities
	}
	if ov.noShotCharts {
		kept := cfg.Entities[:0:0]
		for _, e := range cfg.Entities {
			if e != model.EntityShotChart {
				kept = append(kept, e)
			}
		}
		cfg.Entities = kept
	}
	if len(cfg.Entities) == 0 {
		return fmt.Errorf("no entity types left to ingest")
	}
	return cfg.Validate()
}

func parseRange(from, to string) (model.DateRange, error) {
	start, err := model.ParseDate(from)
	if err != nil {
		return model.DateRange{}, fmt.Errorf("--from: %w", err)
	}
	end := start
	if to != "" {
		if end, err = model.ParseDate(to); err != nil {
			return model.DateRange{}, fmt.Errorf("--to: %w", err)
		}
	}
	return model.NewDateRange(start, end)
}

// withEngine handles config loading, wiring and context cancellation.
func withEngine(cmd *cobra.Command, ov *overrides, fn func(ctx context.Context, e *engine) error) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig(cmd, ov)
	if err != nil {
		return err
	}

	e, err := newEngine(ctx, cfg, metrics.New(cfg.MetricsEnabled))
	if err != nil {
		return err
	}
	defer e.Close()

	logger.Info("Engine ready",
		"ledger", cfg.LedgerBackend,
		"storage", cfg.StorageBackend,
		"workers", cfg.Workers,
		"entities", cfg.Entities)
	return fn(ctx, e)
}

var _ schedule.Runner = (*pipeline.Orchestrator)(nil)
