// Command recon runs the reconciliation pipeline against local files: it
// generates the editable pivot table from a granular export, and applies an
// edited pivot back onto the granular records.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/planora/forecast-recon/internal/domain"
	"github.com/planora/forecast-recon/internal/pivot"
	"github.com/planora/forecast-recon/internal/recon"
	"github.com/planora/forecast-recon/internal/tabular"
	"github.com/planora/forecast-recon/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "recon",
		Usage: "Aggregate granular forecast records and reconcile edited aggregates back onto them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			logger.SetLevel(c.String("log-level"))
			return nil
		},
		Commands: []*cli.Command{
			pivotCommand(),
			reconcileCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("command failed")
	}
}

func pivotCommand() *cli.Command {
	return &cli.Command{
		Name:  "pivot",
		Usage: "Build the editable aggregate table from a granular record file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Usage: "Granular input file (csv or xlsx)", Required: true},
			&cli.StringFlag{Name: "out", Usage: "Pivot output file (csv or xlsx)", Required: true},
			&cli.StringFlag{Name: "granularity", Usage: "Bucket granularity: day, week or month", Value: "month"},
			&cli.BoolFlag{Name: "group-by-site", Usage: "Group rows by site and location in addition to product", Value: true},
		},
		Action: func(c *cli.Context) error {
			granularity, ok := domain.ParseGranularity(c.String("granularity"))
			if !ok {
				return fmt.Errorf("granularity must be one of day, week, month")
			}

			records, diags, err := readGranular(c.String("in"))
			if err != nil {
				return err
			}
			reportDiagnostics(diags)

			table, err := pivot.Build(records, granularity, c.Bool("group-by-site"))
			if err != nil {
				return err
			}

			if err := writeAggregate(c.String("out"), table); err != nil {
				return err
			}

			logger.Log.Info().
				Int("rows", len(table.Keys)).
				Int("buckets", len(table.Buckets)).
				Str("out", c.String("out")).
				Msg("pivot table written")
			return nil
		},
	}
}

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "Apply an edited aggregate table back onto the original granular records",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Usage: "Original granular input file (csv or xlsx)", Required: true},
			&cli.StringFlag{Name: "edited", Usage: "Edited pivot file (csv or xlsx)", Required: true},
			&cli.StringFlag{Name: "out", Usage: "Final output csv (headerless, fixed column order)", Required: true},
		},
		Action: func(c *cli.Context) error {
			records, diags, err := readGranular(c.String("in"))
			if err != nil {
				return err
			}
			reportDiagnostics(diags)

			edited, err := readAggregate(c.String("edited"))
			if err != nil {
				return err
			}

			result, err := recon.Apply(records, edited)
			if err != nil {
				return err
			}

			for _, nc := range result.NewCombinations {
				logger.Log.Warn().
					Str("site", nc.Key.Site.String()).
					Str("product", nc.Key.Product).
					Str("bucket", nc.Bucket.Label).
					Float64("qty", nc.Qty).
					Msg("new combination introduced that does not exist in the original file")
			}
			reportDiagnostics(result.Diagnostics)

			out, err := os.Create(c.String("out"))
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer out.Close()

			if err := tabular.WriteGranular(out, result.Records); err != nil {
				return err
			}

			logger.Log.Info().
				Int("unchanged", result.Unchanged).
				Int("changed", result.Changed).
				Int("new", result.New).
				Int("rows", len(result.Records)).
				Str("out", c.String("out")).
				Msg("reconciled output written")
			return nil
		},
	}
}

func readGranular(path string) ([]domain.GranularRecord, domain.Diagnostics, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.Diagnostics{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if isXLSX(path) {
		return tabular.ReadGranularXLSX(f)
	}
	return tabular.ReadGranular(f)
}

func readAggregate(path string) (*domain.AggregateTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if isXLSX(path) {
		return tabular.ReadAggregateXLSX(f)
	}
	return tabular.ReadAggregate(f)
}

func writeAggregate(path string, table *domain.AggregateTable) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if isXLSX(path) {
		return tabular.WriteAggregateXLSX(f, table)
	}
	return tabular.WriteAggregate(f, table)
}

func reportDiagnostics(diags domain.Diagnostics) {
	for _, issue := range diags.BadDates {
		logger.Log.Warn().Int("row", issue.Row).Str("value", issue.Value).Msg(issue.Reason)
	}
	for _, issue := range diags.InvalidQty {
		logger.Log.Warn().Int("row", issue.Row).Str("value", issue.Value).Msg(issue.Reason)
	}
	for _, issue := range diags.DroppedRows {
		logger.Log.Warn().Str("value", issue.Value).Msg(issue.Reason)
	}
}

func isXLSX(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xlsx")
}
