package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"social-brand-analyzer/pkg/database"
	"social-brand-analyzer/pkg/models"
	"social-brand-analyzer/pkg/report"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := database.Initialize(cmd.Context(), config.DatabaseURL); err != nil {
			return err
		}
		defer database.Close()

		return database.Migrate(database.DB)
	},
}

// brandsFile is the YAML input of the analyze command
type brandsFile struct {
	Brands          map[string]models.BrandConfig       `yaml:"brands"`
	ReferenceImages map[string]models.ReferenceImageSet `yaml:"reference_images"`
}

var (
	analyzeBrandsPath string
	analyzeOutPath    string
	analyzeDays       int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze brands from a YAML file and write the posts as CSV",
	Example: `  social-brand-analyzer analyze --brands brands.yaml --out report.csv

brands.yaml:
  brands:
    BYD:
      instagram_url: https://www.instagram.com/byd_auto/
      facebook_url: https://www.facebook.com/bydauto
      keywords: [SEAL, ATTO 3, DOLPHIN]
  reference_images:
    BYD:
      SEAL: [./refs/seal.jpg]`,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, err := readBrandsFile(analyzeBrandsPath)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		app, err := newApp(ctx, config, nil, true)
		if err != nil {
			return err
		}
		defer app.Close()

		lookback := config.AnalysisLookback
		if analyzeDays > 0 {
			lookback = time.Duration(analyzeDays) * 24 * time.Hour
		}
		now := time.Now().UTC()
		filter := models.TimeFilter{Start: now.Add(-lookback), End: now}

		names := make([]string, 0, len(input.Brands))
		for name := range input.Brands {
			names = append(names, name)
		}
		sort.Strings(names)

		results := make(map[string]models.BrandData, len(names))
		for _, name := range names {
			data, err := app.svc.AnalyzeBrand(ctx, name, input.Brands[name], filter, input.ReferenceImages[name])
			if err != nil {
				return fmt.Errorf("failed to analyze %s: %w", name, err)
			}
			results[name] = data

			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d posts, %d total engagement, %.1f average\n",
				name, data.OverallMetrics.TotalPosts, data.OverallMetrics.TotalEngagement, data.OverallMetrics.AverageEngagement)
		}

		return writeOutput(analyzeOutPath, cmd.OutOrStdout(), func(w io.Writer) (int, error) {
			return report.WriteCSV(w, results, nil)
		})
	},
}

func readBrandsFile(path string) (*brandsFile, error) {
	if path == "" {
		return nil, fmt.Errorf("--brands is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read brands file: %w", err)
	}

	var input brandsFile
	if err := yaml.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("failed to parse brands file: %w", err)
	}
	if len(input.Brands) == 0 {
		return nil, fmt.Errorf("brands file %s defines no brands", path)
	}
	for name, cfg := range input.Brands {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("brand %s: %w", name, err)
		}
	}
	return &input, nil
}

var (
	exportStart   string
	exportEnd     string
	exportOutPath string
)

var exportCmd = &cobra.Command{
	Use:   "export <analysis-id>",
	Short: "Export a stored analysis as CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := parseWindow(exportStart, exportEnd)
		if err != nil {
			return err
		}

		if err := database.Initialize(cmd.Context(), config.DatabaseURL); err != nil {
			return err
		}
		defer database.Close()

		ctx := cmd.Context()
		app, err := newApp(ctx, config, database.NewStore(database.DB), false)
		if err != nil {
			return err
		}
		defer app.Close()

		return writeOutput(exportOutPath, cmd.OutOrStdout(), func(w io.Writer) (int, error) {
			return app.svc.ExportCSV(ctx, args[0], filter, w)
		})
	},
}

// parseWindow builds an optional time filter. Both bounds or neither must
// be given.
func parseWindow(start, end string) (*models.TimeFilter, error) {
	if start == "" && end == "" {
		return nil, nil
	}
	if start == "" || end == "" {
		return nil, fmt.Errorf("--start and --end must be given together")
	}

	from, err := models.ParseTimestamp(start)
	if err != nil {
		return nil, fmt.Errorf("invalid --start: %w", err)
	}
	to, err := models.ParseTimestamp(end)
	if err != nil {
		return nil, fmt.Errorf("invalid --end: %w", err)
	}

	filter := &models.TimeFilter{Start: from, End: to}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	return filter, nil
}

var cleanupDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete analyses older than the given number of days",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cleanupDays <= 0 {
			return fmt.Errorf("--days must be positive")
		}

		if err := database.Initialize(cmd.Context(), config.DatabaseURL); err != nil {
			return err
		}
		defer database.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
		defer cancel()

		app, err := newApp(ctx, config, database.NewStore(database.DB), false)
		if err != nil {
			return err
		}
		defer app.Close()

		removed, err := app.svc.Cleanup(ctx, time.Duration(cleanupDays)*24*time.Hour)
		if err != nil {
			return err
		}
		log.Info().Int("removed", removed).Int("days", cleanupDays).Msg("cleanup complete")
		return nil
	},
}

// writeOutput writes to path, or to stdout when path is empty or "-"
func writeOutput(path string, stdout io.Writer, write func(w io.Writer) (int, error)) error {
	if path == "" || path == "-" {
		_, err := write(stdout)
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	rows, err := write(f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}

	log.Info().Int("rows", rows).Str("path", path).Msg("CSV written")
	return nil
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeBrandsPath, "brands", "", "YAML file with brands and reference images")
	analyzeCmd.Flags().StringVarP(&analyzeOutPath, "out", "o", "", "CSV output path (stdout when empty)")
	analyzeCmd.Flags().IntVar(&analyzeDays, "days", 0, "Lookback window in days (defaults to ANALYSIS_LOOKBACK_DAYS)")

	exportCmd.Flags().StringVar(&exportStart, "start", "", "Window start (ISO 8601)")
	exportCmd.Flags().StringVar(&exportEnd, "end", "", "Window end (ISO 8601)")
	exportCmd.Flags().StringVarP(&exportOutPath, "out", "o", "", "CSV output path (stdout when empty)")

	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 30, "Delete analyses last updated more than this many days ago")
}
