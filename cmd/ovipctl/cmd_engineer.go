package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"OVIP/internal/domain/models"
	domrepo "OVIP/internal/domain/repository"
	"OVIP/internal/services/features"
	"OVIP/internal/services/ingest"
	"OVIP/internal/usecase"
	"OVIP/pkg/config"
	applogger "OVIP/pkg/logger"
)

var engineerCmd = &cobra.Command{
	Use:   "engineer",
	Short: "Engineer features and write them as CSV",
	Long: `Load a market panel, build every feature stage, validate both feature
sets against the training cutoff and write the selected columns as CSV.
The run summary is printed to stderr as JSON.

Examples:
  ovipctl engineer --data ./data --out features.csv
  ovipctl engineer --synthetic 48 --set nprs1
  ovipctl engineer --data ./data --cutoff 2020-07-01 --centering fit_once`,
	RunE: runEngineer,
}

var (
	engDataDir   string
	engSynthetic int
	engSeed      int64
	engCutoff    string
	engCentering string
	engSet       string
	engOut       string
	engVerbose   bool
)

func init() {
	rootCmd.AddCommand(engineerCmd)

	defaults := config.Default()
	engineerCmd.Flags().StringVar(&engDataDir, "data", "", "Directory holding the merged panel CSV")
	engineerCmd.Flags().IntVar(&engSynthetic, "synthetic", 0, "Use a synthetic panel with this many months instead of --data")
	engineerCmd.Flags().Int64Var(&engSeed, "seed", 42, "Seed for the synthetic panel")
	engineerCmd.Flags().StringVar(&engCutoff, "cutoff", defaults.Features.TrainCutoff, "Training cutoff date")
	engineerCmd.Flags().StringVar(&engCentering, "centering", defaults.Features.Centering, "Sentiment centering mode (refit|fit_once)")
	engineerCmd.Flags().StringVar(&engSet, "set", "all", "Columns to write: all, nprs1 or rf11")
	engineerCmd.Flags().StringVar(&engOut, "out", "", "Output file (default: stdout)")
	engineerCmd.Flags().BoolVar(&engVerbose, "verbose", false, "Log pipeline stages to stderr")
}

func runEngineer(cmd *cobra.Command, _ []string) error {
	l := applogger.Nop()
	if engVerbose {
		l = applogger.NewWriter(cmd.ErrOrStderr())
	}

	src, err := engineerSource(l)
	if err != nil {
		return err
	}
	cutoff, err := features.ParseCutoff(engCutoff)
	if err != nil {
		return err
	}
	mode, err := features.ParseCenteringMode(engCentering)
	if err != nil {
		return err
	}

	pipeline := usecase.NewFeaturePipeline(src,
		features.NewEngineer(cutoff, features.WithLogger(l), features.WithCenteringMode(mode)),
		usecase.WithPipelineLogger(l),
	)
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()
	res, err := pipeline.Run(ctx)
	if err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}

	cols, err := outputColumns(res.Panel, engSet)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if engOut != "" {
		f, err := os.Create(engOut)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := ingest.WriteCSV(w, res.Panel, cols); err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.ErrOrStderr())
	enc.SetIndent("", "  ")
	return enc.Encode(res.Summary)
}

func engineerSource(l *applogger.Logger) (domrepo.PanelSource, error) {
	switch {
	case engSynthetic > 0 && engDataDir != "":
		return nil, fmt.Errorf("--data and --synthetic are mutually exclusive")
	case engSynthetic > 0:
		return ingest.SyntheticSource{
			Start:  time.Date(2015, time.January, 1, 0, 0, 0, 0, time.UTC),
			Months: engSynthetic,
			Seed:   engSeed,
		}, nil
	case engDataDir != "":
		d := config.Default()
		return ingest.NewFileSource(engDataDir, d.Data.Candidates, d.Data.PerformanceFile, l), nil
	}
	return nil, fmt.Errorf("one of --data or --synthetic is required")
}

// outputColumns returns Date, the target and the set's features, or every column for "all".
func outputColumns(p *models.EngineeredPanel, set string) ([]models.Column, error) {
	if set == "" || set == "all" {
		return p.Columns(), nil
	}
	fs, err := models.ParseFeatureSet(set)
	if err != nil {
		return nil, err
	}
	present, _ := features.SelectFeatures(p, fs)

	cols := make([]models.Column, 0, len(present)+2)
	if p.HasDates() {
		cols = append(cols, models.ColDate)
	}
	if p.HasColumn(models.ColVolDirection) {
		cols = append(cols, models.ColVolDirection)
	}
	return append(cols, present...), nil
}
