package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/logflow/batchflow/pkg/config"
	"github.com/logflow/batchflow/pkg/discovery"
	bferrors "github.com/logflow/batchflow/pkg/errors"
	"github.com/logflow/batchflow/pkg/features"
	"github.com/logflow/batchflow/pkg/validation"
)

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Build the firing-rule feature table of an annotated log",
	Long: `Read a log whose batch_instance_id column is already filled in (for
example by 'batchflow annotate'), and write one observation per batch firing
and per sampled non-firing instant, with the queue, waiting-time and
calendar features the firing rules are mined from.

Examples:
  batchflow features -i annotated.csv -o features.parquet
  batchflow features -i annotated.csv -o features.csv --ready-negatives 4 --seed 7`,
	RunE: runFeatures,
}

func init() {
	featuresCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Annotated log (csv, csv.gz, xlsx, parquet)")
	featuresCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Feature table (csv, parquet)")
	featuresCmd.MarkFlagRequired("input")
	featuresCmd.MarkFlagRequired("output")

	rootCmd.AddCommand(featuresCmd)
}

func runFeatures(cmd *cobra.Command, args []string) error {
	_, err := buildFeatures(cmd.Context(), cfg, inputFile, outputFile)
	return err
}

func buildFeatures(ctx context.Context, c *config.Config, inputPath, output string) (*features.Table, error) {
	if output == "" {
		return nil, bferrors.InvalidParameter("output", output, "a file path")
	}
	if err := checkPaths(inputPath, target{output, validation.Table}); err != nil {
		return nil, err
	}
	in, err := fetchInput(ctx, c, inputPath)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	log, err := readLog(ctx, c, in)
	if err != nil {
		return nil, err
	}
	t, err := discovery.Features(log, c.DiscoveryOptions())
	if err != nil {
		return nil, err
	}
	if t.Len() == 0 {
		logger.Warn("annotated log has no batch instances", "path", inputPath)
	}
	if err := writeFeatures(ctx, c, output, t); err != nil {
		return nil, err
	}
	logger.Info("feature table written", "path", output, "rows", t.Len())
	return t, nil
}
