package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/logflow/batchflow/internal/model"
	"github.com/logflow/batchflow/pkg/batch"
	"github.com/logflow/batchflow/pkg/config"
	"github.com/logflow/batchflow/pkg/discovery"
	bferrors "github.com/logflow/batchflow/pkg/errors"
	"github.com/logflow/batchflow/pkg/validation"
)

var annotateCmd = &cobra.Command{
	Use:   "annotate",
	Short: "Write the log with batch instance ids and types filled in",
	Long: `Run batch detection and classification only, and write the input log
with the batch_instance_id and batch_instance_type columns filled in.
Instances outside any batch get an empty id and type.

Examples:
  batchflow annotate -i log.csv -o annotated.csv
  batchflow annotate -i log.csv -o annotated.parquet --engine duckdb --compression zstd`,
	RunE: runAnnotate,
}

func init() {
	annotateCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input log (csv, csv.gz, xlsx, parquet)")
	annotateCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Annotated log (csv, parquet)")
	annotateCmd.MarkFlagRequired("input")
	annotateCmd.MarkFlagRequired("output")

	rootCmd.AddCommand(annotateCmd)
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	_, err := annotate(cmd.Context(), cfg, inputFile, outputFile)
	return err
}

// annotate writes the annotated copy of input to output and returns the
// batch instances found.
func annotate(ctx context.Context, c *config.Config, inputPath, output string) ([]batch.Instance, error) {
	if output == "" {
		return nil, bferrors.InvalidParameter("output", output, "a file path")
	}
	if err := checkPaths(inputPath, target{output, validation.Table}); err != nil {
		return nil, err
	}
	shutdown, err := initTelemetry(ctx, c)
	if err != nil {
		return nil, err
	}
	defer shutdownTelemetry(shutdown)

	in, err := fetchInput(ctx, c, inputPath)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	log, err := readLog(ctx, c, in)
	if err != nil {
		return nil, err
	}
	annotated, batches, err := discovery.Annotate(ctx, log, c.DiscoveryOptions())
	if err != nil {
		return nil, err
	}
	if err := writeAnnotated(ctx, c, output, annotated); err != nil {
		return nil, err
	}

	counts := batch.Count(batches)
	logger.Info("annotated log written",
		"path", output,
		"instances", annotated.Len(),
		"batches", len(batches),
		"parallel", counts[model.Parallel],
		"concurrent", counts[model.Concurrent],
		"sequential", counts[model.Sequential])
	return batches, nil
}
