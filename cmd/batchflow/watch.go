package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	bferrors "github.com/logflow/batchflow/pkg/errors"
	"github.com/logflow/batchflow/pkg/storage"
	"github.com/logflow/batchflow/pkg/watch"
)

var debounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run discovery whenever the input log changes",
	Long: `Run discovery once, then watch the input file and run it again after
every change. Stops on Ctrl+C.

Examples:
  batchflow watch -i log.csv -o report.json
  batchflow watch -i log.csv -o report.yaml --debounce 2s --metrics-file /var/lib/node_exporter/batchflow.prom`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input log (local file)")
	watchCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Report file (json, yaml)")
	watchCmd.Flags().StringVar(&annotatedOut, "annotated-out", "", "Also write the annotated log (csv, parquet)")
	watchCmd.Flags().StringVar(&featuresOut, "features-out", "", "Also write the feature table (csv, parquet)")
	watchCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics in textfile format")
	watchCmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period before a change is handled")
	watchCmd.MarkFlagRequired("input")
	watchCmd.MarkFlagRequired("output")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if storage.IsRemote(inputFile) {
		return bferrors.InvalidParameter("input", inputFile, "a local file")
	}
	req := discoverRequest{
		Input:        inputFile,
		Output:       outputFile,
		AnnotatedOut: annotatedOut,
		FeaturesOut:  featuresOut,
		MetricsFile:  metricsFile,
	}
	ctx := cmd.Context()

	w, err := watch.NewWatcher(debounce)
	if err != nil {
		return err
	}
	if err := w.Watch(req.Input); err != nil {
		w.Close()
		return bferrors.Wrap(err, bferrors.CodeFileNotFound, "cannot watch input").
			WithContext("path", req.Input)
	}

	run := func(ctx context.Context, path string) error {
		start := time.Now()
		res, err := discover(ctx, cfg, req)
		if err != nil {
			return err
		}
		logger.Info("report updated",
			"path", req.Output,
			"keys", len(res.Report.Characteristics),
			"cached", res.Cached,
			"elapsed", time.Since(start))
		return nil
	}
	w.OnChange = run
	w.OnError = func(path string, err error) {
		logger.Error("watch run failed", "path", path, "error", err)
	}

	if err := run(ctx, req.Input); err != nil {
		logger.Error("initial run failed", "error", err)
	}
	logger.Info("watching for changes", "path", req.Input)

	err = w.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("stopped watching")
		return nil
	}
	return err
}
