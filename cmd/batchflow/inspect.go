package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/logflow/batchflow/pkg/config"
	bferrors "github.com/logflow/batchflow/pkg/errors"
	"github.com/logflow/batchflow/pkg/inspect"
)

var inspectJSON bool

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Profile an event log before discovery",
	Long: `Read a log with the configured column mapping and print its size, time
range, resource coverage and the instance shapes that affect batch
detection: zero-duration instances, instances that start the moment they
are enabled, and activities that occur only once.

Examples:
  batchflow inspect -i log.csv
  batchflow inspect -i log.xlsx --json`,
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input log (csv, csv.gz, xlsx, parquet)")
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Print the profile as JSON")
	inspectCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	r, err := profile(cmd.Context(), cfg, inputFile)
	if err != nil {
		return err
	}
	return printProfile(cmd.OutOrStdout(), r, inspectJSON)
}

// profile reads inputPath and returns its quality report.
func profile(ctx context.Context, c *config.Config, inputPath string) (*inspect.QualityReport, error) {
	if err := checkPaths(inputPath); err != nil {
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
	r := inspect.Analyze(log)
	for _, w := range r.Warnings {
		logger.Warn(w, "path", inputPath)
	}
	return r, nil
}

func printProfile(w io.Writer, r *inspect.QualityReport, asJSON bool) error {
	if asJSON {
		data, err := r.ToJSON()
		if err != nil {
			return bferrors.Wrap(err, bferrors.CodeWriteFailed, "cannot encode profile")
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	fmt.Fprint(w, r.String())
	for _, is := range r.Issues {
		fmt.Fprintf(w, "  [%s] %s: %d\n", is.Severity, is.Description, is.AffectedRows)
	}
	return nil
}
