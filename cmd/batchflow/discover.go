package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/logflow/batchflow/pkg/checkpoint"
	"github.com/logflow/batchflow/pkg/config"
	"github.com/logflow/batchflow/pkg/discovery"
	"github.com/logflow/batchflow/pkg/metrics"
	"github.com/logflow/batchflow/pkg/tui"
	"github.com/logflow/batchflow/pkg/validation"
)

// discover command flags
var (
	inputFile    string
	outputFile   string
	annotatedOut string
	featuresOut  string
	metricsFile  string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover batch processing in an event log",
	Long: `Detect batch instances, classify them, and report per activity (or per
activity and resource) the batch type, frequency, size and duration
distributions and the firing rules.

Input and output paths may be s3://bucket/key URLs.

Examples:
  batchflow discover -i log.csv -o report.json
  batchflow discover -i log.csv.gz -o report.yaml --resource-aware
  batchflow discover -i log.parquet -o s3://bucket/report.json --annotated-out annotated.parquet
  batchflow discover -i log.csv --max-gap 10m --features-out features.parquet`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input log (csv, csv.gz, xlsx, parquet)")
	discoverCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Report file (json, yaml); stdout when empty")
	discoverCmd.Flags().StringVar(&annotatedOut, "annotated-out", "", "Also write the annotated log (csv, parquet)")
	discoverCmd.Flags().StringVar(&featuresOut, "features-out", "", "Also write the feature table (csv, parquet)")
	discoverCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics in textfile format")
	discoverCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	req := discoverRequest{
		Input:        inputFile,
		Output:       outputFile,
		AnnotatedOut: annotatedOut,
		FeaturesOut:  featuresOut,
		MetricsFile:  metricsFile,
		Progress:     tui.IsTerminal(os.Stderr) && !verbose,
	}
	start := time.Now()
	res, err := discover(cmd.Context(), cfg, req)
	if err != nil {
		return err
	}

	if req.Output != "" && req.Output != "-" {
		outputs := []string{req.Output}
		if req.AnnotatedOut != "" {
			outputs = append(outputs, req.AnnotatedOut)
		}
		if req.FeaturesOut != "" {
			outputs = append(outputs, req.FeaturesOut)
		}
		tui.RenderReport(os.Stderr, res.Report, tui.Summary{
			Input:   req.Input,
			Elapsed: time.Since(start),
			Cached:  res.Cached,
			Outputs: outputs,
		})
	}
	return nil
}

// discoverRequest describes one discovery run.
type discoverRequest struct {
	Input        string
	Output       string
	AnnotatedOut string
	FeaturesOut  string
	MetricsFile  string
	Progress     bool
}

type discoverResult struct {
	Report *discovery.Report
	Cached bool
}

// discover reads the input, runs discovery (or answers from the cache) and
// writes every requested output.
func discover(ctx context.Context, c *config.Config, req discoverRequest) (*discoverResult, error) {
	err := checkPaths(req.Input,
		target{req.Output, validation.Report},
		target{req.AnnotatedOut, validation.Table},
		target{req.FeaturesOut, validation.Table})
	if err != nil {
		return nil, err
	}

	shutdown, err := initTelemetry(ctx, c)
	if err != nil {
		return nil, err
	}
	defer shutdownTelemetry(shutdown)

	rec := metrics.New()
	in, err := fetchInput(ctx, c, req.Input)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	opts := c.DiscoveryOptions()

	// The cache only holds reports, so runs that need the annotated log or
	// the feature table always recompute.
	var (
		cache *checkpoint.Cache
		key   string
	)
	if req.AnnotatedOut == "" && req.FeaturesOut == "" {
		cache = openCache(ctx, c)
	}
	if cache != nil {
		r, k, ok := cache.Lookup(ctx, in.Local, cacheSettings(c, opts))
		if ok {
			logger.Info("report served from cache", "input", req.Input, "key", k, "backend", cache.Backend().Name())
			rec.CacheHitsTotal.Inc()
			rec.ObserveReport(r)
			if err := finish(ctx, c, req, r, rec); err != nil {
				return nil, err
			}
			return &discoverResult{Report: r, Cached: true}, nil
		}
		key = k
	}

	done := rec.Time("read")
	log, err := readLog(ctx, c, in)
	done()
	if err != nil {
		return nil, err
	}

	if req.Progress {
		p := tui.NewKeyProgress(os.Stderr, "characterising keys")
		opts.OnKey = p.Key
		defer p.Finish()
	}

	done = rec.Time("discover")
	report, err := discovery.Run(ctx, log, opts)
	done()
	if err != nil {
		return nil, err
	}
	logDiagnostics(report.Diagnostics)
	logger.Info("discovery complete",
		"run_id", report.RunID,
		"instances", report.Instances,
		"keys", len(report.Characteristics),
		"diagnostics", len(report.Diagnostics))
	rec.ObserveReport(report)

	if req.AnnotatedOut != "" {
		done = rec.Time("write_annotated")
		err := writeAnnotated(ctx, c, req.AnnotatedOut, report.Log)
		done()
		if err != nil {
			return nil, err
		}
		logger.Debug("annotated log written", "path", req.AnnotatedOut)
	}
	if req.FeaturesOut != "" {
		done = rec.Time("write_features")
		err := writeFeatures(ctx, c, req.FeaturesOut, report.Features)
		done()
		if err != nil {
			return nil, err
		}
		logger.Debug("feature table written", "path", req.FeaturesOut, "rows", report.Features.Len())
	}

	if err := finish(ctx, c, req, report, rec); err != nil {
		return nil, err
	}
	if cache != nil && key != "" {
		if err := cache.Store(ctx, key, req.Input, report); err != nil {
			logger.Warn("failed to cache report", "error", err)
		}
	}
	return &discoverResult{Report: report}, nil
}

// finish writes the report and the metrics textfile.
func finish(ctx context.Context, c *config.Config, req discoverRequest, r *discovery.Report, rec *metrics.Recorder) error {
	done := rec.Time("write_report")
	err := writeReport(ctx, c, req.Output, r)
	done()
	if err != nil {
		return err
	}

	path := req.MetricsFile
	if path == "" {
		path = c.Metrics.File
	}
	if path != "" {
		if err := rec.WriteTextfile(path); err != nil {
			logger.Warn("failed to write metrics", "path", path, "error", err)
		}
	}
	return nil
}

// cacheSettings collects what besides the input bytes determines a report:
// the effective column bindings, how the file is read and the parameters.
func cacheSettings(c *config.Config, opts discovery.Options) checkpoint.Settings {
	pc := c.ParserConfig()
	return checkpoint.Settings{
		Schema:    pc.Schema,
		Delimiter: string(pc.Delimiter),
		Engine:    string(pc.Engine),
		Params:    opts.Parameters(),
	}
}
