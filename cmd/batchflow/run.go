package main

import (
	"context"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/logflow/batchflow/internal/model"
	"github.com/logflow/batchflow/pkg/checkpoint"
	"github.com/logflow/batchflow/pkg/config"
	"github.com/logflow/batchflow/pkg/discovery"
	bferrors "github.com/logflow/batchflow/pkg/errors"
	"github.com/logflow/batchflow/pkg/features"
	"github.com/logflow/batchflow/pkg/parser"
	"github.com/logflow/batchflow/pkg/storage"
	"github.com/logflow/batchflow/pkg/telemetry"
	"github.com/logflow/batchflow/pkg/validation"
	"github.com/logflow/batchflow/pkg/writer"
)

var tracer = otel.Tracer("github.com/logflow/batchflow/cmd/batchflow")

func storageConfig(c *config.Config) storage.Config {
	return storage.Config{Region: c.Storage.Region, Endpoint: c.Storage.Endpoint}
}

// input is a fetched input log.
type input struct {
	Path    string // as given
	Local   string // local copy
	cleanup func()
}

func (in *input) Close() {
	if in.cleanup != nil {
		in.cleanup()
	}
}

// target is an output path and what will be written there.
type target struct {
	path string
	kind validation.Kind
}

// checkPaths rejects an unusable input or output before any work is done.
// Empty targets are skipped.
func checkPaths(inputPath string, targets ...target) error {
	if err := validation.ValidateInputFile(inputPath); err != nil {
		return err
	}
	for _, t := range targets {
		if t.path == "" {
			continue
		}
		if err := validation.ValidateOutputPath(t.path, t.kind); err != nil {
			return err
		}
	}
	return nil
}

// fetchInput makes path readable locally.
func fetchInput(ctx context.Context, c *config.Config, path string) (*input, error) {
	if path == "" {
		return nil, bferrors.InvalidParameter("input", path, "a file path")
	}
	local, cleanup, err := storage.Fetch(ctx, storageConfig(c), path)
	if err != nil {
		return nil, err
	}
	return &input{Path: path, Local: local, cleanup: cleanup}, nil
}

// readLog parses the local copy of in.
func readLog(ctx context.Context, c *config.Config, in *input) (*model.Log, error) {
	ctx, span := tracer.Start(ctx, "batchflow.read")
	defer span.End()

	start := time.Now()
	log, err := parser.ReadFile(ctx, in.Local, c.ParserConfig())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("instances", log.Len()))
	logger.Debug("log read",
		"path", in.Path,
		"instances", log.Len(),
		"extra_columns", len(log.Extra),
		"elapsed", time.Since(start))
	return log, nil
}

// writeReport writes r to dest, or to stdout when dest is empty or "-".
func writeReport(ctx context.Context, c *config.Config, dest string, r *discovery.Report) error {
	if dest == "" || dest == "-" {
		return writer.WriteReport(os.Stdout, r, writer.ReportJSON)
	}
	return storage.Write(ctx, storageConfig(c), dest, func(w io.Writer) error {
		return writer.WriteReport(w, r, writer.DetectReportFormat(dest))
	})
}

// writeAnnotated writes an annotated log in the format implied by dest.
func writeAnnotated(ctx context.Context, c *config.Config, dest string, log *model.Log) error {
	return storage.WriteFile(ctx, storageConfig(c), dest, func(path string) error {
		return writer.WriteLogFile(ctx, path, log, c.WriterConfig())
	})
}

// writeFeatures writes a feature table in the format implied by dest.
func writeFeatures(ctx context.Context, c *config.Config, dest string, t *features.Table) error {
	format := writer.DetectFormat(dest)
	return storage.Write(ctx, storageConfig(c), dest, func(w io.Writer) error {
		return writer.WriteFeatures(ctx, w, t, format, c.WriterConfig())
	})
}

// openCache returns nil when caching is disabled or unavailable.
func openCache(ctx context.Context, c *config.Config) *checkpoint.Cache {
	if !c.Cache.Enabled {
		return nil
	}
	backend, err := checkpoint.Open(ctx, checkpoint.Config{
		Dir:       c.Cache.Dir,
		RedisAddr: c.Cache.RedisAddr,
		TTL:       c.Cache.TTL.Duration,
		Storage:   storageConfig(c),
	})
	if err != nil {
		logger.Warn("report cache unavailable", "error", err)
		return nil
	}
	logger.Debug("report cache", "backend", backend.Name())
	return checkpoint.New(backend)
}

func initTelemetry(ctx context.Context, c *config.Config) (telemetry.ShutdownFunc, error) {
	tc := telemetry.DefaultConfig()
	tc.Enabled = c.Telemetry.Enabled
	tc.Endpoint = c.Telemetry.Endpoint
	tc.Insecure = c.Telemetry.Insecure
	tc.SamplingRatio = c.Telemetry.SamplingRatio
	tc.ServiceVersion = version
	return telemetry.Init(ctx, tc)
}

func shutdownTelemetry(shutdown telemetry.ShutdownFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Warn("telemetry shutdown failed", "error", err)
	}
}

// logDiagnostics logs every diagnostic; informational ones at info level.
func logDiagnostics(diags []bferrors.Diagnostic) {
	for _, d := range diags {
		attrs := []any{"code", string(d.Code), "key", d.Key}
		for k, v := range d.Context {
			attrs = append(attrs, k, v)
		}
		if d.Severity == bferrors.SeverityInfo {
			logger.Info(d.Message, attrs...)
		} else {
			logger.Warn(d.Message, attrs...)
		}
	}
}
