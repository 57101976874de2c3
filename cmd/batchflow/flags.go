package main

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/logflow/batchflow/pkg/config"
	bferrors "github.com/logflow/batchflow/pkg/errors"
)

// Shared discovery and schema flags. They only override the configuration
// when set explicitly.
var (
	caseCol, activityCol, resourceCol string
	enabledCol, startCol, endCol      string
	batchIDCol, batchTypeCol          string
	timestampFormat                   string
	delimiter                         string
	engine                            string
	compression                       string

	minSize          int
	maxGap           time.Duration
	resourceAware    bool
	minSupport       float64
	maxRules         int
	readyNegatives   int
	enabledNegatives int
	seed             uint64
	reuseBatches     bool
	workers          int
)

func registerFlags(fs *pflag.FlagSet) {
	fs.StringVar(&caseCol, "case-col", "", "Case id column")
	fs.StringVar(&activityCol, "activity-col", "", "Activity column")
	fs.StringVar(&resourceCol, "resource-col", "", "Resource column")
	fs.StringVar(&enabledCol, "enabled-col", "", "Enablement time column")
	fs.StringVar(&startCol, "start-col", "", "Start time column")
	fs.StringVar(&endCol, "end-col", "", "End time column")
	fs.StringVar(&batchIDCol, "batch-id-col", "", "Batch instance id column")
	fs.StringVar(&batchTypeCol, "batch-type-col", "", "Batch instance type column")
	fs.StringVar(&timestampFormat, "timestamp-format", "", "Go time layout tried before the built-in ones")
	fs.StringVar(&delimiter, "delimiter", ",", "CSV field delimiter")
	fs.StringVar(&engine, "engine", "native", "Reader and Parquet writer engine (native, duckdb)")
	fs.StringVar(&compression, "compression", "snappy", "Parquet compression (none, snappy, gzip, zstd, lz4)")

	fs.IntVar(&minSize, "min-size", 2, "Minimum batch size (batch_min_size)")
	fs.DurationVar(&maxGap, "max-gap", 0, "Maximum gap between sequential batch members (max_sequential_gap)")
	fs.BoolVar(&resourceAware, "resource-aware", false, "Report per (activity, resource) instead of per activity")
	fs.Float64Var(&minSupport, "min-support", 0.25, "Minimum support of an accepted rule set (min_rule_support)")
	fs.IntVar(&maxRules, "max-rules", 3, "Maximum number of firing rules per key")
	fs.IntVar(&readyNegatives, "ready-negatives", 2, "Negative observations spread over the ready window")
	fs.IntVar(&enabledNegatives, "enabled-negatives", 2, "Negative observations sampled from enablement times")
	fs.Uint64Var(&seed, "seed", 0, "Sampling seed (0 = time based)")
	fs.BoolVar(&reuseBatches, "reuse-batches", false, "Keep the batch ids of the input and only re-classify them")
	fs.IntVar(&workers, "workers", 0, "Parallel workers (0 = number of CPUs)")
}

// applyFlags copies the explicitly set flags of fs over c.
func applyFlags(fs *pflag.FlagSet, c *config.Config) error {
	str := func(name string, dst *string, v string) {
		if fs.Changed(name) {
			*dst = v
		}
	}
	str("case-col", &c.Schema.Case, caseCol)
	str("activity-col", &c.Schema.Activity, activityCol)
	str("resource-col", &c.Schema.Resource, resourceCol)
	str("enabled-col", &c.Schema.Enabled, enabledCol)
	str("start-col", &c.Schema.Start, startCol)
	str("end-col", &c.Schema.End, endCol)
	str("batch-id-col", &c.Schema.BatchID, batchIDCol)
	str("batch-type-col", &c.Schema.BatchType, batchTypeCol)
	str("timestamp-format", &c.Schema.TimestampFormat, timestampFormat)
	str("delimiter", &c.Input.Delimiter, delimiter)
	str("engine", &c.Input.Engine, engine)
	str("compression", &c.Output.Compression, compression)

	d := &c.Discovery
	if fs.Changed("min-size") {
		d.MinSize = minSize
	}
	if fs.Changed("max-gap") {
		if maxGap < 0 {
			return bferrors.InvalidParameter("max-gap", maxGap, ">= 0")
		}
		d.MaxGap = config.Duration{Duration: maxGap}
	}
	if fs.Changed("resource-aware") {
		d.ResourceAware = resourceAware
	}
	if fs.Changed("min-support") {
		d.MinSupport = minSupport
	}
	if fs.Changed("max-rules") {
		d.MaxRules = maxRules
	}
	if fs.Changed("ready-negatives") {
		d.ReadyNegatives = readyNegatives
	}
	if fs.Changed("enabled-negatives") {
		d.EnabledNegatives = enabledNegatives
	}
	if fs.Changed("seed") {
		d.Seed = seed
	}
	if fs.Changed("reuse-batches") {
		d.ReuseBatches = reuseBatches
	}
	if fs.Changed("workers") {
		d.Workers = workers
	}
	if fs.Changed("no-cache") && noCache {
		c.Cache.Enabled = false
	}
	return nil
}
