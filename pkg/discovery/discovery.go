// Package discovery runs batch-processing discovery over an activity-instance
// log: detection, classification, and per-key statistics and firing rules.
package discovery

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/logflow/batchflow/internal/model"
	"github.com/logflow/batchflow/pkg/batch"
	bferrors "github.com/logflow/batchflow/pkg/errors"
	"github.com/logflow/batchflow/pkg/features"
	"github.com/logflow/batchflow/pkg/rules"
	"github.com/logflow/batchflow/pkg/stats"
)

var tracer = otel.Tracer("github.com/logflow/batchflow/pkg/discovery")

// Characteristic is the discovered batching behaviour of one key.
type Characteristic struct {
	Activity  string          `json:"activity" yaml:"activity"`
	Resource  string          `json:"resource,omitempty" yaml:"resource,omitempty"`
	Type      model.BatchType `json:"type" yaml:"type"`
	Resources []string        `json:"resources" yaml:"resources"`

	BatchFrequency          float64         `json:"batch_frequency" yaml:"batch_frequency"`
	SizeDistribution        map[int]int     `json:"size_distribution" yaml:"size_distribution"`
	DurationDistribution    map[int]float64 `json:"duration_distribution" yaml:"duration_distribution"`
	DurationBaselineMissing bool            `json:"duration_baseline_missing,omitempty" yaml:"duration_baseline_missing,omitempty"`

	FiringRules *rules.FiringRules `json:"firing_rules,omitempty" yaml:"firing_rules,omitempty"`
}

// Key returns the reporting key of the characteristic.
func (c *Characteristic) Key() model.Key {
	return model.Key{Activity: c.Activity, Resource: c.Resource}
}

// Report is the result of a discovery run.
type Report struct {
	RunID       string     `json:"run_id" yaml:"run_id"`
	GeneratedAt time.Time  `json:"generated_at" yaml:"generated_at"`
	Parameters  Parameters `json:"parameters" yaml:"parameters"`

	Instances int                     `json:"instances" yaml:"instances"`
	Batches   map[model.BatchType]int `json:"batches" yaml:"batches"`

	Characteristics []Characteristic      `json:"characteristics" yaml:"characteristics"`
	Diagnostics     []bferrors.Diagnostic `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`

	// Log is the annotated copy of the input.
	Log *model.Log `json:"-" yaml:"-"`
	// Features is the observation table the rules were mined from.
	Features *features.Table `json:"-" yaml:"-"`
}

// Annotate detects and classifies the batches of a copy of log. The input
// is never modified.
func Annotate(ctx context.Context, log *model.Log, opts Options) (*model.Log, []batch.Instance, error) {
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}
	work := log.Clone()

	if !opts.ReuseBatches {
		ctx, span := tracer.Start(ctx, "batchflow.detect")
		_, err := batch.Detect(ctx, work, opts.batchOptions())
		span.End()
		if err != nil {
			return nil, nil, err
		}
	}

	_, span := tracer.Start(ctx, "batchflow.classify")
	batches := batch.Classify(work)
	span.SetAttributes(attribute.Int("batches", len(batches)))
	span.End()
	return work, batches, nil
}

// Features classifies the batches already present in log and builds the
// observation table from them.
func Features(log *model.Log, opts Options) (*features.Table, error) {
	work := log.Clone()
	return features.Build(work, batch.Classify(work), opts.featureOptions())
}

// Run executes a full discovery over log. Failures confined to one key are
// reported as diagnostics; the error is non-nil only for invalid options or
// cancellation.
func Run(ctx context.Context, log *model.Log, opts Options) (*Report, error) {
	work, batches, err := Annotate(ctx, log, opts)
	if err != nil {
		return nil, err
	}

	table, err := features.Build(work, batches, opts.featureOptions())
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Parameters:  opts.Parameters(),
		Instances:   work.Len(),
		Batches:     batch.Count(batches),
		Log:         work,
		Features:    table,
	}

	keys, groups := batchedKeys(work, opts.ResourceAware)
	tables := table.Split(opts.ResourceAware)
	out := make([]*Characteristic, len(keys))
	var diags bferrors.Diagnostics

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return bferrors.Wrap(err, bferrors.CodeContextCanceled, "discovery interrupted")
			}
			c, err := characterise(gctx, work, groups[key], tables[key], key, opts, &diags)
			if err != nil {
				if bferrors.IsCode(err, bferrors.CodeContextCanceled) {
					return err
				}
				diags.Add(bferrors.KeyFailed(key.String(), err))
				return nil
			}
			out[i] = c
			if opts.OnKey != nil {
				opts.OnKey(key.String())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, c := range out {
		if c != nil {
			report.Characteristics = append(report.Characteristics, *c)
		}
	}
	report.Diagnostics = diags.List()
	return report, nil
}

// batchedKeys returns the keys with at least one batched instance, sorted,
// and the rows of every key.
func batchedKeys(log *model.Log, resourceAware bool) ([]model.Key, map[model.Key][]int) {
	groups := stats.Group(log, resourceAware)
	var keys []model.Key
	for key, rows := range groups {
		for _, r := range rows {
			if log.Instances[r].BatchID.Valid() {
				keys = append(keys, key)
				break
			}
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys, groups
}

func characterise(ctx context.Context, log *model.Log, rows []int, table *features.Table, key model.Key, opts Options, diags *bferrors.Diagnostics) (*Characteristic, error) {
	ctx, span := tracer.Start(ctx, "batchflow.key", trace.WithAttributes(attribute.String("key", key.String())))
	defer span.End()

	name := key.String()
	summary := stats.Summarize(log, rows)
	if summary.NoBaseline {
		diags.Add(bferrors.NoBaseline(name))
	}

	c := &Characteristic{
		Activity:                key.Activity,
		Resource:                key.Resource,
		Type:                    summary.Type,
		Resources:               summary.Resources,
		BatchFrequency:          summary.Frequency,
		SizeDistribution:        summary.Sizes,
		DurationDistribution:    summary.Durations,
		DurationBaselineMissing: summary.NoBaseline,
	}

	d := rules.NewDataset(features.Names)
	if table != nil {
		d = table.Dataset(key, opts.ResourceAware)
	}
	fr, err := mine(ctx, d, opts, name, diags)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	c.FiringRules = fr
	return c, nil
}

func mine(ctx context.Context, d *rules.Dataset, opts Options, key string, diags *bferrors.Diagnostics) (*rules.FiringRules, error) {
	ctx, span := tracer.Start(ctx, "batchflow.mine", trace.WithAttributes(
		attribute.String("key", key),
		attribute.Int("observations", d.Len()),
	))
	defer span.End()

	fr, found, err := opts.miner(opts.oracle()).Mine(ctx, d)
	for i := range found {
		found[i].Key = key
	}
	diags.Add(found...)
	if err != nil {
		return nil, err
	}
	if fr != nil {
		span.SetAttributes(attribute.Int("rules", len(fr.Rules)))
	}
	return fr, nil
}
