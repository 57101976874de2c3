package discovery

import (
	"runtime"
	"time"

	"github.com/logflow/batchflow/pkg/batch"
	"github.com/logflow/batchflow/pkg/features"
	"github.com/logflow/batchflow/pkg/rules"
	"github.com/logflow/batchflow/pkg/rules/ripper"
)

// Options holds the parameters of a discovery run.
type Options struct {
	// MinSize is the minimum batch size (batch_min_size).
	MinSize int
	// MaxGap is the tolerated idle time inside a batch (max_sequential_gap).
	MaxGap time.Duration
	// ResourceAware reports per (activity, resource) instead of per activity.
	ResourceAware bool

	// MinSupport and MaxRules bound rule mining.
	MinSupport float64
	MaxRules   int

	// ReadyNegatives and EnabledNegatives size the negative samples.
	ReadyNegatives   int
	EnabledNegatives int
	// Seed makes negative sampling reproducible; 0 picks a time-based seed.
	Seed uint64

	// ReuseBatches keeps the batch ids already present in the log and only
	// re-classifies them.
	ReuseBatches bool

	// Workers bounds concurrent detection groups and keys (0 = NumCPU).
	Workers int

	// Oracle is the rule learner. Nil selects the built-in RIPPER learner.
	Oracle rules.Oracle

	// OnKey, when set, is called after each key has been processed.
	OnKey func(key string)
}

// DefaultOptions returns the default discovery parameters.
func DefaultOptions() Options {
	b := batch.DefaultOptions()
	f := features.DefaultOptions()
	return Options{
		MinSize:          b.MinSize,
		MaxGap:           b.MaxGap,
		MinSupport:       0.25,
		MaxRules:         3,
		ReadyNegatives:   f.ReadyNegatives,
		EnabledNegatives: f.EnabledNegatives,
	}
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.NumCPU()
}

func (o Options) batchOptions() batch.Options {
	return batch.Options{MinSize: o.MinSize, MaxGap: o.MaxGap, Workers: o.Workers}
}

func (o Options) featureOptions() features.Options {
	return features.Options{
		ReadyNegatives:   o.ReadyNegatives,
		EnabledNegatives: o.EnabledNegatives,
		Seed:             o.Seed,
	}
}

func (o Options) miner(oracle rules.Oracle) *rules.Miner {
	return &rules.Miner{Oracle: oracle, MinSupport: o.MinSupport, MaxRules: o.MaxRules}
}

func (o Options) oracle() rules.Oracle {
	if o.Oracle != nil {
		return o.Oracle
	}
	return ripper.New()
}

// Validate checks every parameter range.
func (o Options) Validate() error {
	if err := o.batchOptions().Validate(); err != nil {
		return err
	}
	if err := o.featureOptions().Validate(); err != nil {
		return err
	}
	return o.miner(o.oracle()).Validate()
}

// Parameters is the serialisable form of Options recorded in a report.
type Parameters struct {
	MinSize          int     `json:"batch_min_size" yaml:"batch_min_size"`
	MaxGap           string  `json:"max_sequential_gap" yaml:"max_sequential_gap"`
	ResourceAware    bool    `json:"resource_aware" yaml:"resource_aware"`
	MinSupport       float64 `json:"min_rule_support" yaml:"min_rule_support"`
	MaxRules         int     `json:"max_rules" yaml:"max_rules"`
	ReadyNegatives   int     `json:"num_batch_ready_negative_events" yaml:"num_batch_ready_negative_events"`
	EnabledNegatives int     `json:"num_batch_enabled_negative_events" yaml:"num_batch_enabled_negative_events"`
	Seed             uint64  `json:"seed,omitempty" yaml:"seed,omitempty"`
	ReuseBatches     bool    `json:"reuse_batches,omitempty" yaml:"reuse_batches,omitempty"`
}

// Parameters returns the options that influence results.
func (o Options) Parameters() Parameters {
	return Parameters{
		MinSize:          o.MinSize,
		MaxGap:           o.MaxGap.String(),
		ResourceAware:    o.ResourceAware,
		MinSupport:       o.MinSupport,
		MaxRules:         o.MaxRules,
		ReadyNegatives:   o.ReadyNegatives,
		EnabledNegatives: o.EnabledNegatives,
		Seed:             o.Seed,
		ReuseBatches:     o.ReuseBatches,
	}
}
