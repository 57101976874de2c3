// Package features builds the labeled observation table of batch firings.
//
// Every batch instance yields one positive observation at its firing
// instant and up to two pools of negative observations: instants spread
// evenly over its ready window, and a sample of the enablement times of
// its cases. Negative observations only see the cases already enabled at
// the sampled instant.
package features

import (
	"math/rand/v2"
	"sort"
	"time"

	"github.com/logflow/batchflow/internal/model"
	"github.com/logflow/batchflow/pkg/batch"
	bferrors "github.com/logflow/batchflow/pkg/errors"
)

// Options controls negative sampling.
type Options struct {
	// ReadyNegatives is the number of instants spread over the ready window.
	ReadyNegatives int
	// EnabledNegatives is the maximum number of sampled enablement times.
	EnabledNegatives int
	// Seed seeds the enablement sampling; 0 picks a time-based seed.
	Seed uint64
}

// DefaultOptions returns the default sampling options.
func DefaultOptions() Options {
	return Options{ReadyNegatives: 2, EnabledNegatives: 2}
}

// Validate checks the option ranges.
func (o Options) Validate() error {
	if o.ReadyNegatives < 0 {
		return bferrors.InvalidParameter("num_batch_ready_negative_events", o.ReadyNegatives, ">= 0")
	}
	if o.EnabledNegatives < 0 {
		return bferrors.InvalidParameter("num_batch_enabled_negative_events", o.EnabledNegatives, ">= 0")
	}
	return nil
}

// Observation is one row of the feature table.
type Observation struct {
	BatchID   model.BatchID
	BatchType model.BatchType
	Activity  string
	Resource  string

	Instant  time.Time
	NumQueue int
	TReady   time.Duration
	TWaiting time.Duration
	TMaxFlow time.Duration

	DayOfWeek  int // Monday = 0
	DayOfMonth int
	HourOfDay  int
	Minute     int

	// Outcome is true when the batch fired at Instant.
	Outcome bool
}

// Key returns the reporting key of the observation.
func (o *Observation) Key(resourceAware bool) model.Key {
	if resourceAware {
		return model.Key{Activity: o.Activity, Resource: o.Resource}
	}
	return model.Key{Activity: o.Activity}
}

// Table is the feature table of one log.
type Table struct {
	Rows []Observation
}

// Len returns the number of observations.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Build derives the observations of every batch instance of log, in batch
// order. Within a batch the positive row comes first, then ready-window
// rows, then enablement rows.
func Build(log *model.Log, batches []batch.Instance, opts Options) (*Table, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	b := &builder{firstStart: firstStarts(log)}
	t := &Table{}
	for _, bi := range batches {
		if bi.Size() == 0 {
			continue
		}
		rng := rand.New(rand.NewPCG(seed, uint64(bi.ID)))
		t.Rows = append(t.Rows, b.observations(bi, opts, rng)...)
	}
	return t, nil
}

// firstStarts returns the earliest start time of every case in the log.
func firstStarts(log *model.Log) map[string]time.Time {
	out := make(map[string]time.Time)
	for i := range log.Instances {
		in := &log.Instances[i]
		if s, ok := out[in.Case]; !ok || in.Start.Before(s) {
			out[in.Case] = in.Start
		}
	}
	return out
}

type builder struct {
	firstStart map[string]time.Time
}

func (b *builder) observations(bi batch.Instance, opts Options, rng *rand.Rand) []Observation {
	start := bi.Start()
	out := []Observation{b.observe(bi, start, true)}

	for _, t := range ReadyInstants(bi.Enabled(), start, opts.ReadyNegatives) {
		out = append(out, b.observe(bi, t, false))
	}
	for _, t := range sampleEnablements(bi, start, opts.EnabledNegatives, rng) {
		out = append(out, b.observe(bi, t, false))
	}
	return out
}

// ReadyInstants returns k instants evenly spaced strictly inside
// [enabled, start], dropping those not before start and duplicates.
func ReadyInstants(enabled, start time.Time, k int) []time.Time {
	if k <= 0 || !enabled.Before(start) {
		return nil
	}
	// span*i/(k+1) split as q*i + r*i/(k+1) so long windows cannot overflow.
	parts := time.Duration(k + 1)
	span := start.Sub(enabled)
	q, r := span/parts, span%parts
	var out []time.Time
	for i := 1; i <= k; i++ {
		n := time.Duration(i)
		t := enabled.Add(q*n + r*n/parts)
		if !t.After(enabled) || !t.Before(start) {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Equal(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// sampleEnablements draws up to k distinct member enablement times earlier
// than start, uniformly without replacement, returned in time order.
func sampleEnablements(bi batch.Instance, start time.Time, k int, rng *rand.Rand) []time.Time {
	if k <= 0 {
		return nil
	}
	var pool []time.Time
	for i := 0; i < bi.Size(); i++ {
		e := bi.Row(i).Enabled
		if e.Before(start) && !containsTime(pool, e) {
			pool = append(pool, e)
		}
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].Before(pool[j]) })
	if len(pool) <= k {
		return pool
	}

	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	picked := pool[:k]
	sort.Slice(picked, func(i, j int) bool { return picked[i].Before(picked[j]) })
	return picked
}

func containsTime(ts []time.Time, t time.Time) bool {
	for _, x := range ts {
		if x.Equal(t) {
			return true
		}
	}
	return false
}

// observe computes the features of bi at instant t. Positive observations
// use every member; negative ones only members enabled at or before t.
func (b *builder) observe(bi batch.Instance, t time.Time, fired bool) Observation {
	var (
		queue               int
		firstEnab, lastEnab time.Time
		firstStart          time.Time
		haveStart           bool
	)
	for i := 0; i < bi.Size(); i++ {
		in := bi.Row(i)
		if !fired && in.Enabled.After(t) {
			continue
		}
		if queue == 0 || in.Enabled.Before(firstEnab) {
			firstEnab = in.Enabled
		}
		if queue == 0 || in.Enabled.After(lastEnab) {
			lastEnab = in.Enabled
		}
		if s, ok := b.firstStart[in.Case]; ok && (!haveStart || s.Before(firstStart)) {
			firstStart, haveStart = s, true
		}
		queue++
	}

	obs := Observation{
		BatchID:    bi.ID,
		BatchType:  bi.Type(),
		Activity:   bi.Activity(),
		Resource:   bi.Resource(),
		Instant:    t,
		NumQueue:   queue,
		DayOfWeek:  (int(t.Weekday()) + 6) % 7,
		DayOfMonth: t.Day(),
		HourOfDay:  t.Hour(),
		Minute:     t.Minute(),
		Outcome:    fired,
	}
	if queue > 0 {
		obs.TReady = t.Sub(lastEnab)
		obs.TWaiting = t.Sub(firstEnab)
	}
	if haveStart {
		obs.TMaxFlow = t.Sub(firstStart)
	}
	return obs
}
