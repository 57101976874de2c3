package features

import (
	"sort"

	"github.com/logflow/batchflow/internal/model"
	"github.com/logflow/batchflow/pkg/rules"
)

// Feature column names, in the order of Vector.
const (
	FeatureInstant    = "instant"
	FeatureNumQueue   = "num_queue"
	FeatureTReady     = "t_ready"
	FeatureTWaiting   = "t_waiting"
	FeatureTMaxFlow   = "t_max_flow"
	FeatureDayOfWeek  = "day_of_week"
	FeatureDayOfMonth = "day_of_month"
	FeatureHourOfDay  = "hour_of_day"
	FeatureMinute     = "minute"
)

// Names lists the numeric features the rule learner sees.
var Names = []string{
	FeatureInstant,
	FeatureNumQueue,
	FeatureTReady,
	FeatureTWaiting,
	FeatureTMaxFlow,
	FeatureDayOfWeek,
	FeatureDayOfMonth,
	FeatureHourOfDay,
	FeatureMinute,
}

// Vector returns the numeric features of o. Instants are Unix seconds and
// durations are seconds.
func (o *Observation) Vector() []float64 {
	return []float64{
		float64(o.Instant.UnixNano()) / 1e9,
		float64(o.NumQueue),
		o.TReady.Seconds(),
		o.TWaiting.Seconds(),
		o.TMaxFlow.Seconds(),
		float64(o.DayOfWeek),
		float64(o.DayOfMonth),
		float64(o.HourOfDay),
		float64(o.Minute),
	}
}

// Keys returns the distinct keys of the table in order.
func (t *Table) Keys(resourceAware bool) []model.Key {
	seen := make(map[model.Key]bool)
	var keys []model.Key
	for i := range t.Rows {
		k := t.Rows[i].Key(resourceAware)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Dataset returns the observations of key as a rule-learning dataset.
func (t *Table) Dataset(key model.Key, resourceAware bool) *rules.Dataset {
	d := rules.NewDataset(Names)
	for i := range t.Rows {
		o := &t.Rows[i]
		if o.Key(resourceAware) == key {
			d.Add(o.Vector(), o.Outcome)
		}
	}
	return d
}

// Split partitions the table by key.
func (t *Table) Split(resourceAware bool) map[model.Key]*Table {
	out := make(map[model.Key]*Table)
	for i := range t.Rows {
		k := t.Rows[i].Key(resourceAware)
		sub, ok := out[k]
		if !ok {
			sub = &Table{}
			out[k] = sub
		}
		sub.Rows = append(sub.Rows, t.Rows[i])
	}
	return out
}

// Counts returns the number of positive and negative observations.
func (t *Table) Counts() (positives, negatives int) {
	for i := range t.Rows {
		if t.Rows[i].Outcome {
			positives++
		} else {
			negatives++
		}
	}
	return positives, negatives
}
