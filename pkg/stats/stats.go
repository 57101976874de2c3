// Package stats aggregates descriptive batch statistics per key.
package stats

import (
	"sort"
	"time"

	"github.com/logflow/batchflow/internal/model"
)

// Group returns the row indices of log per key, in row order.
func Group(log *model.Log, resourceAware bool) map[model.Key][]int {
	out := make(map[model.Key][]int)
	for i := range log.Instances {
		k := model.KeyOf(&log.Instances[i], resourceAware)
		out[k] = append(out[k], i)
	}
	return out
}

// batchesOf groups the batched rows among rows by batch id.
func batchesOf(log *model.Log, rows []int) map[model.BatchID][]int {
	out := make(map[model.BatchID][]int)
	for _, r := range rows {
		if id := log.Instances[r].BatchID; id.Valid() {
			out[id] = append(out[id], r)
		}
	}
	return out
}

// Sizes maps each batch size to the number of instances executed at that
// size. Unbatched instances count under size 1, which is always present.
// The counts sum to len(rows).
func Sizes(log *model.Log, rows []int) map[int]int {
	out := map[int]int{1: 0}
	batched := 0
	for _, members := range batchesOf(log, rows) {
		out[len(members)] += len(members)
		batched += len(members)
	}
	out[1] += len(rows) - batched
	return out
}

// Frequency is the share of instances executed in a batch.
func Frequency(sizes map[int]int) float64 {
	total := 0
	for _, n := range sizes {
		total += n
	}
	if total == 0 {
		return 0
	}
	return float64(total-sizes[1]) / float64(total)
}

// Durations maps each batch size to the mean duration of instances executed
// at that size divided by the mean duration of unbatched instances.
//
// When there is no usable baseline (no unbatched instances, or all of them
// instantaneous) every factor is 1.0 and noBaseline is true.
func Durations(log *model.Log, rows []int) (factors map[int]float64, noBaseline bool) {
	var base time.Duration
	unbatched := 0
	for _, r := range rows {
		if in := &log.Instances[r]; !in.BatchID.Valid() {
			base += in.Duration()
			unbatched++
		}
	}

	sum := make(map[int]time.Duration)
	count := make(map[int]int)
	for _, members := range batchesOf(log, rows) {
		size := len(members)
		for _, r := range members {
			sum[size] += log.Instances[r].Duration()
			count[size]++
		}
	}

	factors = make(map[int]float64, len(sum))
	noBaseline = unbatched == 0 || base <= 0
	for size := range sum {
		if noBaseline {
			factors[size] = 1.0
			continue
		}
		meanBatched := float64(sum[size]) / float64(count[size])
		meanBase := float64(base) / float64(unbatched)
		factors[size] = meanBatched / meanBase
	}
	return factors, noBaseline
}

// Resources returns the sorted resources that executed a batched instance.
func Resources(log *model.Log, rows []int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rows {
		in := &log.Instances[r]
		if in.BatchID.Valid() && !seen[in.Resource] {
			seen[in.Resource] = true
			out = append(out, in.Resource)
		}
	}
	sort.Strings(out)
	return out
}

// Type returns the most common type over the batch instances among rows.
// Ties go to the earlier of Parallel, Concurrent, Sequential.
func Type(log *model.Log, rows []int) model.BatchType {
	counts := make(map[model.BatchType]int)
	for _, members := range batchesOf(log, rows) {
		counts[log.Instances[members[0]].BatchType]++
	}
	var best model.BatchType
	for _, t := range model.BatchTypes {
		if counts[t] > counts[best] {
			best = t
		}
	}
	return best
}

// Summary holds the statistics of one key.
type Summary struct {
	Type       model.BatchType
	Resources  []string
	Sizes      map[int]int
	Durations  map[int]float64
	NoBaseline bool
	Frequency  float64
	Batched    int
}

// Summarize computes every statistic of rows.
func Summarize(log *model.Log, rows []int) Summary {
	sizes := Sizes(log, rows)
	durations, noBaseline := Durations(log, rows)
	return Summary{
		Type:       Type(log, rows),
		Resources:  Resources(log, rows),
		Sizes:      sizes,
		Durations:  durations,
		NoBaseline: noBaseline,
		Frequency:  Frequency(sizes),
		Batched:    len(rows) - sizes[1],
	}
}
