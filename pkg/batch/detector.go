// Package batch detects and classifies batch processing in activity-instance logs.
//
// Detection is a sweep line over the instances of each (resource, activity)
// group, ordered by start time. A candidate window accepts the next instance
// when the instance was already enabled when the window's first member
// started, and when the idle time since the window last finished work does
// not exceed the allowed gap. Windows reaching the minimum size become batch
// instances.
package batch

import (
	"context"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/logflow/batchflow/internal/model"
	bferrors "github.com/logflow/batchflow/pkg/errors"
)

// Options controls batch detection.
type Options struct {
	// MinSize is the minimum number of instances of a batch (>= 2).
	MinSize int

	// MaxGap is the largest idle time tolerated between the end of the
	// window's work and the start of the next instance (>= 0).
	MaxGap time.Duration

	// Workers bounds the number of groups swept concurrently (0 = NumCPU).
	Workers int
}

// DefaultOptions returns the default detection options.
func DefaultOptions() Options {
	return Options{
		MinSize: 2,
		MaxGap:  0,
	}
}

// Validate checks the option ranges.
func (o Options) Validate() error {
	if o.MinSize < 2 {
		return bferrors.InvalidParameter("batch_min_size", o.MinSize, ">= 2")
	}
	if o.MaxGap < 0 {
		return bferrors.InvalidParameter("max_sequential_gap", o.MaxGap, ">= 0")
	}
	if o.Workers < 0 {
		return bferrors.InvalidParameter("workers", o.Workers, ">= 0")
	}
	return nil
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.NumCPU()
}

// GroupKey identifies a (resource, activity) detection group.
type GroupKey struct {
	Resource string
	Activity string
}

func (k GroupKey) less(o GroupKey) bool {
	if k.Resource != o.Resource {
		return k.Resource < o.Resource
	}
	return k.Activity < o.Activity
}

// Detect assigns batch ids to the instances of log in place and returns the
// detected batch instances ordered by id.
//
// Any batch annotation already present is discarded first. Ids are dense and
// assigned in (resource, activity) group order, so the numbering does not
// depend on the number of workers.
func Detect(ctx context.Context, log *model.Log, opts Options) ([]Instance, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	keys, groups := groupRows(log.Instances)
	windows := make([][][]int, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())
	for i, key := range keys {
		i, rows := i, groups[key]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			windows[i] = sweep(log.Instances, rows, opts.MinSize, opts.MaxGap)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, bferrors.Wrap(err, bferrors.CodeContextCanceled, "batch detection interrupted")
	}

	log.ResetBatches()
	var batches []Instance
	next := model.BatchID(0)
	for _, group := range windows {
		for _, members := range group {
			for _, row := range members {
				log.Instances[row].BatchID = next
			}
			batches = append(batches, Instance{ID: next, Members: members, log: log})
			next++
		}
	}
	return batches, nil
}

// groupRows partitions row indices by (resource, activity), preserving row
// order inside each group, and returns the keys in sorted order.
func groupRows(rows []model.Instance) ([]GroupKey, map[GroupKey][]int) {
	groups := make(map[GroupKey][]int)
	var keys []GroupKey
	for i := range rows {
		key := GroupKey{Resource: rows[i].Resource, Activity: rows[i].Activity}
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], i)
	}
	sort.Slice(keys, func(a, b int) bool { return keys[a].less(keys[b]) })
	return keys, groups
}

// window is the candidate batch instance of the sweep.
type window struct {
	start   time.Time
	end     time.Time
	members []int
}

func (w *window) open(row int, in *model.Instance) {
	w.start = in.Start
	w.end = in.End
	w.members = []int{row}
}

// accepts reports whether in joins the window: it was enabled no later than
// the window's first start, and it starts within maxGap of the window's end.
func (w *window) accepts(in *model.Instance, maxGap time.Duration) bool {
	return !in.Enabled.After(w.start) && in.Start.Sub(w.end) <= maxGap
}

func (w *window) add(row int, in *model.Instance) {
	w.members = append(w.members, row)
	if in.End.After(w.end) {
		w.end = in.End
	}
}

// sweep runs the sweep line over one group and returns the member rows of
// every window with at least minSize instances. idx is reordered in place.
func sweep(rows []model.Instance, idx []int, minSize int, maxGap time.Duration) [][]int {
	sort.SliceStable(idx, func(a, b int) bool {
		return rows[idx[a]].Start.Before(rows[idx[b]].Start)
	})

	var batches [][]int
	var w window
	for _, row := range idx {
		in := &rows[row]
		if len(w.members) > 0 && w.accepts(in, maxGap) {
			w.add(row, in)
			continue
		}
		if len(w.members) >= minSize {
			batches = append(batches, w.members)
		}
		w.open(row, in)
	}
	if len(w.members) >= minSize {
		batches = append(batches, w.members)
	}
	return batches
}
