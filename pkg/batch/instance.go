package batch

import (
	"sort"
	"time"

	"github.com/logflow/batchflow/internal/model"
)

// Instance is a batch instance: the rows of a log sharing one batch id.
// It refers to rows by index and never copies them.
type Instance struct {
	ID      model.BatchID
	Members []int

	log *model.Log
}

// NewInstance returns a view of the given rows of log.
func NewInstance(log *model.Log, id model.BatchID, members []int) Instance {
	return Instance{ID: id, Members: members, log: log}
}

// Size returns the number of members.
func (b Instance) Size() int {
	return len(b.Members)
}

// Row returns the i-th member.
func (b Instance) Row(i int) *model.Instance {
	return &b.log.Instances[b.Members[i]]
}

// Start returns the earliest start time of the members: the firing instant.
func (b Instance) Start() time.Time {
	var t time.Time
	for i := range b.Members {
		if s := b.Row(i).Start; i == 0 || s.Before(t) {
			t = s
		}
	}
	return t
}

// End returns the latest end time of the members.
func (b Instance) End() time.Time {
	var t time.Time
	for i := range b.Members {
		if e := b.Row(i).End; i == 0 || e.After(t) {
			t = e
		}
	}
	return t
}

// Enabled returns the latest enabled time of the members, i.e. the instant
// the last case joined the batch.
func (b Instance) Enabled() time.Time {
	var t time.Time
	for i := range b.Members {
		if e := b.Row(i).Enabled; i == 0 || e.After(t) {
			t = e
		}
	}
	return t
}

// Type returns the batch type of the first member.
func (b Instance) Type() model.BatchType {
	if len(b.Members) == 0 {
		return ""
	}
	return b.Row(0).BatchType
}

// Activity returns the activity of the batch.
func (b Instance) Activity() string {
	if len(b.Members) == 0 {
		return ""
	}
	return b.Row(0).Activity
}

// Resource returns the resource that executed the batch.
func (b Instance) Resource() string {
	if len(b.Members) == 0 {
		return ""
	}
	return b.Row(0).Resource
}

// Instances regroups an annotated log into batch instances ordered by id.
// Members keep their row order.
func Instances(log *model.Log) []Instance {
	byID := make(map[model.BatchID][]int)
	for i := range log.Instances {
		if id := log.Instances[i].BatchID; id.Valid() {
			byID[id] = append(byID[id], i)
		}
	}

	out := make([]Instance, 0, len(byID))
	for id, members := range byID {
		out = append(out, Instance{ID: id, Members: members, log: log})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
