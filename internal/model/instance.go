// Package model defines core data structures for batchflow.
package model

import (
	"fmt"
	"strings"
	"time"
)

// BatchID identifies a batch instance within one detection run.
// NoBatch marks an activity instance that is not part of any batch.
type BatchID int

// NoBatch is the null batch identifier.
const NoBatch BatchID = -1

// Valid reports whether the id refers to a batch.
func (id BatchID) Valid() bool {
	return id >= 0
}

// String returns the id, or an empty string for NoBatch.
func (id BatchID) String() string {
	if !id.Valid() {
		return ""
	}
	return fmt.Sprintf("%d", int(id))
}

// BatchType is the processing type of a batch instance.
type BatchType string

const (
	// Parallel batches start and end all members at the same instants.
	Parallel BatchType = "Parallel"
	// Concurrent batches have at least one overlapping pair of members.
	Concurrent BatchType = "Concurrent"
	// Sequential batches process members one after another.
	Sequential BatchType = "Sequential"
)

// BatchTypes lists the types in tie-break order.
var BatchTypes = []BatchType{Parallel, Concurrent, Sequential}

// ParseBatchType parses a batch type label, case-insensitively. The empty
// label means no batch.
func ParseBatchType(s string) (BatchType, bool) {
	if s == "" {
		return "", true
	}
	for _, t := range BatchTypes {
		if strings.EqualFold(s, string(t)) {
			return t, true
		}
	}
	return "", false
}

// Attribute is a pass-through column value carried from input to output.
type Attribute struct {
	Key   string
	Value string
}

// Instance is one activity instance (a row of the event log).
type Instance struct {
	Case     string
	Activity string
	Resource string

	// Enabled is the instant the case became ready for this activity.
	Enabled time.Time
	Start   time.Time
	End     time.Time

	// BatchID and BatchType are filled by detection and classification.
	BatchID   BatchID
	BatchType BatchType

	Attrs []Attribute
}

// Duration returns the processing time of the instance.
func (in *Instance) Duration() time.Duration {
	return in.End.Sub(in.Start)
}

// Log is an in-memory event log of activity instances.
type Log struct {
	Instances []Instance

	// Extra lists the names of pass-through columns, in input order.
	Extra []string
}

// Len returns the number of activity instances.
func (l *Log) Len() int {
	return len(l.Instances)
}

// Clone returns a deep copy of the log so annotations never leak into the input.
func (l *Log) Clone() *Log {
	out := &Log{
		Instances: make([]Instance, len(l.Instances)),
		Extra:     append([]string(nil), l.Extra...),
	}
	for i, in := range l.Instances {
		in.Attrs = append([]Attribute(nil), in.Attrs...)
		out.Instances[i] = in
	}
	return out
}

// ResetBatches clears all batch annotations.
func (l *Log) ResetBatches() {
	for i := range l.Instances {
		l.Instances[i].BatchID = NoBatch
		l.Instances[i].BatchType = ""
	}
}

// OrderError reports a row violating enabled <= start <= end.
type OrderError struct {
	Row int
	Msg string
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Msg)
}

// Validate checks the temporal invariant of every row.
func (l *Log) Validate() error {
	for i := range l.Instances {
		in := &l.Instances[i]
		if in.Start.Before(in.Enabled) {
			return &OrderError{Row: i, Msg: "start time before enabled time"}
		}
		if in.End.Before(in.Start) {
			return &OrderError{Row: i, Msg: "end time before start time"}
		}
	}
	return nil
}
