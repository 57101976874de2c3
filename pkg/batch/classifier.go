package batch

import (
	"sort"

	"github.com/logflow/batchflow/internal/model"
)

// ClassifyMembers returns the processing type of one batch instance.
//
// Members that all share the same start and end are Parallel. Otherwise,
// ordered by (start, end), the batch is Concurrent when any member ends
// strictly after its successor starts, and Sequential when none does.
func ClassifyMembers(rows []model.Instance, members []int) model.BatchType {
	if len(members) == 0 {
		return ""
	}

	first := &rows[members[0]]
	parallel := true
	for _, m := range members[1:] {
		if !rows[m].Start.Equal(first.Start) || !rows[m].End.Equal(first.End) {
			parallel = false
			break
		}
	}
	if parallel {
		return model.Parallel
	}

	ordered := append([]int(nil), members...)
	sort.SliceStable(ordered, func(a, b int) bool {
		ra, rb := &rows[ordered[a]], &rows[ordered[b]]
		if !ra.Start.Equal(rb.Start) {
			return ra.Start.Before(rb.Start)
		}
		return ra.End.Before(rb.End)
	})
	for k := 0; k+1 < len(ordered); k++ {
		if rows[ordered[k]].End.After(rows[ordered[k+1]].Start) {
			return model.Concurrent
		}
	}
	return model.Sequential
}

// Classify sets the batch type of every member of every batch instance of an
// annotated log. Rows outside batches get an empty type.
func Classify(log *model.Log) []Instance {
	batches := Instances(log)
	for i := range log.Instances {
		if !log.Instances[i].BatchID.Valid() {
			log.Instances[i].BatchType = ""
		}
	}
	for _, b := range batches {
		kind := ClassifyMembers(log.Instances, b.Members)
		for _, row := range b.Members {
			log.Instances[row].BatchType = kind
		}
	}
	return batches
}

// Count returns the number of batch instances of each type.
func Count(batches []Instance) map[model.BatchType]int {
	out := make(map[model.BatchType]int, len(model.BatchTypes))
	for _, b := range batches {
		out[b.Type()]++
	}
	return out
}
