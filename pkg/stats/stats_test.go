package stats_test

import (
	"math"
	"math/rand/v2"
	"reflect"
	"testing"
	"time"

	"github.com/logflow/batchflow/internal/model"
	"github.com/logflow/batchflow/pkg/stats"
)

var t0 = time.Date(2023, 3, 6, 9, 0, 0, 0, time.UTC)

// builder appends rows with a given duration in minutes.
type builder struct {
	log  model.Log
	next time.Time
}

func (b *builder) add(activity, resource string, id model.BatchID, kind model.BatchType, minutes int) {
	if b.next.IsZero() {
		b.next = t0
	}
	start := b.next
	end := start.Add(time.Duration(minutes) * time.Minute)
	b.log.Instances = append(b.log.Instances, model.Instance{
		Case:      "c",
		Activity:  activity,
		Resource:  resource,
		Enabled:   start,
		Start:     start,
		End:       end,
		BatchID:   id,
		BatchType: kind,
	})
	b.next = end
}

func (b *builder) batch(activity, resource string, id model.BatchID, kind model.BatchType, size, minutes int) {
	for i := 0; i < size; i++ {
		b.add(activity, resource, id, kind, minutes)
	}
}

func (b *builder) single(activity, resource string, n, minutes int) {
	for i := 0; i < n; i++ {
		b.add(activity, resource, model.NoBatch, "", minutes)
	}
}

// sizesLog has activity A executed by Jonathan (two batches of 3, three
// unbatched) and Joseph (two batches of 3, one of 4, four unbatched).
func sizesLog() *model.Log {
	var b builder
	b.batch("A", "Jonathan", 0, model.Sequential, 3, 10)
	b.single("A", "Jonathan", 3, 10)
	b.batch("A", "Jonathan", 1, model.Sequential, 3, 10)
	b.batch("A", "Joseph", 2, model.Parallel, 3, 10)
	b.single("A", "Joseph", 4, 10)
	b.batch("A", "Joseph", 3, model.Sequential, 3, 10)
	b.batch("A", "Joseph", 4, model.Concurrent, 4, 10)
	b.single("B", "Joseph", 2, 10)
	return &b.log
}

func TestSizes(t *testing.T) {
	log := sizesLog()

	tests := []struct {
		name          string
		resourceAware bool
		key           model.Key
		want          map[int]int
	}{
		{"activity", false, model.Key{Activity: "A"}, map[int]int{1: 7, 3: 12, 4: 4}},
		{"jonathan", true, model.Key{Activity: "A", Resource: "Jonathan"}, map[int]int{1: 3, 3: 6}},
		{"joseph", true, model.Key{Activity: "A", Resource: "Joseph"}, map[int]int{1: 4, 3: 6, 4: 4}},
		{"unbatched only", false, model.Key{Activity: "B"}, map[int]int{1: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := stats.Group(log, tt.resourceAware)[tt.key]
			got := stats.Sizes(log, rows)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Sizes = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSizes_AlwaysHasSizeOne(t *testing.T) {
	var b builder
	b.batch("A", "R", 0, model.Parallel, 2, 5)
	got := stats.Sizes(&b.log, []int{0, 1})
	if n, ok := got[1]; !ok || n != 0 {
		t.Errorf("Sizes[1] = %d, %v; want 0, true", n, ok)
	}
}

func TestFrequency(t *testing.T) {
	tests := []struct {
		sizes map[int]int
		want  float64
	}{
		{map[int]int{1: 7, 3: 12, 4: 4}, 16.0 / 23.0},
		{map[int]int{1: 3, 3: 6}, 6.0 / 9.0},
		{map[int]int{1: 5}, 0},
		{map[int]int{1: 0, 2: 4}, 1},
		{map[int]int{}, 0},
	}
	for _, tt := range tests {
		if got := stats.Frequency(tt.sizes); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Frequency(%v) = %v, want %v", tt.sizes, got, tt.want)
		}
	}
}

func TestDurations(t *testing.T) {
	var b builder
	b.single("A", "R", 2, 10) // baseline mean 10m
	b.batch("A", "R", 0, model.Sequential, 2, 5)
	b.batch("A", "R", 1, model.Sequential, 2, 15) // size 2 mean 10m
	b.batch("A", "R", 2, model.Parallel, 3, 30)   // size 3 mean 30m

	rows := stats.Group(&b.log, false)[model.Key{Activity: "A"}]
	got, noBaseline := stats.Durations(&b.log, rows)
	if noBaseline {
		t.Fatal("noBaseline = true, want false")
	}
	want := map[int]float64{2: 1.0, 3: 3.0}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Durations = %v, want %v", got, want)
	}
}

func TestDurations_NoBaseline(t *testing.T) {
	tests := []struct {
		name  string
		build func(*builder)
	}{
		{"no unbatched instances", func(b *builder) {
			b.batch("A", "R", 0, model.Sequential, 2, 5)
			b.batch("A", "R", 1, model.Parallel, 3, 20)
		}},
		{"instantaneous baseline", func(b *builder) {
			b.single("A", "R", 2, 0)
			b.batch("A", "R", 0, model.Sequential, 2, 5)
			b.batch("A", "R", 1, model.Parallel, 3, 20)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b builder
			tt.build(&b)
			rows := stats.Group(&b.log, false)[model.Key{Activity: "A"}]
			got, noBaseline := stats.Durations(&b.log, rows)
			if !noBaseline {
				t.Error("noBaseline = false, want true")
			}
			want := map[int]float64{2: 1.0, 3: 1.0}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("Durations = %v, want %v", got, want)
			}
		})
	}
}

func TestType(t *testing.T) {
	tests := []struct {
		name  string
		types []model.BatchType
		want  model.BatchType
	}{
		{"majority", []model.BatchType{model.Sequential, model.Parallel, model.Sequential}, model.Sequential},
		{"tie parallel first", []model.BatchType{model.Sequential, model.Parallel}, model.Parallel},
		{"tie concurrent before sequential", []model.BatchType{model.Sequential, model.Concurrent}, model.Concurrent},
		{"none", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b builder
			b.single("A", "R", 1, 5)
			for i, kind := range tt.types {
				// Batch sizes differ so row counts never decide the mode.
				b.batch("A", "R", model.BatchID(i), kind, 2+i, 5)
			}
			rows := stats.Group(&b.log, false)[model.Key{Activity: "A"}]
			if got := stats.Type(&b.log, rows); got != tt.want {
				t.Errorf("Type = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResources(t *testing.T) {
	log := sizesLog()
	rows := stats.Group(log, false)[model.Key{Activity: "A"}]
	if got, want := stats.Resources(log, rows), []string{"Jonathan", "Joseph"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Resources = %v, want %v", got, want)
	}

	rows = stats.Group(log, false)[model.Key{Activity: "B"}]
	if got := stats.Resources(log, rows); len(got) != 0 {
		t.Errorf("Resources of unbatched key = %v, want none", got)
	}
}

func TestSummarize(t *testing.T) {
	log := sizesLog()
	rows := stats.Group(log, true)[model.Key{Activity: "A", Resource: "Joseph"}]
	s := stats.Summarize(log, rows)

	if s.Batched != 10 {
		t.Errorf("Batched = %d, want 10", s.Batched)
	}
	if math.Abs(s.Frequency-10.0/14.0) > 1e-12 {
		t.Errorf("Frequency = %v, want %v", s.Frequency, 10.0/14.0)
	}
	if s.NoBaseline {
		t.Error("NoBaseline = true, want false")
	}
	if !reflect.DeepEqual(s.Durations, map[int]float64{3: 1.0, 4: 1.0}) {
		t.Errorf("Durations = %v", s.Durations)
	}
	if !reflect.DeepEqual(s.Resources, []string{"Joseph"}) {
		t.Errorf("Resources = %v", s.Resources)
	}
	// One batch of each type: the tie goes to Parallel.
	if s.Type != model.Parallel {
		t.Errorf("Type = %q, want Parallel", s.Type)
	}
}

// Size conservation: the distribution always accounts for every row of the
// key exactly once.
func TestSizes_Conservation(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	activities := []string{"A", "B", "C"}
	resources := []string{"R1", "R2"}

	for iter := 0; iter < 50; iter++ {
		var b builder
		next := model.BatchID(0)
		for n := rng.IntN(20) + 1; n > 0; n-- {
			act := activities[rng.IntN(len(activities))]
			res := resources[rng.IntN(len(resources))]
			if rng.IntN(2) == 0 {
				b.single(act, res, 1, rng.IntN(30))
				continue
			}
			b.batch(act, res, next, model.Sequential, 2+rng.IntN(3), rng.IntN(30))
			next++
		}

		for _, aware := range []bool{false, true} {
			for key, rows := range stats.Group(&b.log, aware) {
				total := 0
				for _, n := range stats.Sizes(&b.log, rows) {
					total += n
				}
				if total != len(rows) {
					t.Fatalf("iter %d key %s: sizes sum to %d, want %d", iter, key, total, len(rows))
				}
			}
		}
	}
}
