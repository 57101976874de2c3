package discovery

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/logflow/batchflow/internal/model"
	bferrors "github.com/logflow/batchflow/pkg/errors"
	"github.com/logflow/batchflow/pkg/rules"
)

func clock(hhmm string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", "2021-01-04 "+hhmm)
	if err != nil {
		panic(err)
	}
	return t
}

func inst(cs, activity, resource, enabled, start, end string) model.Instance {
	return model.Instance{
		Case:     cs,
		Activity: activity,
		Resource: resource,
		Enabled:  clock(enabled),
		Start:    clock(start),
		End:      clock(end),
		BatchID:  model.NoBatch,
	}
}

// testLog holds a sequential batch of three A instances by R1 with two
// shorter unbatched A instances, a parallel B batch with no waiting, and
// activities without batches.
func testLog() *model.Log {
	return &model.Log{Instances: []model.Instance{
		inst("1", "A", "R1", "08:00", "09:00", "09:10"),
		inst("2", "A", "R1", "08:10", "09:10", "09:20"),
		inst("3", "A", "R1", "08:20", "09:20", "09:30"),
		inst("4", "A", "R1", "10:00", "10:00", "10:05"),
		inst("5", "A", "R1", "10:30", "10:30", "10:35"),
		inst("1", "B", "R2", "11:00", "11:00", "11:30"),
		inst("2", "B", "R2", "11:00", "11:00", "11:30"),
		inst("1", "C", "R1", "11:40", "11:40", "11:50"),
		inst("6", "A", "R3", "12:00", "12:00", "12:05"),
	}}
}

// queueOracle always proposes num_queue >= 3.
var queueOracle = rules.OracleFunc(func(ctx context.Context, d *rules.Dataset) (rules.RuleSet, error) {
	return rules.RuleSet{Rules: []rules.Rule{{Conditions: []rules.Condition{rules.AtLeast("num_queue", 3)}}}}, nil
})

func testOptions() Options {
	opts := DefaultOptions()
	opts.Seed = 42
	opts.Oracle = queueOracle
	return opts
}

func run(t *testing.T, log *model.Log, opts Options) *Report {
	t.Helper()
	report, err := Run(context.Background(), log, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return report
}

func find(t *testing.T, report *Report, key model.Key) Characteristic {
	t.Helper()
	for _, c := range report.Characteristics {
		if c.Key() == key {
			return c
		}
	}
	t.Fatalf("no characteristic for %s", key)
	return Characteristic{}
}

func TestRun_Characteristics(t *testing.T) {
	report := run(t, testLog(), testOptions())

	var keys []string
	for _, c := range report.Characteristics {
		keys = append(keys, c.Key().String())
	}
	if want := []string{"A", "B"}; !reflect.DeepEqual(keys, want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}

	a := find(t, report, model.Key{Activity: "A"})
	if a.Type != model.Sequential {
		t.Errorf("A type = %q, want Sequential", a.Type)
	}
	if !reflect.DeepEqual(a.Resources, []string{"R1"}) {
		t.Errorf("A resources = %v, want [R1]", a.Resources)
	}
	if !reflect.DeepEqual(a.SizeDistribution, map[int]int{1: 3, 3: 3}) {
		t.Errorf("A sizes = %v", a.SizeDistribution)
	}
	if a.BatchFrequency != 0.5 {
		t.Errorf("A frequency = %v, want 0.5", a.BatchFrequency)
	}
	if !reflect.DeepEqual(a.DurationDistribution, map[int]float64{3: 2.0}) {
		t.Errorf("A durations = %v", a.DurationDistribution)
	}
	if a.DurationBaselineMissing {
		t.Error("A baseline reported missing")
	}
	if a.FiringRules == nil || len(a.FiringRules.Rules) != 1 {
		t.Fatalf("A firing rules = %+v, want one rule", a.FiringRules)
	}
	if got := a.FiringRules.Rules[0].String(); got != "[num_queue>=3]" {
		t.Errorf("A rule = %s", got)
	}
	if a.FiringRules.Support != 1 {
		t.Errorf("A support = %v, want 1", a.FiringRules.Support)
	}
	if c := a.FiringRules.Confidence; c <= 0 || c > 1 {
		t.Errorf("A confidence = %v, want in (0, 1]", c)
	}

	b := find(t, report, model.Key{Activity: "B"})
	if b.Type != model.Parallel {
		t.Errorf("B type = %q, want Parallel", b.Type)
	}
	if !b.DurationBaselineMissing || !reflect.DeepEqual(b.DurationDistribution, map[int]float64{2: 1.0}) {
		t.Errorf("B durations = %v, missing = %v", b.DurationDistribution, b.DurationBaselineMissing)
	}
	if b.FiringRules != nil {
		t.Errorf("B firing rules = %+v, want none", b.FiringRules)
	}

	if report.Instances != 9 {
		t.Errorf("Instances = %d, want 9", report.Instances)
	}
	if report.Batches[model.Sequential] != 1 || report.Batches[model.Parallel] != 1 {
		t.Errorf("Batches = %v", report.Batches)
	}
	if report.RunID == "" {
		t.Error("empty RunID")
	}
}

func TestRun_Diagnostics(t *testing.T) {
	report := run(t, testLog(), testOptions())

	var got []string
	for _, d := range report.Diagnostics {
		got = append(got, d.Key+" "+string(d.Code))
	}
	want := []string{"B W601", "B W602"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("diagnostics = %v, want %v", got, want)
	}
}

func TestRun_OracleFailure(t *testing.T) {
	opts := testOptions()
	opts.Oracle = rules.OracleFunc(func(ctx context.Context, d *rules.Dataset) (rules.RuleSet, error) {
		return rules.RuleSet{}, errors.New("solver exploded")
	})
	report := run(t, testLog(), opts)

	a := find(t, report, model.Key{Activity: "A"})
	if a.FiringRules != nil {
		t.Errorf("A firing rules = %+v, want none", a.FiringRules)
	}
	var found bool
	for _, d := range report.Diagnostics {
		if d.Key == "A" && d.Code == bferrors.CodeOracleFitFailure {
			found = true
			if d.Severity != bferrors.SeverityInfo {
				t.Errorf("severity = %s, want info", d.Severity)
			}
		}
	}
	if !found {
		t.Errorf("no W603 diagnostic for A in %v", report.Diagnostics)
	}
}

func TestRun_ResourceAware(t *testing.T) {
	opts := testOptions()
	opts.ResourceAware = true
	report := run(t, testLog(), opts)

	var keys []string
	for _, c := range report.Characteristics {
		keys = append(keys, c.Key().String())
	}
	if want := []string{"A|R1", "B|R2"}; !reflect.DeepEqual(keys, want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	a := find(t, report, model.Key{Activity: "A", Resource: "R1"})
	if !reflect.DeepEqual(a.SizeDistribution, map[int]int{1: 2, 3: 3}) {
		t.Errorf("A|R1 sizes = %v", a.SizeDistribution)
	}
	if a.BatchFrequency != 0.6 {
		t.Errorf("A|R1 frequency = %v, want 0.6", a.BatchFrequency)
	}
}

func TestRun_InputUntouched(t *testing.T) {
	log := testLog()
	report := run(t, log, testOptions())

	for i, in := range log.Instances {
		if in.BatchID != model.NoBatch || in.BatchType != "" {
			t.Fatalf("input row %d annotated: %v %q", i, in.BatchID, in.BatchType)
		}
	}
	if report.Log == log || report.Log.Len() != log.Len() {
		t.Error("report does not carry an annotated copy")
	}
	if report.Features == nil || report.Features.Len() == 0 {
		t.Error("report carries no feature table")
	}
}

func TestRun_Deterministic(t *testing.T) {
	opts := DefaultOptions()
	opts.Seed = 7

	first := run(t, testLog(), opts)
	for _, workers := range []int{1, 4} {
		opts.Workers = workers
		again := run(t, testLog(), opts)
		if !reflect.DeepEqual(first.Characteristics, again.Characteristics) {
			t.Errorf("workers=%d: characteristics differ:\n%+v\n%+v", workers, first.Characteristics, again.Characteristics)
		}
		if !reflect.DeepEqual(first.Diagnostics, again.Diagnostics) {
			t.Errorf("workers=%d: diagnostics differ", workers)
		}
	}
}

func TestRun_OnKey(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	opts := testOptions()
	opts.OnKey = func(key string) {
		mu.Lock()
		seen = append(seen, key)
		mu.Unlock()
	}
	run(t, testLog(), opts)

	sort.Strings(seen)
	if want := []string{"A", "B"}; !reflect.DeepEqual(seen, want) {
		t.Errorf("OnKey saw %v, want %v", seen, want)
	}
}

func TestRun_Errors(t *testing.T) {
	bad := testOptions()
	bad.MinSupport = 0
	if _, err := Run(context.Background(), testLog(), bad); !bferrors.IsCode(err, bferrors.CodeInvalidParameters) {
		t.Errorf("MinSupport=0: err = %v, want E203", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, testLog(), testOptions()); !bferrors.IsCode(err, bferrors.CodeContextCanceled) {
		t.Errorf("canceled: err = %v, want E401", err)
	}
}

func TestAnnotate(t *testing.T) {
	log := testLog()
	annotated, batches, err := Annotate(context.Background(), log, testOptions())
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(batches))
	}

	var ids []model.BatchID
	var types []model.BatchType
	for _, in := range annotated.Instances {
		ids = append(ids, in.BatchID)
		types = append(types, in.BatchType)
	}
	wantIDs := []model.BatchID{0, 0, 0, -1, -1, 1, 1, -1, -1}
	if !reflect.DeepEqual(ids, wantIDs) {
		t.Errorf("ids = %v, want %v", ids, wantIDs)
	}
	if types[0] != model.Sequential || types[5] != model.Parallel || types[3] != "" {
		t.Errorf("types = %v", types)
	}
	if log.Instances[0].BatchID != model.NoBatch {
		t.Error("input annotated")
	}
}

func TestAnnotate_ReuseBatches(t *testing.T) {
	log := testLog()
	log.Instances[3].BatchID = 7
	log.Instances[4].BatchID = 7

	opts := testOptions()
	opts.ReuseBatches = true
	report := run(t, log, opts)

	a := find(t, report, model.Key{Activity: "A"})
	if !reflect.DeepEqual(a.SizeDistribution, map[int]int{1: 4, 2: 2}) {
		t.Errorf("A sizes = %v", a.SizeDistribution)
	}
	if a.Type != model.Sequential {
		t.Errorf("A type = %q, want Sequential", a.Type)
	}
	if len(report.Characteristics) != 1 {
		t.Errorf("characteristics = %d, want only A", len(report.Characteristics))
	}
}

func TestFeatures(t *testing.T) {
	annotated, _, err := Annotate(context.Background(), testLog(), testOptions())
	if err != nil {
		t.Fatal(err)
	}
	table, err := Features(annotated, testOptions())
	if err != nil {
		t.Fatalf("Features: %v", err)
	}
	positives, negatives := table.Counts()
	if positives != 2 {
		t.Errorf("positives = %d, want 2", positives)
	}
	// Two ready-window instants and two sampled enablements for A, none for B.
	if negatives != 4 {
		t.Errorf("negatives = %d, want 4", negatives)
	}
}
