package features

import (
	"context"
	"testing"
	"time"

	"github.com/logflow/batchflow/internal/model"
	"github.com/logflow/batchflow/pkg/batch"
)

func clock(hhmm string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", "2021-01-01 "+hhmm)
	if err != nil {
		panic(err)
	}
	return t
}

func inst(cs, activity, resource, enabled, start, end string, id model.BatchID, kind model.BatchType) model.Instance {
	return model.Instance{
		Case:      cs,
		Activity:  activity,
		Resource:  resource,
		Enabled:   clock(enabled),
		Start:     clock(start),
		End:       clock(end),
		BatchID:   id,
		BatchType: kind,
	}
}

// fixtureLog has four batches over three cases on Friday 2021-01-01:
// a sequential A batch with a ready window, a sequential C batch, a
// concurrent E batch with no waiting, and a sequential F batch whose last
// case arrives at the firing instant.
func fixtureLog() *model.Log {
	const (
		seq  = model.Sequential
		conc = model.Concurrent
		none = model.NoBatch
	)
	return &model.Log{Instances: []model.Instance{
		inst("0", "X", "Giorno", "08:00", "08:00", "08:30", none, ""),
		inst("1", "X", "Giorno", "08:15", "08:15", "08:45", none, ""),
		inst("2", "X", "Giorno", "08:30", "08:30", "09:00", none, ""),

		inst("0", "A", "Jonathan", "08:30", "09:30", "09:40", 0, seq),
		inst("1", "A", "Jonathan", "08:45", "09:40", "09:50", 0, seq),
		inst("2", "A", "Jonathan", "09:00", "09:50", "10:00", 0, seq),

		inst("0", "C", "Jolyne", "11:30", "14:00", "14:10", 1, seq),
		inst("1", "C", "Jolyne", "12:00", "14:10", "14:20", 1, seq),
		inst("2", "C", "Jolyne", "12:30", "14:20", "14:30", 1, seq),

		inst("0", "E", "Jonathan", "16:00", "16:00", "16:30", 2, conc),
		inst("1", "E", "Jonathan", "16:00", "16:00", "16:20", 2, conc),
		inst("2", "E", "Jonathan", "16:00", "16:00", "16:40", 2, conc),

		inst("0", "F", "Joseph", "16:30", "17:00", "17:10", 3, seq),
		inst("1", "F", "Joseph", "16:45", "17:10", "17:20", 3, seq),
		inst("2", "F", "Joseph", "17:00", "17:20", "17:30", 3, seq),
	}}
}

func build(t *testing.T, log *model.Log, opts Options) *Table {
	t.Helper()
	table, err := Build(log, batch.Instances(log), opts)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return table
}

func TestBuild_Counts(t *testing.T) {
	table := build(t, fixtureLog(), Options{ReadyNegatives: 2, EnabledNegatives: 2, Seed: 7})
	pos, neg := table.Counts()
	if pos != 4 || neg != 10 || table.Len() != 14 {
		t.Fatalf("positives/negatives = %d/%d, want 4/10", pos, neg)
	}

	perBatch := map[model.BatchID]int{}
	for _, o := range table.Rows {
		if !o.Outcome {
			perBatch[o.BatchID]++
		}
	}
	want := map[model.BatchID]int{0: 4, 1: 4, 2: 0, 3: 2}
	for id, n := range want {
		if perBatch[id] != n {
			t.Errorf("batch %d has %d negatives, want %d", id, perBatch[id], n)
		}
	}
}

func TestBuild_Positives(t *testing.T) {
	table := build(t, fixtureLog(), DefaultOptions())

	tests := []struct {
		id       model.BatchID
		kind     model.BatchType
		activity string
		resource string
		instant  string
		tReady   time.Duration
		tWaiting time.Duration
		tMaxFlow time.Duration
	}{
		{0, model.Sequential, "A", "Jonathan", "09:30", 30 * time.Minute, time.Hour, 90 * time.Minute},
		{1, model.Sequential, "C", "Jolyne", "14:00", 90 * time.Minute, 150 * time.Minute, 6 * time.Hour},
		{2, model.Concurrent, "E", "Jonathan", "16:00", 0, 0, 8 * time.Hour},
		{3, model.Sequential, "F", "Joseph", "17:00", 0, 30 * time.Minute, 9 * time.Hour},
	}

	var positives []Observation
	for _, o := range table.Rows {
		if o.Outcome {
			positives = append(positives, o)
		}
	}
	if len(positives) != len(tests) {
		t.Fatalf("expected %d positives, got %d", len(tests), len(positives))
	}
	for i, tt := range tests {
		o := positives[i]
		if o.BatchID != tt.id || o.BatchType != tt.kind || o.Activity != tt.activity || o.Resource != tt.resource {
			t.Errorf("positive %d identity = %v/%s/%s/%s", i, o.BatchID, o.BatchType, o.Activity, o.Resource)
		}
		if !o.Instant.Equal(clock(tt.instant)) {
			t.Errorf("batch %d instant = %v, want %s", tt.id, o.Instant, tt.instant)
		}
		if o.NumQueue != 3 {
			t.Errorf("batch %d num_queue = %d, want 3", tt.id, o.NumQueue)
		}
		if o.TReady != tt.tReady || o.TWaiting != tt.tWaiting || o.TMaxFlow != tt.tMaxFlow {
			t.Errorf("batch %d t_ready/t_waiting/t_max_flow = %v/%v/%v, want %v/%v/%v",
				tt.id, o.TReady, o.TWaiting, o.TMaxFlow, tt.tReady, tt.tWaiting, tt.tMaxFlow)
		}
		if o.DayOfWeek != 4 || o.DayOfMonth != 1 {
			t.Errorf("batch %d calendar = %d/%d, want Friday the 1st", tt.id, o.DayOfWeek, o.DayOfMonth)
		}
		if at := clock(tt.instant); o.HourOfDay != at.Hour() || o.Minute != at.Minute() {
			t.Errorf("batch %d time of day = %02d:%02d, want %s", tt.id, o.HourOfDay, o.Minute, tt.instant)
		}
	}
}

func TestBuild_NegativeInstants(t *testing.T) {
	allowed := map[model.BatchID][]string{
		0: {"08:30", "08:45", "09:00", "09:10", "09:20"},
		1: {"11:30", "12:00", "12:30", "13:00", "13:30"},
		3: {"16:30", "16:45"},
	}
	for seed := uint64(1); seed <= 10; seed++ {
		table := build(t, fixtureLog(), Options{ReadyNegatives: 2, EnabledNegatives: 2, Seed: seed})
		for _, o := range table.Rows {
			if o.Outcome {
				continue
			}
			ok := false
			for _, hhmm := range allowed[o.BatchID] {
				if o.Instant.Equal(clock(hhmm)) {
					ok = true
				}
			}
			if !ok {
				t.Errorf("seed %d: unexpected negative instant %v for batch %d", seed, o.Instant, o.BatchID)
			}
		}
	}
}

func TestBuild_NegativeFeatures(t *testing.T) {
	table := build(t, fixtureLog(), Options{ReadyNegatives: 2, EnabledNegatives: 2, Seed: 3})

	find := func(id model.BatchID, hhmm string) *Observation {
		for i := range table.Rows {
			o := &table.Rows[i]
			if !o.Outcome && o.BatchID == id && o.Instant.Equal(clock(hhmm)) {
				return o
			}
		}
		return nil
	}

	// Ready-window instants are always present.
	o := find(1, "13:00")
	if o == nil {
		t.Fatal("missing ready-window negative at 13:00 for batch 1")
	}
	if o.NumQueue != 3 || o.TReady != 30*time.Minute || o.TWaiting != 90*time.Minute || o.TMaxFlow != 5*time.Hour {
		t.Errorf("batch 1 at 13:00 = %+v", *o)
	}

	// Batch 3 samples both earlier enablements.
	o = find(3, "16:30")
	if o == nil {
		t.Fatal("missing enablement negative at 16:30 for batch 3")
	}
	if o.NumQueue != 1 || o.TReady != 0 || o.TWaiting != 0 || o.TMaxFlow != 8*time.Hour+30*time.Minute {
		t.Errorf("batch 3 at 16:30 = %+v", *o)
	}
	o = find(3, "16:45")
	if o == nil || o.NumQueue != 2 || o.TWaiting != 15*time.Minute {
		t.Errorf("batch 3 at 16:45 = %+v", o)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	opts := Options{ReadyNegatives: 2, EnabledNegatives: 2, Seed: 42}
	a := build(t, fixtureLog(), opts)
	b := build(t, fixtureLog(), opts)
	if a.Len() != b.Len() {
		t.Fatalf("lengths differ: %d vs %d", a.Len(), b.Len())
	}
	for i := range a.Rows {
		if !a.Rows[i].Instant.Equal(b.Rows[i].Instant) {
			t.Fatalf("row %d differs between runs with the same seed", i)
		}
	}
}

func TestBuild_DetectedLog(t *testing.T) {
	log := fixtureLog()
	log.ResetBatches()
	batches, err := batch.Detect(context.Background(), log, batch.DefaultOptions())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	batch.Classify(log)
	if len(batches) != 4 {
		t.Fatalf("expected 4 batches, got %d", len(batches))
	}
	counts := batch.Count(batches)
	if counts[model.Sequential] != 3 || counts[model.Concurrent] != 1 {
		t.Errorf("unexpected types %v", counts)
	}

	table, err := Build(log, batches, DefaultOptions())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if pos, neg := table.Counts(); pos != 4 || neg != 10 {
		t.Errorf("positives/negatives = %d/%d, want 4/10", pos, neg)
	}
}

func TestBuild_CalendarInLocalZone(t *testing.T) {
	zone := time.FixedZone("", 2*60*60)
	at := func(hh, mm int) time.Time { return time.Date(2024, 3, 4, hh, mm, 0, 0, zone) }
	log := &model.Log{Instances: []model.Instance{
		{Case: "0", Activity: "A", Resource: "R", Enabled: at(0, 0), Start: at(0, 30), End: at(0, 40), BatchID: 0, BatchType: model.Sequential},
		{Case: "1", Activity: "A", Resource: "R", Enabled: at(0, 10), Start: at(0, 40), End: at(0, 50), BatchID: 0, BatchType: model.Sequential},
	}}
	table := build(t, log, Options{})

	var fired *Observation
	for i := range table.Rows {
		if table.Rows[i].Outcome {
			fired = &table.Rows[i]
		}
	}
	if fired == nil {
		t.Fatal("no positive observation")
	}
	// Monday 2024-03-04 00:30 +02:00 is still Sunday in UTC.
	if fired.DayOfWeek != 0 || fired.DayOfMonth != 4 || fired.HourOfDay != 0 || fired.Minute != 30 {
		t.Errorf("calendar = dow %d, day %d, %02d:%02d; want dow 0, day 4, 00:30",
			fired.DayOfWeek, fired.DayOfMonth, fired.HourOfDay, fired.Minute)
	}
}

func TestReadyInstants(t *testing.T) {
	tests := []struct {
		name           string
		enabled, start string
		k              int
		want           []string
	}{
		{"two inside", "09:00", "09:30", 2, []string{"09:10", "09:20"}},
		{"three inside", "12:30", "14:30", 3, []string{"13:00", "13:30", "14:00"}},
		{"empty window", "17:00", "17:00", 2, nil},
		{"disabled", "09:00", "09:30", 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReadyInstants(clock(tt.enabled), clock(tt.start), tt.k)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if !got[i].Equal(clock(tt.want[i])) {
					t.Errorf("instant %d = %v, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}

	// 1000 instants over 200 days.
	from := clock("00:00")
	to := from.Add(200 * 24 * time.Hour)
	got := ReadyInstants(from, to, 1000)
	if len(got) != 1000 {
		t.Fatalf("long window: got %d instants, want 1000", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i].After(got[i-1]) {
			t.Fatalf("instant %d (%v) not after %v", i, got[i], got[i-1])
		}
	}
	if !got[0].After(from) || !got[999].Before(to) {
		t.Errorf("instants leave the window: %v .. %v", got[0], got[999])
	}
	if want := from.Add(to.Sub(from) / 1001 * 500); got[499].Sub(want).Abs() > time.Microsecond {
		t.Errorf("instant 500 = %v, want about %v", got[499], want)
	}

	// A window of 1ns holds no distinct interior instants.
	s := clock("10:00")
	if got := ReadyInstants(s.Add(-time.Nanosecond), s, 3); len(got) != 0 {
		t.Errorf("expected no instants in a 1ns window, got %v", got)
	}
}

func TestTable_Dataset(t *testing.T) {
	table := build(t, fixtureLog(), DefaultOptions())

	keys := table.Keys(false)
	if len(keys) != 4 || keys[0].Activity != "A" || keys[3].Activity != "F" {
		t.Fatalf("unexpected keys %v", keys)
	}
	if rk := table.Keys(true); rk[0] != (model.Key{Activity: "A", Resource: "Jonathan"}) {
		t.Errorf("unexpected resource-aware key %v", rk[0])
	}

	d := table.Dataset(model.Key{Activity: "A"}, false)
	if d.Len() != 5 || d.Positives() != 1 {
		t.Fatalf("A dataset = %d rows, %d positives", d.Len(), d.Positives())
	}
	x := d.X[0]
	if x[d.Index(FeatureTReady)] != 1800 || x[d.Index(FeatureNumQueue)] != 3 {
		t.Errorf("unexpected vector %v", x)
	}
	if x[d.Index(FeatureInstant)] != float64(clock("09:30").Unix()) {
		t.Errorf("instant = %v, want unix seconds", x[d.Index(FeatureInstant)])
	}

	split := table.Split(false)
	if len(split) != 4 || split[model.Key{Activity: "E"}].Len() != 1 {
		t.Errorf("unexpected split %v", split)
	}
}

func TestOptions_Validate(t *testing.T) {
	if err := (Options{ReadyNegatives: -1}).Validate(); err == nil {
		t.Error("expected an error for negative ready samples")
	}
	if err := (Options{EnabledNegatives: -1}).Validate(); err == nil {
		t.Error("expected an error for negative enablement samples")
	}
	if err := DefaultOptions().Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}
