package ripper

import (
	"context"
	"errors"
	"testing"

	"github.com/logflow/batchflow/pkg/rules"
)

func queueDataset() *rules.Dataset {
	d := rules.NewDataset([]string{"num_queue", "hour_of_day"})
	// The batch fires once three cases are waiting.
	for i := 0; i < 12; i++ {
		queue := float64(i%4 + 1)
		d.Add([]float64{queue, float64(8 + i%5)}, queue >= 3)
	}
	return d
}

func TestLearner_SeparableThreshold(t *testing.T) {
	d := queueDataset()
	rs, err := New().Fit(context.Background(), d)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	first, ok := rs.First()
	if !ok {
		t.Fatal("expected at least one rule")
	}
	if got := first.String(); got != "[num_queue>=3]" {
		t.Errorf("first rule = %s, want [num_queue>=3]", got)
	}

	pred := rs.Predict(d)
	for i := range pred {
		if pred[i] != d.Y[i] {
			t.Errorf("row %d predicted %v, actual %v", i, pred[i], d.Y[i])
		}
	}
}

func TestLearner_MinedWithoutDiagnostics(t *testing.T) {
	got, diags, err := rules.DefaultMiner(New()).Mine(context.Background(), queueDataset())
	if err != nil {
		t.Fatalf("Mine: %v", err)
	}
	if got == nil || got.Support != 1 || got.Confidence != 1 {
		t.Fatalf("expected an exact rule list, got %+v", got)
	}
	if len(diags) != 0 {
		t.Errorf("unexpected diagnostics: %v", diags)
	}
}

func TestLearner_Degenerate(t *testing.T) {
	d := rules.NewDataset([]string{"x"})
	d.Add([]float64{1}, true)
	d.Add([]float64{2}, true)

	if _, err := New().Fit(context.Background(), d); !errors.Is(err, rules.ErrDegenerate) {
		t.Errorf("expected ErrDegenerate, got %v", err)
	}
	if _, err := New().Fit(context.Background(), rules.NewDataset([]string{"x"})); !errors.Is(err, rules.ErrDegenerate) {
		t.Errorf("expected ErrDegenerate on empty data, got %v", err)
	}
}

func TestLearner_NoSignal(t *testing.T) {
	d := rules.NewDataset([]string{"x"})
	for i := 0; i < 6; i++ {
		d.Add([]float64{5}, i%2 == 0)
	}
	if _, err := New().Fit(context.Background(), d); !errors.Is(err, rules.ErrNoRules) {
		t.Errorf("expected ErrNoRules, got %v", err)
	}
}

func TestLearner_Deterministic(t *testing.T) {
	d := rules.NewDataset([]string{"t_waiting", "minute"})
	for i := 0; i < 30; i++ {
		w := float64((i * 37) % 100)
		d.Add([]float64{w, float64((i * 13) % 60)}, w > 60 || i%7 == 0)
	}
	a, errA := New().Fit(context.Background(), d)
	b, errB := New().Fit(context.Background(), d)
	if (errA == nil) != (errB == nil) || a.String() != b.String() {
		t.Errorf("fits differ: %s (%v) vs %s (%v)", a, errA, b, errB)
	}
}

func TestCutPoints(t *testing.T) {
	d := rules.NewDataset([]string{"x"})
	for i := 0; i < 100; i++ {
		d.Add([]float64{float64(i)}, i%2 == 0)
	}
	cuts := cutPoints(d, 0, 4)
	want := []float64{25, 50, 75}
	if len(cuts) != len(want) {
		t.Fatalf("cuts = %v, want %v", cuts, want)
	}
	for i := range want {
		if cuts[i] != want[i] {
			t.Errorf("cuts = %v, want %v", cuts, want)
		}
	}

	few := rules.NewDataset([]string{"x"})
	few.Add([]float64{3}, true)
	few.Add([]float64{1}, false)
	few.Add([]float64{3}, false)
	if got := cutPoints(few, 0, 4); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("distinct cuts = %v, want [1 3]", got)
	}
}
