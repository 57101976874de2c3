package rules

import (
	"context"
	"errors"

	"github.com/RoaringBitmap/roaring"

	bferrors "github.com/logflow/batchflow/pkg/errors"
)

// FiringRules is the accepted rule list of a key with its confidence and
// positive-only support over the full observation table.
type FiringRules struct {
	Rules      []Rule  `json:"rules" yaml:"rules"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Support    float64 `json:"support" yaml:"support"`
}

// RuleSet returns the accepted rules as a set.
func (f *FiringRules) RuleSet() RuleSet {
	return RuleSet{Rules: f.Rules}
}

// Miner runs sequential covering around an Oracle.
//
// Each iteration fits the oracle on the rows not yet explained and keeps
// only the first rule it returns. Support is counted on positive rows only:
// true positives of the rule on the working rows divided by the positives of
// the full table. An accepted rule removes from the working rows everything
// the accepted list predicts positive.
type Miner struct {
	Oracle     Oracle
	MinSupport float64
	MaxRules   int
}

// DefaultMiner returns a miner with the default thresholds.
func DefaultMiner(o Oracle) *Miner {
	return &Miner{Oracle: o, MinSupport: 0.25, MaxRules: 3}
}

// Validate checks the thresholds.
func (m *Miner) Validate() error {
	if m.Oracle == nil {
		return bferrors.New(bferrors.CodeInvalidParameters, "miner has no oracle")
	}
	if !(m.MinSupport > 0 && m.MinSupport <= 1) {
		return bferrors.InvalidParameter("min_rule_support", m.MinSupport, "in (0, 1]")
	}
	if m.MaxRules < 1 {
		return bferrors.InvalidParameter("max_rules", m.MaxRules, ">= 1")
	}
	return nil
}

// Mine returns the accepted rules, or nil when none was accepted.
// The search stops once no positive row is left uncovered. Oracle failures
// other than ErrNoRules and ErrDegenerate end it with a diagnostic without a
// key; the caller owns the key. The error is non-nil only for invalid
// thresholds or a canceled context.
func (m *Miner) Mine(ctx context.Context, d *Dataset) (*FiringRules, []bferrors.Diagnostic, error) {
	if err := m.Validate(); err != nil {
		return nil, nil, err
	}
	positives := d.Positives()
	if d.Degenerate() {
		return nil, []bferrors.Diagnostic{bferrors.DegenerateKey("", "single outcome class")}, nil
	}

	working := roaring.New()
	working.AddRange(0, uint64(d.Len()))

	var diags []bferrors.Diagnostic
	var accepted []Rule
	for iteration := 1; len(accepted) < m.MaxRules && !working.IsEmpty(); iteration++ {
		rows := working.ToArray()
		sub := d.Subset(rows)
		if sub.Positives() == 0 {
			break
		}

		fitted, err := m.Oracle.Fit(ctx, sub)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, diags, bferrors.Wrap(ctxErr, bferrors.CodeContextCanceled, "rule mining interrupted")
		}
		if err != nil {
			if !errors.Is(err, ErrNoRules) && !errors.Is(err, ErrDegenerate) {
				diags = append(diags, bferrors.OracleFitFailure("", iteration, err))
			}
			break
		}
		rule, ok := fitted.First()
		if !ok {
			break
		}

		if support := float64(truePositives(rule.Predict(sub), sub.Y)) / float64(positives); support < m.MinSupport {
			break
		}
		accepted = append(accepted, rule)

		predicted := RuleSet{Rules: accepted}.Predict(sub)
		for i, p := range predicted {
			if p {
				working.Remove(rows[i])
			}
		}
	}

	if len(accepted) == 0 {
		return nil, diags, nil
	}

	predicted := RuleSet{Rules: accepted}.Predict(d)
	tp := truePositives(predicted, d.Y)
	covered := 0
	for _, p := range predicted {
		if p {
			covered++
		}
	}
	out := &FiringRules{Rules: accepted, Support: float64(tp) / float64(positives)}
	if covered > 0 {
		out.Confidence = float64(tp) / float64(covered)
	}
	return out, diags, nil
}

func truePositives(predicted, actual []bool) int {
	n := 0
	for i, p := range predicted {
		if p && actual[i] {
			n++
		}
	}
	return n
}
