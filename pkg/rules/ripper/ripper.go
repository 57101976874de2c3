// Package ripper is a RIPPER-style rule-list learner used as the default
// rule-induction oracle.
//
// Rules are grown greedily on two thirds of the uncovered rows by FOIL
// gain over quantile cut points, pruned on the remaining third by
// (p-n)/(p+n), and accepted while their precision on the uncovered rows
// stays above MinPrecision. The split is by row position, so a fit is a
// pure function of its dataset.
package ripper

import (
	"context"
	"math"
	"sort"

	"github.com/logflow/batchflow/pkg/rules"
)

// Learner fits ordered rule lists.
type Learner struct {
	// MaxRules caps the rules of one fit.
	MaxRules int
	// Bins is the number of quantile bins per feature.
	Bins int
	// MinPrecision is the precision a rule must exceed to be kept.
	MinPrecision float64
	// MaxConditions caps the conditions of one rule.
	MaxConditions int
}

// New returns a learner with default settings.
func New() *Learner {
	return &Learner{
		MaxRules:      2,
		Bins:          10,
		MinPrecision:  0.5,
		MaxConditions: 4,
	}
}

var _ rules.Oracle = (*Learner)(nil)

// Fit implements rules.Oracle.
func (l *Learner) Fit(ctx context.Context, d *rules.Dataset) (rules.RuleSet, error) {
	if d.Degenerate() {
		return rules.RuleSet{}, rules.ErrDegenerate
	}

	candidates := l.candidates(d)
	remaining := make([]int, d.Len())
	for i := range remaining {
		remaining[i] = i
	}

	var out rules.RuleSet
	for len(out.Rules) < l.maxRules() {
		if err := ctx.Err(); err != nil {
			return rules.RuleSet{}, err
		}
		if countPositives(d, remaining) == 0 {
			break
		}

		grow, prune := split(d, remaining)
		rule := l.grow(d, grow, candidates)
		if len(rule.Conditions) == 0 {
			break
		}
		rule = prune.pruned(d, rule)

		p, n := coverage(d, rule, remaining)
		if p == 0 || float64(p)/float64(p+n) <= l.MinPrecision {
			break
		}
		out.Rules = append(out.Rules, rule)
		remaining = uncovered(d, rule, remaining)
	}

	if len(out.Rules) == 0 {
		return rules.RuleSet{}, rules.ErrNoRules
	}
	return out, nil
}

func (l *Learner) maxRules() int {
	if l.MaxRules > 0 {
		return l.MaxRules
	}
	return 2
}

func (l *Learner) maxConditions() int {
	if l.MaxConditions > 0 {
		return l.MaxConditions
	}
	return 4
}

// candidates returns the single-bound conditions worth trying: for every
// feature, <= and >= each quantile cut point.
func (l *Learner) candidates(d *rules.Dataset) []rules.Condition {
	bins := l.Bins
	if bins < 2 {
		bins = 10
	}

	var out []rules.Condition
	for f, name := range d.Features {
		for _, c := range cutPoints(d, f, bins) {
			out = append(out, rules.AtMost(name, c), rules.AtLeast(name, c))
		}
	}
	return out
}

// cutPoints returns the distinct values of column f when there are at most
// bins of them, and the bin boundaries of equal-frequency binning otherwise.
func cutPoints(d *rules.Dataset, f, bins int) []float64 {
	seen := make(map[float64]bool)
	var vals []float64
	for _, x := range d.X {
		if v := x[f]; !math.IsNaN(v) && !seen[v] {
			seen[v] = true
			vals = append(vals, v)
		}
	}
	sort.Float64s(vals)
	if len(vals) <= bins {
		return vals
	}

	cuts := make([]float64, 0, bins-1)
	for k := 1; k < bins; k++ {
		v := vals[k*len(vals)/bins]
		if len(cuts) == 0 || cuts[len(cuts)-1] != v {
			cuts = append(cuts, v)
		}
	}
	return cuts
}

// grow builds a rule on rows by repeatedly adding the condition with the
// highest FOIL gain, until the rule covers no negatives or no condition
// improves it.
func (l *Learner) grow(d *rules.Dataset, rows []int, candidates []rules.Condition) rules.Rule {
	var rule rules.Rule
	covered := rows
	p0, n0 := countClasses(d, covered)

	for len(rule.Conditions) < l.maxConditions() && n0 > 0 {
		best, bestGain := -1, 0.0
		for i, c := range candidates {
			if hasCondition(rule, c) {
				continue
			}
			p1, n1 := countCovering(d, c, covered)
			if p1 == 0 {
				continue
			}
			if gain := foilGain(p0, n0, p1, n1); gain > bestGain {
				best, bestGain = i, gain
			}
		}
		if best < 0 {
			break
		}
		rule.Conditions = append(rule.Conditions, candidates[best])
		covered = filter(d, candidates[best], covered)
		p0, n0 = countClasses(d, covered)
	}
	return rule
}

// foilGain is p1 * (log2(p1/(p1+n1)) - log2(p0/(p0+n0))).
func foilGain(p0, n0, p1, n1 int) float64 {
	before := math.Log2(float64(p0) / float64(p0+n0))
	after := math.Log2(float64(p1) / float64(p1+n1))
	return float64(p1) * (after - before)
}

// pruneSet holds the rows a grown rule is pruned against.
type pruneSet []int

// pruned keeps the prefix of rule's conditions with the best (p-n)/(p+n) on
// the prune rows. Ties keep the shorter prefix.
func (s pruneSet) pruned(d *rules.Dataset, rule rules.Rule) rules.Rule {
	best, bestValue := len(rule.Conditions), math.Inf(-1)
	for k := 1; k <= len(rule.Conditions); k++ {
		prefix := rules.Rule{Conditions: rule.Conditions[:k]}
		p, n := coverage(d, prefix, s)
		value := -1.0
		if p+n > 0 {
			value = float64(p-n) / float64(p+n)
		}
		if value > bestValue {
			best, bestValue = k, value
		}
	}
	return rules.Rule{Conditions: append([]rules.Condition(nil), rule.Conditions[:best]...)}
}

// split assigns every third remaining row to the prune set. When either
// part lacks positives, both sets are the full remaining rows.
func split(d *rules.Dataset, rows []int) ([]int, pruneSet) {
	var grow, prune []int
	for i, r := range rows {
		if i%3 == 2 {
			prune = append(prune, r)
		} else {
			grow = append(grow, r)
		}
	}
	if countPositives(d, grow) == 0 || countPositives(d, prune) == 0 {
		return rows, rows
	}
	return grow, prune
}

func hasCondition(rule rules.Rule, c rules.Condition) bool {
	for _, have := range rule.Conditions {
		if have.Feature == c.Feature && samePtr(have.Min, c.Min) && samePtr(have.Max, c.Max) {
			return true
		}
	}
	return false
}

func samePtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func value(d *rules.Dataset, c rules.Condition, row int) float64 {
	return d.X[row][d.Index(c.Feature)]
}

func filter(d *rules.Dataset, c rules.Condition, rows []int) []int {
	var out []int
	for _, r := range rows {
		if c.Holds(value(d, c, r)) {
			out = append(out, r)
		}
	}
	return out
}

func countCovering(d *rules.Dataset, c rules.Condition, rows []int) (p, n int) {
	for _, r := range rows {
		if !c.Holds(value(d, c, r)) {
			continue
		}
		if d.Y[r] {
			p++
		} else {
			n++
		}
	}
	return p, n
}

func countClasses(d *rules.Dataset, rows []int) (p, n int) {
	for _, r := range rows {
		if d.Y[r] {
			p++
		} else {
			n++
		}
	}
	return p, n
}

func countPositives(d *rules.Dataset, rows []int) int {
	p, _ := countClasses(d, rows)
	return p
}

func coverage(d *rules.Dataset, rule rules.Rule, rows []int) (p, n int) {
	for _, r := range rows {
		if !rule.Covers(d, r) {
			continue
		}
		if d.Y[r] {
			p++
		} else {
			n++
		}
	}
	return p, n
}

func uncovered(d *rules.Dataset, rule rules.Rule, rows []int) []int {
	var out []int
	for _, r := range rows {
		if !rule.Covers(d, r) {
			out = append(out, r)
		}
	}
	return out
}
