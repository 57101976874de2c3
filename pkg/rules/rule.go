package rules

import (
	"strconv"
	"strings"
)

// Condition restricts one feature to a closed interval. A nil bound is open.
type Condition struct {
	Feature string   `json:"feature" yaml:"feature"`
	Min     *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max     *float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

// Between returns the condition min <= feature <= max.
func Between(feature string, min, max float64) Condition {
	return Condition{Feature: feature, Min: &min, Max: &max}
}

// AtLeast returns the condition feature >= min.
func AtLeast(feature string, min float64) Condition {
	return Condition{Feature: feature, Min: &min}
}

// AtMost returns the condition feature <= max.
func AtMost(feature string, max float64) Condition {
	return Condition{Feature: feature, Max: &max}
}

// Holds reports whether v satisfies the condition.
func (c Condition) Holds(v float64) bool {
	if c.Min != nil && v < *c.Min {
		return false
	}
	if c.Max != nil && v > *c.Max {
		return false
	}
	return true
}

// String renders the condition, e.g. "t_ready>=1800" or "num_queue=3".
func (c Condition) String() string {
	switch {
	case c.Min != nil && c.Max != nil && *c.Min == *c.Max:
		return c.Feature + "=" + formatBound(*c.Min)
	case c.Min != nil && c.Max != nil:
		return formatBound(*c.Min) + "<=" + c.Feature + "<=" + formatBound(*c.Max)
	case c.Min != nil:
		return c.Feature + ">=" + formatBound(*c.Min)
	case c.Max != nil:
		return c.Feature + "<=" + formatBound(*c.Max)
	default:
		return c.Feature
	}
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Rule is a conjunction of conditions. A rule without conditions covers
// every row.
type Rule struct {
	Conditions []Condition `json:"conditions" yaml:"conditions"`
}

// Covers reports whether row i of d satisfies every condition.
// Conditions over features d does not have never hold.
func (r Rule) Covers(d *Dataset, i int) bool {
	for _, c := range r.Conditions {
		idx := d.Index(c.Feature)
		if idx < 0 || !c.Holds(d.X[i][idx]) {
			return false
		}
	}
	return true
}

// Predict returns the rows of d the rule covers.
func (r Rule) Predict(d *Dataset) []bool {
	return RuleSet{Rules: []Rule{r}}.Predict(d)
}

// String renders the rule as "[a ^ b]".
func (r Rule) String() string {
	parts := make([]string, len(r.Conditions))
	for i, c := range r.Conditions {
		parts[i] = c.String()
	}
	return "[" + strings.Join(parts, " ^ ") + "]"
}

// RuleSet is an ordered disjunction of rules.
type RuleSet struct {
	Rules []Rule
}

// First returns the first rule, if any.
func (s RuleSet) First() (Rule, bool) {
	if len(s.Rules) == 0 {
		return Rule{}, false
	}
	return s.Rules[0], true
}

// Predict returns, per row of d, whether any rule covers it.
func (s RuleSet) Predict(d *Dataset) []bool {
	out := make([]bool, d.Len())
	for i := range out {
		for _, r := range s.Rules {
			if r.Covers(d, i) {
				out[i] = true
				break
			}
		}
	}
	return out
}

// String renders the set as "[a ^ b] V [c]".
func (s RuleSet) String() string {
	parts := make([]string, len(s.Rules))
	for i, r := range s.Rules {
		parts[i] = r.String()
	}
	return strings.Join(parts, " V ")
}
