// Package rules discovers firing rules: short disjunctions of feature
// conditions that predict when a resource fires a pending batch.
package rules

import (
	"context"
	"errors"
)

var (
	// ErrNoRules is returned by an Oracle that found no rule worth keeping.
	ErrNoRules = errors.New("rules: no rule found")

	// ErrDegenerate is returned by an Oracle given a single-class dataset.
	ErrDegenerate = errors.New("rules: dataset has a single outcome class")
)

// Oracle is a rule-induction learner. Fit must not keep state between
// calls; each call sees only the dataset it is given.
type Oracle interface {
	Fit(ctx context.Context, d *Dataset) (RuleSet, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, d *Dataset) (RuleSet, error)

// Fit implements Oracle.
func (f OracleFunc) Fit(ctx context.Context, d *Dataset) (RuleSet, error) {
	return f(ctx, d)
}
