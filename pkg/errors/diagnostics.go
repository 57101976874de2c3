package errors

import (
	"fmt"
	"sort"
	"sync"
)

// Diagnostic codes. Diagnostics never abort a run; they travel with the result.
const (
	// CodeDegenerateKey: a key has a single outcome class or no negative
	// observations, so rule mining was skipped.
	CodeDegenerateKey Code = "W601"

	// CodeNoBaseline: no unbatched executions exist for a key, so every
	// duration scale factor was defaulted to 1.0.
	CodeNoBaseline Code = "W602"

	// CodeOracleFitFailure: the rule learner could not fit the working
	// table; treated as "no more rules".
	CodeOracleFitFailure Code = "W603"

	// CodeKeyFailed: processing of one key failed and was isolated.
	CodeKeyFailed Code = "W609"
)

// Severity grades a diagnostic.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Diagnostic is a structured, non-fatal condition observed during a run.
type Diagnostic struct {
	Code     Code                   `json:"code" yaml:"code"`
	Severity Severity               `json:"severity" yaml:"severity"`
	Key      string                 `json:"key,omitempty" yaml:"key,omitempty"`
	Message  string                 `json:"message" yaml:"message"`
	Context  map[string]interface{} `json:"context,omitempty" yaml:"context,omitempty"`
}

// String renders the diagnostic on one line.
func (d Diagnostic) String() string {
	if d.Key != "" {
		return fmt.Sprintf("[%s] %s: %s", d.Code, d.Key, d.Message)
	}
	return fmt.Sprintf("[%s] %s", d.Code, d.Message)
}

// DegenerateKey builds the diagnostic for a key skipped by rule mining.
func DegenerateKey(key, reason string) Diagnostic {
	return Diagnostic{
		Code:     CodeDegenerateKey,
		Severity: SeverityWarning,
		Key:      key,
		Message:  "rule mining skipped: " + reason,
	}
}

// NoBaseline builds the diagnostic for a key without unbatched executions.
func NoBaseline(key string) Diagnostic {
	return Diagnostic{
		Code:     CodeNoBaseline,
		Severity: SeverityWarning,
		Key:      key,
		Message:  "no non-batched executions to learn duration scaling factor, 1.0 used as default",
	}
}

// OracleFitFailure builds the diagnostic for a rule learner that could not fit.
func OracleFitFailure(key string, iteration int, cause error) Diagnostic {
	return Diagnostic{
		Code:     CodeOracleFitFailure,
		Severity: SeverityInfo,
		Key:      key,
		Message:  fmt.Sprintf("rule learner stopped: %v", cause),
		Context:  map[string]interface{}{"iteration": iteration},
	}
}

// KeyFailed builds the diagnostic for a key whose processing failed.
func KeyFailed(key string, err error) Diagnostic {
	return Diagnostic{
		Code:     CodeKeyFailed,
		Severity: SeverityWarning,
		Key:      key,
		Message:  err.Error(),
	}
}

// Diagnostics collects diagnostics from concurrent workers.
type Diagnostics struct {
	mu    sync.Mutex
	items []Diagnostic
}

// Add records diagnostics.
func (d *Diagnostics) Add(items ...Diagnostic) {
	if len(items) == 0 {
		return
	}
	d.mu.Lock()
	d.items = append(d.items, items...)
	d.mu.Unlock()
}

// Len returns the number of recorded diagnostics.
func (d *Diagnostics) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

// List returns the diagnostics ordered by key, then code.
// Ordering makes reports independent of worker scheduling.
func (d *Diagnostics) List() []Diagnostic {
	d.mu.Lock()
	out := append([]Diagnostic(nil), d.items...)
	d.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Key != out[j].Key {
			return out[i].Key < out[j].Key
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// Has reports whether any diagnostic with code was recorded for key.
func (d *Diagnostics) Has(key string, code Code) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, item := range d.items {
		if item.Key == key && item.Code == code {
			return true
		}
	}
	return false
}
