// Package inspect profiles an activity-instance log before discovery.
package inspect

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/logflow/batchflow/internal/model"
)

// QualityReport contains data quality metrics of an activity-instance log.
type QualityReport struct {
	// Basic counts
	TotalInstances  int64 `json:"total_instances"`
	TotalCases      int64 `json:"total_cases"`
	TotalActivities int64 `json:"total_activities"`

	// Time range
	MinTimestamp time.Time `json:"min_timestamp"`
	MaxTimestamp time.Time `json:"max_timestamp"`
	TimeSpan     string    `json:"time_span"`

	Completeness CompletenessMetrics `json:"completeness"`
	Uniqueness   UniquenessMetrics   `json:"uniqueness"`
	Distribution DistributionMetrics `json:"distribution"`
	Timing       TimingMetrics       `json:"timing"`

	Issues   []QualityIssue `json:"issues"`
	Warnings []string       `json:"warnings"`
}

// CompletenessMetrics tracks missing values.
type CompletenessMetrics struct {
	ResourceComplete float64 `json:"resource_complete_pct"`
	MissingResources int64   `json:"missing_resources"`
}

// UniquenessMetrics tracks distinct values and duplicates.
type UniquenessMetrics struct {
	DistinctCases      int64 `json:"distinct_cases"`
	DistinctActivities int64 `json:"distinct_activities"`
	DistinctResources  int64 `json:"distinct_resources"`
	DuplicateInstances int64 `json:"duplicate_instances"`
}

// DistributionMetrics tracks data distribution.
type DistributionMetrics struct {
	AvgInstancesPerCase    float64 `json:"avg_instances_per_case"`
	MinInstancesPerCase    int64   `json:"min_instances_per_case"`
	MaxInstancesPerCase    int64   `json:"max_instances_per_case"`
	MedianInstancesPerCase int64   `json:"median_instances_per_case"`

	TopActivities []ActivityCount `json:"top_activities"`
	TopResources  []ResourceCount `json:"top_resources"`
}

// TimingMetrics counts instance shapes that matter for batch detection.
type TimingMetrics struct {
	// ZeroDuration instances start and end at the same instant.
	ZeroDuration int64 `json:"zero_duration"`
	// NoWait instances start the instant they are enabled.
	NoWait int64 `json:"no_wait"`
	// Annotated instances already carry a batch instance id.
	Annotated int64 `json:"annotated"`
	// SingleInstanceActivities occur once and can never form a batch.
	SingleInstanceActivities []string `json:"single_instance_activities,omitempty"`
}

// ActivityCount holds activity frequency.
type ActivityCount struct {
	Activity string `json:"activity"`
	Count    int64  `json:"count"`
}

// ResourceCount holds resource frequency.
type ResourceCount struct {
	Resource string `json:"resource"`
	Count    int64  `json:"count"`
}

// QualityIssue describes a specific data quality problem.
type QualityIssue struct {
	Severity     string `json:"severity"` // "error", "warning", "info"
	Category     string `json:"category"` // "completeness", "consistency", "validity"
	Description  string `json:"description"`
	AffectedRows int64  `json:"affected_rows"`
}

type instanceKey struct {
	caseID   string
	activity string
	start    int64
}

// QualityAnalyzer performs streaming data quality analysis.
type QualityAnalyzer struct {
	mu sync.Mutex

	totalInstances   int64
	missingResources int64

	minTimestamp int64
	maxTimestamp int64

	cases      map[string]int64 // case -> instance count
	activities map[string]int64 // activity -> count
	resources  map[string]int64 // resource -> count

	// Duplicates share case, activity and start.
	seen       map[instanceKey]struct{}
	duplicates int64

	zeroDuration int64
	noWait       int64
	annotated    int64

	lastStart  int64
	outOfOrder int64
}

// NewQualityAnalyzer creates a new analyzer.
func NewQualityAnalyzer() *QualityAnalyzer {
	return &QualityAnalyzer{
		minTimestamp: math.MaxInt64,
		maxTimestamp: math.MinInt64,
		lastStart:    math.MinInt64,
		cases:        make(map[string]int64),
		activities:   make(map[string]int64),
		resources:    make(map[string]int64),
		seen:         make(map[instanceKey]struct{}),
	}
}

// Analyze profiles every instance of log.
func Analyze(log *model.Log) *QualityReport {
	a := NewQualityAnalyzer()
	for i := range log.Instances {
		a.Add(&log.Instances[i])
	}
	return a.Report()
}

// Add processes an instance for quality analysis.
func (a *QualityAnalyzer) Add(in *model.Instance) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalInstances++
	a.cases[in.Case]++
	a.activities[in.Activity]++

	if in.Resource == "" {
		a.missingResources++
	} else {
		a.resources[in.Resource]++
	}

	enabled, start, end := in.Enabled.UnixNano(), in.Start.UnixNano(), in.End.UnixNano()
	a.minTimestamp = min(a.minTimestamp, enabled)
	a.maxTimestamp = max(a.maxTimestamp, end)

	if start < a.lastStart {
		a.outOfOrder++
	}
	a.lastStart = start

	if start == end {
		a.zeroDuration++
	}
	if start == enabled {
		a.noWait++
	}
	if in.BatchID.Valid() {
		a.annotated++
	}

	k := instanceKey{caseID: in.Case, activity: in.Activity, start: start}
	if _, ok := a.seen[k]; ok {
		a.duplicates++
	}
	a.seen[k] = struct{}{}
}

// Report generates the quality report.
func (a *QualityAnalyzer) Report() *QualityReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	report := &QualityReport{
		TotalInstances:  a.totalInstances,
		TotalCases:      int64(len(a.cases)),
		TotalActivities: int64(len(a.activities)),
	}

	if a.totalInstances > 0 {
		report.MinTimestamp = time.Unix(0, a.minTimestamp).UTC()
		report.MaxTimestamp = time.Unix(0, a.maxTimestamp).UTC()
		report.TimeSpan = time.Duration(a.maxTimestamp - a.minTimestamp).String()
		report.Completeness = CompletenessMetrics{
			ResourceComplete: 100.0 * float64(a.totalInstances-a.missingResources) / float64(a.totalInstances),
			MissingResources: a.missingResources,
		}
	}

	report.Uniqueness = UniquenessMetrics{
		DistinctCases:      int64(len(a.cases)),
		DistinctActivities: int64(len(a.activities)),
		DistinctResources:  int64(len(a.resources)),
		DuplicateInstances: a.duplicates,
	}
	report.Distribution = a.calculateDistribution()
	report.Timing = TimingMetrics{
		ZeroDuration:             a.zeroDuration,
		NoWait:                   a.noWait,
		Annotated:                a.annotated,
		SingleInstanceActivities: a.singleInstanceActivities(),
	}
	report.Issues = a.detectIssues()
	report.Warnings = a.generateWarnings()

	return report
}

func (a *QualityAnalyzer) calculateDistribution() DistributionMetrics {
	dm := DistributionMetrics{}
	if len(a.cases) == 0 {
		return dm
	}

	counts := make([]int64, 0, len(a.cases))
	for _, count := range a.cases {
		counts = append(counts, count)
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i] < counts[j] })

	dm.MinInstancesPerCase = counts[0]
	dm.MaxInstancesPerCase = counts[len(counts)-1]
	dm.AvgInstancesPerCase = float64(a.totalInstances) / float64(len(a.cases))
	dm.MedianInstancesPerCase = counts[len(counts)/2]

	for _, kv := range topN(a.activities, 10) {
		dm.TopActivities = append(dm.TopActivities, ActivityCount{Activity: kv.key, Count: kv.value})
	}
	for _, kv := range topN(a.resources, 10) {
		dm.TopResources = append(dm.TopResources, ResourceCount{Resource: kv.key, Count: kv.value})
	}
	return dm
}

type counted struct {
	key   string
	value int64
}

// topN returns the n most frequent keys of m, ties by name.
func topN(m map[string]int64, n int) []counted {
	sorted := make([]counted, 0, len(m))
	for k, v := range m {
		sorted = append(sorted, counted{k, v})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].value != sorted[j].value {
			return sorted[i].value > sorted[j].value
		}
		return sorted[i].key < sorted[j].key
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func (a *QualityAnalyzer) singleInstanceActivities() []string {
	var out []string
	for act, n := range a.activities {
		if n == 1 {
			out = append(out, act)
		}
	}
	sort.Strings(out)
	return out
}

func (a *QualityAnalyzer) detectIssues() []QualityIssue {
	var issues []QualityIssue

	if a.duplicates > 0 {
		issues = append(issues, QualityIssue{
			Severity:     "warning",
			Category:     "consistency",
			Description:  "Duplicate instances detected (same case, activity, start)",
			AffectedRows: a.duplicates,
		})
	}
	if a.outOfOrder > 0 {
		issues = append(issues, QualityIssue{
			Severity:     "info",
			Category:     "consistency",
			Description:  "Instances not sorted by start time",
			AffectedRows: a.outOfOrder,
		})
	}
	if a.zeroDuration > 0 {
		issues = append(issues, QualityIssue{
			Severity:     "info",
			Category:     "validity",
			Description:  "Zero-duration instances (start equals end)",
			AffectedRows: a.zeroDuration,
		})
	}
	if a.missingResources > 0 {
		issues = append(issues, QualityIssue{
			Severity:     "info",
			Category:     "completeness",
			Description:  "Instances without a resource",
			AffectedRows: a.missingResources,
		})
	}
	return issues
}

func (a *QualityAnalyzer) generateWarnings() []string {
	var warnings []string
	if a.totalInstances == 0 {
		return warnings
	}

	if rate := float64(a.missingResources) / float64(a.totalInstances); rate > 0.5 {
		warnings = append(warnings, fmt.Sprintf("%.1f%% of instances have no resource; resource-aware discovery will merge them", rate*100))
	}
	if rate := float64(a.noWait) / float64(a.totalInstances); rate > 0.9 {
		warnings = append(warnings, fmt.Sprintf("%.1f%% of instances start when enabled; check the enabled-time column", rate*100))
	}
	if rate := float64(a.zeroDuration) / float64(a.totalInstances); rate > 0.5 {
		warnings = append(warnings, fmt.Sprintf("%.1f%% of instances have zero duration; batch types will mostly be Parallel", rate*100))
	}
	if len(a.cases) > 0 && float64(a.totalInstances)/float64(len(a.cases)) < 2 {
		warnings = append(warnings, fmt.Sprintf("Average of %.1f instances per case - consider verifying case ID mapping",
			float64(a.totalInstances)/float64(len(a.cases))))
	}
	return warnings
}

// ToJSON serializes the report to JSON.
func (r *QualityReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// String returns a human-readable summary.
func (r *QualityReport) String() string {
	return fmt.Sprintf(`Log Profile
===========
Total Instances:  %d
Total Cases:      %d
Total Activities: %d

Time Range:
  From: %s
  To:   %s
  Span: %s

Resources: %.1f%% assigned (%d missing), %d distinct

Distribution:
  Instances per Case: min=%d, max=%d, avg=%.1f, median=%d
  Duplicate Instances: %d

Timing:
  Zero duration: %d
  No wait:       %d
  Annotated:     %d
  Single-instance activities: %d

Issues Found: %d
Warnings: %d
`,
		r.TotalInstances, r.TotalCases, r.TotalActivities,
		r.MinTimestamp.Format(time.RFC3339),
		r.MaxTimestamp.Format(time.RFC3339),
		r.TimeSpan,
		r.Completeness.ResourceComplete, r.Completeness.MissingResources, r.Uniqueness.DistinctResources,
		r.Distribution.MinInstancesPerCase, r.Distribution.MaxInstancesPerCase,
		r.Distribution.AvgInstancesPerCase, r.Distribution.MedianInstancesPerCase,
		r.Uniqueness.DuplicateInstances,
		r.Timing.ZeroDuration, r.Timing.NoWait, r.Timing.Annotated,
		len(r.Timing.SingleInstanceActivities),
		len(r.Issues), len(r.Warnings),
	)
}
