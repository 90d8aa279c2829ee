package domain

// TaskTiming is the per-task schedule reported by the analysis engine.
type TaskTiming struct {
	ID       string  `json:"id"`
	Duration float64 `json:"duration"`
	ES       float64 `json:"ES"` // earliest start
	EF       float64 `json:"EF"` // earliest finish
	LS       float64 `json:"LS"` // latest start
	LF       float64 `json:"LF"` // latest finish
	Slack    float64 `json:"slack"`
}

// IsCritical reports whether the task has zero slack.
func (t TaskTiming) IsCritical() bool {
	return t.Slack == 0
}

// MonteCarloResult summarizes the simulated duration distribution.
type MonteCarloResult struct {
	Mean      float64   `json:"mean"`
	P50       float64   `json:"p50"`
	P80       float64   `json:"p80"`
	P95       float64   `json:"p95"`
	Durations []float64 `json:"durations"`
}

// PertResult is the response of a combined deterministic + simulated analysis.
type PertResult struct {
	ProjectDuration float64          `json:"project_duration"`
	TaskTimings     []TaskTiming     `json:"task_timings"`
	CriticalPaths   [][]string       `json:"critical_paths"`
	MonteCarlo      MonteCarloResult `json:"monte_carlo"`
}

// CriticalTasks returns the timings of tasks with zero slack, in reported order.
func (r *PertResult) CriticalTasks() []TaskTiming {
	var critical []TaskTiming
	for _, t := range r.TaskTimings {
		if t.IsCritical() {
			critical = append(critical, t)
		}
	}
	return critical
}

// ClassicalSummary is the deterministic half of a comparison.
type ClassicalSummary struct {
	ProjectDuration float64  `json:"project_duration"`
	CriticalPath    []string `json:"critical_path"`
}

// Percentiles holds the reported simulation percentiles.
type Percentiles struct {
	P50 float64 `json:"p50"`
	P90 float64 `json:"p90"`
}

// MonteCarloSummary is the simulated half of a comparison.
type MonteCarloSummary struct {
	MeanDuration float64     `json:"mean_duration"`
	StdDev       float64     `json:"std_dev"` // derived approximation, see analysis.NormalizeComparison
	Percentiles  Percentiles `json:"percentiles"`
}

// ComparisonDelta quantifies the gap between the two methods.
type ComparisonDelta struct {
	Difference     float64 `json:"difference"`
	PercentageDiff float64 `json:"percentage_diff"`
}

// ComparisonResult is the canonical classical-vs-Monte-Carlo comparison.
// Built once per comparison request and never modified afterwards.
type ComparisonResult struct {
	Classical  ClassicalSummary  `json:"classical"`
	MonteCarlo MonteCarloSummary `json:"monte_carlo"`
	Comparison *ComparisonDelta  `json:"comparison,omitempty"`
}

// Ack is the acknowledgment returned by submission and update calls.
type Ack struct {
	Message string `json:"message"`
}

// Clone returns a deep copy of the result.
func (r ComparisonResult) Clone() ComparisonResult {
	c := r
	if r.Classical.CriticalPath != nil {
		c.Classical.CriticalPath = append([]string{}, r.Classical.CriticalPath...)
	}
	if r.Comparison != nil {
		delta := *r.Comparison
		c.Comparison = &delta
	}
	return c
}
