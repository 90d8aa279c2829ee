package analysis

import (
	"github.com/tidwall/gjson"

	"pert-dashboard/internal/domain"
)

// Source paths in the comparison response of the analysis engine.
const (
	pathExpectedDuration = "classical_pert.expected_duration"
	pathMeanDuration     = "enhanced_pert.mean_duration"
	pathP90              = "enhanced_pert.p90"
	pathP10              = "enhanced_pert.p10"
	pathDifferenceInDays = "comparison.difference_in_days"
)

// NormalizeComparison maps a raw compare-pert response onto the canonical
// ComparisonResult. It is pure and total: absent, null or non-numeric fields
// read as 0 and malformed input yields the zero result.
//
// The engine reports neither a median nor a standard deviation. p50 is the
// simulated mean, and std_dev is p90 - p10/2 when both percentiles are
// present. That formula is kept for compatibility with the existing
// dashboard; it is not a statistical standard deviation.
//
// The engine does not report the classical critical path, so CriticalPath is
// always empty.
func NormalizeComparison(raw []byte) domain.ComparisonResult {
	expected := number(raw, pathExpectedDuration)
	mean := number(raw, pathMeanDuration)
	p90 := number(raw, pathP90)
	difference := number(raw, pathDifferenceInDays)

	var stdDev float64
	p10Field, p90Field := gjson.GetBytes(raw, pathP10), gjson.GetBytes(raw, pathP90)
	if isNumber(p10Field) && isNumber(p90Field) {
		stdDev = p90Field.Num - p10Field.Num/2
	}

	var percentageDiff float64
	if difference != 0 && expected != 0 {
		percentageDiff = difference / expected * 100
	}

	return domain.ComparisonResult{
		Classical: domain.ClassicalSummary{
			ProjectDuration: expected,
			CriticalPath:    []string{},
		},
		MonteCarlo: domain.MonteCarloSummary{
			MeanDuration: mean,
			StdDev:       stdDev,
			Percentiles: domain.Percentiles{
				P50: mean,
				P90: p90,
			},
		},
		Comparison: &domain.ComparisonDelta{
			Difference:     difference,
			PercentageDiff: percentageDiff,
		},
	}
}

func number(raw []byte, path string) float64 {
	if v := gjson.GetBytes(raw, path); isNumber(v) {
		return v.Num
	}
	return 0
}

func isNumber(v gjson.Result) bool {
	return v.Type == gjson.Number
}
