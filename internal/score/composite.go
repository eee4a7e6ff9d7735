// Package score turns findings and reputation data into bounded, explainable
// threat scores. It deliberately carries two scorers: the composite scorer
// used by the full pipeline and a simpler direct scorer for quick manual
// previews. The two may disagree; they serve different contracts.
package score

import (
	"math"

	"github.com/lvonguyen/threatlens/internal/detect"
)

// methodWeights maps detection method names to their weight in the
// composite score. Methods not in the table get defaultMethodWeight.
var methodWeights = map[string]int{
	detect.MethodSSHBruteForce:       40,
	detect.MethodSQLInjection:        40,
	detect.MethodMalwareIndicator:    35,
	detect.MethodDDoSIndicator:       30,
	detect.MethodWebShellUpload:      40,
	detect.MethodPrivilegeEscalation: 35,
	detect.MethodRateAnomaly:         25,
	detect.MethodErrorRatioAnomaly:   20,
	detect.MethodAuthFailureAnomaly:  30,
	detect.MethodPeakHourActivity:    15,
	detect.MethodRapidFireRequests:   25,
	detect.MethodSeverityEscalation:  30,
	detect.MethodDistributedAttack:   35,
	detect.MethodMultiVectorAttack:   40,
}

const defaultMethodWeight = 20

// totalWeight is the sum of every weight in the table; the composite score
// normalizes against it.
var totalWeight = func() int {
	var sum int
	for _, w := range methodWeights {
		sum += w
	}
	return sum
}()

// MethodWeight returns the weight for a method name.
func MethodWeight(method string) int {
	if w, ok := methodWeights[method]; ok {
		return w
	}
	return defaultMethodWeight
}

// Composite combines findings into a 0-100 score. Each finding contributes
// (confidence/100)*weight; the sum is normalized by the table's total weight,
// scaled to 0-100, rounded, and clamped. Adding a finding with positive
// confidence can therefore only raise the score.
func Composite(findings []detect.Finding) int {
	if len(findings) == 0 {
		return 0
	}

	var sum float64
	for _, f := range findings {
		sum += float64(f.Confidence) / 100 * float64(MethodWeight(f.Method))
	}

	score := int(math.Round(sum / float64(totalWeight) * 100))
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}
