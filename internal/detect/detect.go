// Package detect holds the independent detection methods. Each method
// consumes one source's event slice and emits zero or more confidence-scored
// findings with evidence. Detectors are pure and safe to run concurrently.
package detect

import (
	"github.com/lvonguyen/threatlens/internal/logparse"
)

// Method names. The composite scorer keys its weight table on these.
const (
	MethodSSHBruteForce       = "ssh_brute_force"
	MethodSQLInjection        = "sql_injection"
	MethodMalwareIndicator    = "malware_indicator"
	MethodDDoSIndicator       = "ddos_indicator"
	MethodWebShellUpload      = "web_shell_upload"
	MethodPrivilegeEscalation = "privilege_escalation"
	MethodRateAnomaly         = "rate_anomaly"
	MethodErrorRatioAnomaly   = "error_ratio_anomaly"
	MethodAuthFailureAnomaly  = "auth_failure_anomaly"
	MethodPeakHourActivity    = "peak_hour_activity"
	MethodRapidFireRequests   = "rapid_fire_requests"
	MethodSeverityEscalation  = "severity_escalation"
	MethodDistributedAttack   = "distributed_attack"
	MethodMultiVectorAttack   = "multi_vector_attack"
)

// Finding is one method's explainable claim about a source's behavior.
type Finding struct {
	Method      string   `json:"method"`
	Confidence  int      `json:"confidence"` // 0-100
	Description string   `json:"description"`
	Evidence    []string `json:"evidence,omitempty"`
}

// Detector analyzes one source's events. Implementations must be pure,
// order-independent and safe for concurrent Detect calls.
type Detector interface {
	Name() string
	Detect(events []*logparse.Event) []Finding
}

// All returns the full detector set with the given anomaly baselines.
func All(cfg AnomalyConfig) []Detector {
	return []Detector{
		NewSignatureDetector(),
		NewAnomalyDetector(cfg),
		NewTemporalDetector(),
		NewEscalationDetector(),
		NewCorrelationDetector(),
	}
}

// capEvidence bounds an evidence list to keep findings readable.
func capEvidence(msgs []string, limit int) []string {
	if len(msgs) <= limit {
		return msgs
	}
	return msgs[:limit]
}

func clampConfidence(c, ceiling int) int {
	if c > ceiling {
		return ceiling
	}
	if c < 0 {
		return 0
	}
	return c
}
