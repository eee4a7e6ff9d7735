package detect

import (
	"fmt"

	"github.com/lvonguyen/threatlens/internal/logparse"
)

const (
	escalationMinEvents = 3

	criticalEscalationConfidence = 85
	errorEscalationConfidence    = 70
)

// EscalationDetector flags sources whose event severity climbs to error or
// critical. Warning/info-only sources produce no finding.
type EscalationDetector struct{}

func NewEscalationDetector() *EscalationDetector { return &EscalationDetector{} }

func (d *EscalationDetector) Name() string { return "escalation" }

func (d *EscalationDetector) Detect(events []*logparse.Event) []Finding {
	if len(events) < escalationMinEvents {
		return nil
	}

	var criticals, errors int
	var criticalEvidence []string
	for _, ev := range events {
		switch ev.Severity {
		case logparse.SeverityCritical:
			criticals++
			criticalEvidence = append(criticalEvidence, ev.Message)
		case logparse.SeverityError:
			errors++
		}
	}

	if criticals > 0 {
		desc := fmt.Sprintf("severity escalated to critical (%d critical events)", criticals)
		if errors > 0 {
			desc = fmt.Sprintf("severity escalated to critical (%d critical events after %d errors)", criticals, errors)
		}
		return []Finding{{
			Method:      MethodSeverityEscalation,
			Confidence:  criticalEscalationConfidence,
			Description: desc,
			Evidence:    capEvidence(criticalEvidence, 5),
		}}
	}

	if errors > 0 {
		return []Finding{{
			Method:      MethodSeverityEscalation,
			Confidence:  errorEscalationConfidence,
			Description: fmt.Sprintf("severity escalated to error (%d error events)", errors),
		}}
	}

	return nil
}
