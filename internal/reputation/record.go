// Package reputation looks up abuse-reputation records for source addresses,
// caches them with a TTL, and derives a bounded score adjustment. Lookups
// never fail: when the external service is unavailable a local heuristic
// generator produces a plausible record instead.
package reputation

import (
	"fmt"
	"time"
)

// Trend describes the direction of an address's recent reputation.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// RiskLevel is the coarse reputation bucket.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Record is one address's abuse-reputation snapshot. Address-to-record
// mapping is last-writer-wins; records carry no versioning.
type Record struct {
	Address        string    `json:"address"`
	AbuseScore     int       `json:"abuse_score"` // 0-100
	ReportCount    int       `json:"report_count"`
	LastReportedAt time.Time `json:"last_reported_at,omitempty"`
	IsListed       bool      `json:"is_listed"`
	Country        string    `json:"country,omitempty"`
	Organization   string    `json:"organization,omitempty"`
	Trend          Trend     `json:"trend"`
	Categories     []string  `json:"categories,omitempty"`
	RiskLevel      RiskLevel `json:"risk_level"`
}

// riskLevelFor buckets an abuse score into a risk level.
func riskLevelFor(abuseScore int) RiskLevel {
	switch {
	case abuseScore >= 80:
		return RiskCritical
	case abuseScore >= 60:
		return RiskHigh
	case abuseScore >= 30:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Recommendations derives response recommendations from a record. The
// fusion layer merges these with the caller's base list.
func Recommendations(rec *Record) []string {
	if rec == nil {
		return nil
	}

	var recs []string
	if rec.IsListed {
		recs = append(recs, fmt.Sprintf("Block %s at the network perimeter", rec.Address))
	}
	switch rec.RiskLevel {
	case RiskCritical:
		recs = append(recs, "Escalate to incident response immediately")
	case RiskHigh:
		recs = append(recs, "Review all recent activity from this address")
	}
	if rec.Trend == TrendDeclining {
		recs = append(recs, "Monitor this address for continued abuse reports")
	}
	return recs
}
