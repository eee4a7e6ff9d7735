package detect

import (
	"fmt"
	"math"
	"strings"

	"github.com/lvonguyen/threatlens/internal/logparse"
)

// AnomalyConfig holds the statistical baselines. Zero values fall back to
// the defaults below.
type AnomalyConfig struct {
	RequestsPerHour    float64 `yaml:"requests_per_hour"`
	AuthFailuresPerDay float64 `yaml:"auth_failures_per_day"`
}

const (
	defaultRequestsPerHour    = 10.0
	defaultAuthFailuresPerDay = 2.0

	rateConfidenceCeiling  = 90
	errorConfidenceCeiling = 85
	authConfidenceCeiling  = 95
)

// AnomalyDetector compares a source's behavior to fixed baselines: request
// rate, error ratio, and failed-auth volume.
type AnomalyDetector struct {
	cfg AnomalyConfig
}

func NewAnomalyDetector(cfg AnomalyConfig) *AnomalyDetector {
	if cfg.RequestsPerHour <= 0 {
		cfg.RequestsPerHour = defaultRequestsPerHour
	}
	if cfg.AuthFailuresPerDay <= 0 {
		cfg.AuthFailuresPerDay = defaultAuthFailuresPerDay
	}
	return &AnomalyDetector{cfg: cfg}
}

func (d *AnomalyDetector) Name() string { return "anomaly" }

func (d *AnomalyDetector) Detect(events []*logparse.Event) []Finding {
	if len(events) == 0 {
		return nil
	}

	var findings []Finding

	// Request rate versus baseline. The span is floored at one hour so a
	// momentary burst cannot divide by a near-zero window.
	first, last := events[0].Timestamp, events[0].Timestamp
	for _, ev := range events[1:] {
		if ev.Timestamp.Before(first) {
			first = ev.Timestamp
		}
		if ev.Timestamp.After(last) {
			last = ev.Timestamp
		}
	}
	hours := math.Max(1, last.Sub(first).Hours())
	rate := float64(len(events)) / hours

	if rate > 3*d.cfg.RequestsPerHour {
		confidence := clampConfidence(
			50+int(10*math.Log2(rate/d.cfg.RequestsPerHour)),
			rateConfidenceCeiling,
		)
		findings = append(findings, Finding{
			Method:      MethodRateAnomaly,
			Confidence:  confidence,
			Description: fmt.Sprintf("request rate %.1f/h exceeds 3x baseline of %.1f/h", rate, d.cfg.RequestsPerHour),
		})
	}

	// Error ratio across the event set.
	var errors int
	for _, ev := range events {
		if ev.Severity == logparse.SeverityError || ev.Severity == logparse.SeverityCritical {
			errors++
		}
	}
	ratio := float64(errors) / float64(len(events))
	if ratio > 0.3 {
		confidence := clampConfidence(40+int(ratio*100), errorConfidenceCeiling)
		findings = append(findings, Finding{
			Method:      MethodErrorRatioAnomaly,
			Confidence:  confidence,
			Description: fmt.Sprintf("%.0f%% of events are error or critical severity", ratio*100),
		})
	}

	// Failed authentication volume versus the per-day baseline.
	var failed []string
	for _, ev := range events {
		lower := strings.ToLower(ev.Message)
		if strings.Contains(lower, "failed password") ||
			strings.Contains(lower, "authentication failure") ||
			strings.Contains(lower, "invalid user") {
			failed = append(failed, ev.Message)
		}
	}
	if float64(len(failed)) > 2*d.cfg.AuthFailuresPerDay {
		confidence := clampConfidence(60+len(failed)*5, authConfidenceCeiling)
		findings = append(findings, Finding{
			Method:      MethodAuthFailureAnomaly,
			Confidence:  confidence,
			Description: fmt.Sprintf("%d authentication failures against a baseline of %.0f/day", len(failed), d.cfg.AuthFailuresPerDay),
			Evidence:    capEvidence(failed, 5),
		})
	}

	return findings
}
