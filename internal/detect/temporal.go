package detect

import (
	"fmt"
	"sort"
	"time"

	"github.com/lvonguyen/threatlens/internal/logparse"
)

const (
	temporalMinEvents = 5

	peakHourConfidence  = 65
	rapidFireConfidence = 75

	// rapidFireWindow caps how many sorted events the adjacent-pair scan
	// inspects; bursts show up at the front.
	rapidFireWindow = 20
	rapidFirePairs  = 3
)

// TemporalDetector looks for hour-of-day concentration and sub-second
// rapid-fire bursts.
type TemporalDetector struct{}

func NewTemporalDetector() *TemporalDetector { return &TemporalDetector{} }

func (d *TemporalDetector) Name() string { return "temporal" }

func (d *TemporalDetector) Detect(events []*logparse.Event) []Finding {
	if len(events) < temporalMinEvents {
		return nil
	}

	var findings []Finding

	if f, ok := d.peakHours(events); ok {
		findings = append(findings, f)
	}
	if f, ok := d.rapidFire(events); ok {
		findings = append(findings, f)
	}

	return findings
}

// peakHours flags up to two hours whose event count exceeds 3x the
// per-hour average.
func (d *TemporalDetector) peakHours(events []*logparse.Event) (Finding, bool) {
	var counts [24]int
	for _, ev := range events {
		counts[ev.Timestamp.Hour()]++
	}
	average := float64(len(events)) / 24.0

	type hourCount struct {
		hour  int
		count int
	}
	var peaks []hourCount
	for hour, count := range counts {
		if float64(count) > 3*average && count > 0 {
			peaks = append(peaks, hourCount{hour, count})
		}
	}
	if len(peaks) == 0 {
		return Finding{}, false
	}

	sort.Slice(peaks, func(i, j int) bool { return peaks[i].count > peaks[j].count })
	if len(peaks) > 2 {
		peaks = peaks[:2]
	}

	var evidence []string
	for _, p := range peaks {
		evidence = append(evidence, fmt.Sprintf("%02d:00-%02d:59: %d events", p.hour, p.hour, p.count))
	}

	return Finding{
		Method:      MethodPeakHourActivity,
		Confidence:  peakHourConfidence,
		Description: fmt.Sprintf("activity concentrated in %d peak hour(s) above 3x the hourly average", len(peaks)),
		Evidence:    evidence,
	}, true
}

// rapidFire counts adjacent event pairs under one second apart among the
// first rapidFireWindow time-sorted events.
func (d *TemporalDetector) rapidFire(events []*logparse.Event) (Finding, bool) {
	sorted := make([]*logparse.Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	if len(sorted) > rapidFireWindow {
		sorted = sorted[:rapidFireWindow]
	}

	var pairs int
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Timestamp.Sub(sorted[i-1].Timestamp) < time.Second {
			pairs++
		}
	}
	if pairs < rapidFirePairs {
		return Finding{}, false
	}

	return Finding{
		Method:      MethodRapidFireRequests,
		Confidence:  rapidFireConfidence,
		Description: fmt.Sprintf("%d event pairs under one second apart indicate automated activity", pairs),
	}, true
}
