package detect

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lvonguyen/threatlens/internal/logparse"
)

const (
	distributedMinSources = 5
	distributedMaxTargets = 3
	distributedConfidence = 75

	multiVectorMinFamilies = 2
	multiVectorConfidence  = 80
)

var pathTokenPattern = regexp.MustCompile(`/[A-Za-z0-9_./-]+`)

// CorrelationDetector looks across events for coordination signals: many
// sources hammering few targets, and multiple indicator families active at
// once. The distributed check is only meaningful when the detector is fed
// the whole event set before per-source grouping; the pipeline does exactly
// that and attaches the result to each participating source.
type CorrelationDetector struct{}

func NewCorrelationDetector() *CorrelationDetector { return &CorrelationDetector{} }

func (d *CorrelationDetector) Name() string { return "correlation" }

func (d *CorrelationDetector) Detect(events []*logparse.Event) []Finding {
	var findings []Finding

	if f, ok := d.distributed(events); ok {
		findings = append(findings, f)
	}
	if f, ok := d.multiVector(events); ok {
		findings = append(findings, f)
	}

	return findings
}

// distributed flags campaigns where many distinct sources converge on a
// small set of path-like targets.
func (d *CorrelationDetector) distributed(events []*logparse.Event) (Finding, bool) {
	sources := make(map[string]struct{})
	targets := make(map[string]struct{})

	for _, ev := range events {
		sources[ev.SourceAddress] = struct{}{}
		for _, path := range pathTokenPattern.FindAllString(ev.Message, -1) {
			targets[path] = struct{}{}
		}
	}

	if len(sources) < distributedMinSources || len(targets) == 0 || len(targets) > distributedMaxTargets {
		return Finding{}, false
	}

	var targetList []string
	for t := range targets {
		targetList = append(targetList, t)
	}

	return Finding{
		Method:      MethodDistributedAttack,
		Confidence:  distributedConfidence,
		Description: fmt.Sprintf("%d distinct sources targeting %d endpoint(s)", len(sources), len(targets)),
		Evidence:    targetList,
	}, true
}

// multiVector flags a source exercising two or more of the brute-force,
// SQL-injection and malware indicator families simultaneously.
func (d *CorrelationDetector) multiVector(events []*logparse.Event) (Finding, bool) {
	var families []string

	has := func(phrases ...string) bool {
		for _, ev := range events {
			lower := strings.ToLower(ev.Message)
			for _, p := range phrases {
				if strings.Contains(lower, p) {
					return true
				}
			}
		}
		return false
	}

	if has("failed password", "invalid user", "authentication failure") {
		families = append(families, "brute-force")
	}
	if has("union select", "or 1=1", "' or '", "drop table") {
		families = append(families, "sql-injection")
	}
	if has("malware", "trojan", "backdoor", "rootkit") {
		families = append(families, "malware")
	}

	if len(families) < multiVectorMinFamilies {
		return Finding{}, false
	}

	return Finding{
		Method:      MethodMultiVectorAttack,
		Confidence:  multiVectorConfidence,
		Description: fmt.Sprintf("multiple attack vectors active simultaneously: %s", strings.Join(families, ", ")),
	}, true
}
