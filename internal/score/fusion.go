package score

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lvonguyen/threatlens/internal/detect"
	"github.com/lvonguyen/threatlens/internal/mitre"
	"github.com/lvonguyen/threatlens/internal/reputation"
)

// ThreatRecord is the final per-source assessment: composite score fused
// with the reputation boost, plus the evidence needed to explain it.
type ThreatRecord struct {
	SourceAddress   string            `json:"source_address"`
	Score           int               `json:"score"` // 0-100
	Level           Level             `json:"level"`
	Findings        []detect.Finding  `json:"findings"`
	PrimaryCategory string            `json:"primary_category,omitempty"`
	Confidence      int               `json:"confidence"` // 0-100
	Reasoning       string            `json:"reasoning"`
	Recommendations []string          `json:"recommendations,omitempty"`
	Techniques      []mitre.Technique `json:"techniques,omitempty"`
}

// Fuse combines a composite score with reputation data into a ThreatRecord.
// The final score is composite plus the bounded reputation boost, clamped
// to 0-100, and the level is recomputed from it.
func Fuse(address string, composite int, rep *reputation.Record, findings []detect.Finding, baseRecommendations []string) *ThreatRecord {
	boost := reputation.Boost(rep)

	final := composite + boost
	if final < 0 {
		final = 0
	}
	if final > 100 {
		final = 100
	}

	ranked := make([]detect.Finding, len(findings))
	copy(ranked, findings)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})

	rec := &ThreatRecord{
		SourceAddress:   address,
		Score:           final,
		Level:           LevelFor(final),
		Findings:        findings,
		Reasoning:       reasoning(ranked, boost, rep),
		Recommendations: mergeRecommendations(baseRecommendations, reputation.Recommendations(rep)),
		Techniques:      mitre.ForFindings(ranked),
	}

	if len(ranked) > 0 {
		rec.PrimaryCategory = ranked[0].Method
		rec.Confidence = ranked[0].Confidence
	}

	return rec
}

// reasoning renders the top findings and the reputation contribution as a
// human-readable explanation.
func reasoning(ranked []detect.Finding, boost int, rep *reputation.Record) string {
	var parts []string

	top := ranked
	if len(top) > 3 {
		top = top[:3]
	}
	for _, f := range top {
		parts = append(parts, fmt.Sprintf("%s (confidence %d): %s", f.Method, f.Confidence, f.Description))
	}

	if rep != nil {
		parts = append(parts, fmt.Sprintf("Reputation adjustment of %+d points (risk level %s).", boost, rep.RiskLevel))
	} else {
		parts = append(parts, fmt.Sprintf("Reputation adjustment of %+d points.", boost))
	}

	return strings.Join(parts, " ")
}

// mergeRecommendations concatenates the base list with reputation-derived
// recommendations, dropping case-insensitive duplicates and preserving
// first-seen order.
func mergeRecommendations(base, derived []string) []string {
	var merged []string
	seen := make(map[string]bool)
	for _, list := range [][]string{base, derived} {
		for _, r := range list {
			r = strings.TrimSpace(r)
			if r == "" {
				continue
			}
			key := strings.ToLower(r)
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, r)
		}
	}
	return merged
}
