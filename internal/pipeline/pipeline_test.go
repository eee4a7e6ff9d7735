package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lvonguyen/threatlens/internal/detect"
	"github.com/lvonguyen/threatlens/internal/logparse"
	"github.com/lvonguyen/threatlens/internal/reputation"
	"github.com/lvonguyen/threatlens/internal/score"
)

func newTestPipeline() *Pipeline {
	client := reputation.NewClient(reputation.NewMemoryCache(time.Minute), zap.NewNop())
	parser := logparse.New(zap.NewNop(), logparse.WithClock(func() time.Time {
		return time.Date(2024, 1, 16, 12, 0, 0, 0, time.UTC)
	}))
	return New(parser, detect.AnomalyConfig{}, client, zap.NewNop())
}

func authFailureEvents(address string, n int) []*logparse.Event {
	base := time.Date(2024, 1, 16, 10, 30, 0, 0, time.UTC)
	events := make([]*logparse.Event, n)
	for i := range events {
		events[i] = &logparse.Event{
			Timestamp:     base.Add(time.Duration(i) * time.Minute),
			SourceAddress: address,
			Category:      logparse.CategoryAuth,
			Severity:      logparse.SeverityError,
			Message:       "Failed password for admin from " + address + " port 22 ssh2",
		}
	}
	return events
}

// TestAnalyze_TwoSourceScenario runs the documented scenario: five auth
// failures from one address and one SQL injection from another.
func TestAnalyze_TwoSourceScenario(t *testing.T) {
	events := authFailureEvents("192.168.1.100", 5)
	events = append(events, &logparse.Event{
		Timestamp:     time.Date(2024, 1, 16, 10, 40, 0, 0, time.UTC),
		SourceAddress: "203.0.113.50",
		Category:      logparse.CategoryApplication,
		Severity:      logparse.SeverityWarning,
		Message:       "GET /search?q=1' UNION SELECT username,password FROM users-- 200 512",
	})

	records := newTestPipeline().Analyze(context.Background(), events)

	if len(records) != 2 {
		t.Fatalf("expected 2 threat records, got %d", len(records))
	}

	byAddress := make(map[string]*score.ThreatRecord)
	for _, rec := range records {
		byAddress[rec.SourceAddress] = rec
	}

	bruteForce := byAddress["192.168.1.100"]
	if bruteForce == nil {
		t.Fatal("missing record for brute-force source")
	}
	if !hasFinding(bruteForce.Findings, detect.MethodSSHBruteForce) {
		t.Errorf("expected an ssh brute-force finding, got %v", methodNames(bruteForce.Findings))
	}

	injection := byAddress["203.0.113.50"]
	if injection == nil {
		t.Fatal("missing record for injection source")
	}
	var sqlConfidence int
	for _, f := range injection.Findings {
		if f.Method == detect.MethodSQLInjection {
			sqlConfidence = f.Confidence
		}
	}
	if sqlConfidence < 85 {
		t.Errorf("single injection match should score confidence >= 85, got %d", sqlConfidence)
	}

	for _, rec := range records {
		if rec.Score < 0 || rec.Score > 100 {
			t.Errorf("score %d outside 0-100 for %s", rec.Score, rec.SourceAddress)
		}
		if rec.Reasoning == "" {
			t.Errorf("record for %s should carry reasoning", rec.SourceAddress)
		}
	}
}

// TestAnalyze_SortedByScore verifies records come back highest score first.
func TestAnalyze_SortedByScore(t *testing.T) {
	events := authFailureEvents("192.168.1.100", 8)
	events = append(events, &logparse.Event{
		Timestamp:     time.Date(2024, 1, 16, 10, 0, 0, 0, time.UTC),
		SourceAddress: "198.51.100.7",
		Category:      logparse.CategorySystem,
		Severity:      logparse.SeverityInfo,
		Message:       "Session opened for user deploy",
	})

	records := newTestPipeline().Analyze(context.Background(), events)

	for i := 1; i < len(records); i++ {
		if records[i].Score > records[i-1].Score {
			t.Errorf("records not sorted by score: %d before %d", records[i-1].Score, records[i].Score)
		}
	}
}

// TestAnalyze_DistributedAttack verifies the cross-source pass attaches a
// distributed-attack finding when many sources hit one endpoint.
func TestAnalyze_DistributedAttack(t *testing.T) {
	base := time.Date(2024, 1, 16, 10, 0, 0, 0, time.UTC)
	addresses := []string{"203.0.113.1", "203.0.113.2", "203.0.113.3", "203.0.113.4", "203.0.113.5"}

	var events []*logparse.Event
	for i, address := range addresses {
		events = append(events, &logparse.Event{
			Timestamp:     base.Add(time.Duration(i) * time.Second),
			SourceAddress: address,
			Category:      logparse.CategoryApplication,
			Severity:      logparse.SeverityWarning,
			Message:       "POST /wp-login.php 403 221",
		})
	}

	records := newTestPipeline().Analyze(context.Background(), events)

	if len(records) != len(addresses) {
		t.Fatalf("expected %d records, got %d", len(addresses), len(records))
	}
	for _, rec := range records {
		if !hasFinding(rec.Findings, detect.MethodDistributedAttack) {
			t.Errorf("source %s missing distributed-attack finding", rec.SourceAddress)
		}
	}
}

// TestAnalyze_Empty verifies an empty event set yields no records.
func TestAnalyze_Empty(t *testing.T) {
	if records := newTestPipeline().Analyze(context.Background(), nil); len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}

// TestAnalyzeText verifies the raw-text entry point parses and analyzes.
func TestAnalyzeText(t *testing.T) {
	content := strings.Join([]string{
		"Jan 16 10:30:00 server sshd[1234]: Failed password for admin from 192.168.1.100 port 22 ssh2",
		"Jan 16 10:30:05 server sshd[1234]: Failed password for admin from 192.168.1.100 port 22 ssh2",
		"Jan 16 10:30:10 server sshd[1234]: Failed password for admin from 192.168.1.100 port 22 ssh2",
	}, "\n")

	records, result, err := newTestPipeline().AnalyzeText(context.Background(), content)
	if err != nil {
		t.Fatalf("AnalyzeText should succeed: %v", err)
	}
	if result.ParsedLines != 3 {
		t.Errorf("expected 3 parsed lines, got %d", result.ParsedLines)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].SourceAddress != "192.168.1.100" {
		t.Errorf("wrong source address %q", records[0].SourceAddress)
	}
}

// TestAnalyzeText_NothingParsed verifies the generic failure when no line
// can be parsed.
func TestAnalyzeText_NothingParsed(t *testing.T) {
	_, result, err := newTestPipeline().AnalyzeText(context.Background(), "x\n\nyz\n")
	if err == nil {
		t.Fatal("expected an error when nothing parses")
	}
	if !strings.Contains(err.Error(), "could not parse any log entries") {
		t.Errorf("unexpected error message: %v", err)
	}
	if result.Succeeded {
		t.Error("result should not report success")
	}
}

// TestBaseRecommendations verifies counter-derived recommendations.
func TestBaseRecommendations(t *testing.T) {
	events := authFailureEvents("192.168.1.100", 5)
	records := newTestPipeline().Analyze(context.Background(), events)

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	found := false
	for _, r := range records[0].Recommendations {
		if strings.Contains(r, "rate limiting") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a rate-limiting recommendation, got %v", records[0].Recommendations)
	}
}

func hasFinding(findings []detect.Finding, method string) bool {
	for _, f := range findings {
		if f.Method == method {
			return true
		}
	}
	return false
}

func methodNames(findings []detect.Finding) []string {
	names := make([]string, len(findings))
	for i, f := range findings {
		names[i] = f.Method
	}
	return names
}
