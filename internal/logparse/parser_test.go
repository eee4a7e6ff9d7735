package logparse

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"
)

// fixedClock returns a deterministic clock for parse-time fallbacks.
func fixedClock() func() time.Time {
	now := time.Date(2024, 1, 16, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return now }
}

func newTestParser() *Parser {
	return New(nil, WithClock(fixedClock()))
}

// =============================================================================
// Format Routing Tests
// =============================================================================

// TestParseLine_SyslogSSHFailure verifies the canonical sshd failure line is
// routed to the syslog family and extracts source, category and severity.
func TestParseLine_SyslogSSHFailure(t *testing.T) {
	p := newTestParser()

	ev, err := p.ParseLine("Jan 16 10:30:00 server sshd[1234]: Failed password for admin from 192.168.1.100 port 22 ssh2")
	if err != nil {
		t.Fatalf("ParseLine should succeed: %v", err)
	}

	if ev.SourceAddress != "192.168.1.100" {
		t.Errorf("expected source 192.168.1.100, got %q", ev.SourceAddress)
	}
	if ev.Category != CategoryAuth {
		t.Errorf("expected category auth, got %q", ev.Category)
	}
	if ev.Severity != SeverityError {
		t.Errorf("expected severity error, got %q", ev.Severity)
	}
	if ev.Timestamp.Month() != time.January || ev.Timestamp.Day() != 16 {
		t.Errorf("expected Jan 16 timestamp, got %v", ev.Timestamp)
	}
	// Syslog carries no year, so the current (clock) year is assumed.
	if ev.Timestamp.Year() != 2024 {
		t.Errorf("expected year 2024, got %d", ev.Timestamp.Year())
	}
}

// TestParseLine_JSONEvent verifies JSON object lines extract aliased fields
// verbatim.
func TestParseLine_JSONEvent(t *testing.T) {
	p := newTestParser()

	line := `{"timestamp":"2024-01-16T10:30:00Z","source_ip":"192.168.1.100","severity":"error","message":"Unauthorized access attempt to /admin","type":"auth"}`
	ev, err := p.ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine should succeed: %v", err)
	}

	if ev.SourceAddress != "192.168.1.100" {
		t.Errorf("expected source 192.168.1.100, got %q", ev.SourceAddress)
	}
	if ev.Category != CategoryAuth {
		t.Errorf("expected category auth, got %q", ev.Category)
	}
	if ev.Severity != SeverityError {
		t.Errorf("expected severity error, got %q", ev.Severity)
	}
	if ev.Message != "Unauthorized access attempt to /admin" {
		t.Errorf("unexpected message: %q", ev.Message)
	}
	want := time.Date(2024, 1, 16, 10, 30, 0, 0, time.UTC)
	if !ev.Timestamp.Equal(want) {
		t.Errorf("expected timestamp %v, got %v", want, ev.Timestamp)
	}
}

// TestParseLine_JSONKeyAliases verifies the documented alias precedence for
// timestamp, source and message keys.
func TestParseLine_JSONKeyAliases(t *testing.T) {
	p := newTestParser()

	ev, err := p.ParseLine(`{"ts":"2024-01-16T08:00:00Z","src":"10.0.0.9","msg":"probe detected from scanner"}`)
	if err != nil {
		t.Fatalf("ParseLine should succeed: %v", err)
	}

	if ev.SourceAddress != "10.0.0.9" {
		t.Errorf("expected source from src alias, got %q", ev.SourceAddress)
	}
	if ev.Message != "probe detected from scanner" {
		t.Errorf("expected message from msg alias, got %q", ev.Message)
	}
	if ev.Timestamp.Hour() != 8 {
		t.Errorf("expected timestamp from ts alias, got %v", ev.Timestamp)
	}
}

// TestParseLine_JSONWithoutSourceKey verifies the IPv4 regex fallback over
// the serialized object when no source alias is present.
func TestParseLine_JSONWithoutSourceKey(t *testing.T) {
	p := newTestParser()

	ev, err := p.ParseLine(`{"message":"connection from 203.0.113.50 refused","level":"warning"}`)
	if err != nil {
		t.Fatalf("ParseLine should succeed: %v", err)
	}

	if ev.SourceAddress != "203.0.113.50" {
		t.Errorf("expected regex-extracted source, got %q", ev.SourceAddress)
	}
	if ev.Severity != SeverityWarning {
		t.Errorf("expected severity warning, got %q", ev.Severity)
	}
}

// TestParseLine_Kubernetes verifies namespace/pod/container tags are lifted
// into a message prefix.
func TestParseLine_Kubernetes(t *testing.T) {
	p := newTestParser()

	ev, err := p.ParseLine("2024-01-16T10:30:00Z namespace=prod pod=api-7f9d container=api Failed login from 10.0.0.5")
	if err != nil {
		t.Fatalf("ParseLine should succeed: %v", err)
	}

	if !strings.HasPrefix(ev.Message, "[prod/api-7f9d/api]") {
		t.Errorf("expected tag prefix on message, got %q", ev.Message)
	}
	if ev.SourceAddress != "10.0.0.5" {
		t.Errorf("expected source 10.0.0.5, got %q", ev.SourceAddress)
	}
	if ev.Category != CategoryApplication {
		t.Errorf("expected category application, got %q", ev.Category)
	}
	if ev.Severity != SeverityError {
		t.Errorf("expected severity error, got %q", ev.Severity)
	}
}

// TestParseLine_ContainerISO verifies bare ISO-timestamp lines use the
// remainder as the message.
func TestParseLine_ContainerISO(t *testing.T) {
	p := newTestParser()

	ev, err := p.ParseLine("2024-01-16T10:30:00Z api gateway request completed in 25ms")
	if err != nil {
		t.Fatalf("ParseLine should succeed: %v", err)
	}

	if ev.Message != "api gateway request completed in 25ms" {
		t.Errorf("unexpected message: %q", ev.Message)
	}
	if ev.Severity != SeverityInfo {
		t.Errorf("expected severity info, got %q", ev.Severity)
	}
	if ev.SourceAddress != UnknownSource {
		t.Errorf("expected unknown source, got %q", ev.SourceAddress)
	}
}

// TestParseLine_MacUnified verifies process-based category inference for
// macOS unified log lines.
func TestParseLine_MacUnified(t *testing.T) {
	p := newTestParser()

	tests := []struct {
		name     string
		line     string
		category Category
	}{
		{
			"ssh process maps to auth",
			"2024-01-16 10:30:45.123456+0000 0x2a14 Default 0x0 531 0 sshd: authentication error for user root",
			CategoryAuth,
		},
		{
			"pf process maps to firewall",
			"2024-01-16 10:30:45.123456+0000 0x2a14 Default 0x0 531 0 pfctl: blocked inbound packet",
			CategoryFirewall,
		},
		{
			"unknown process maps to system",
			"2024-01-16 10:30:45.123456+0000 0x2a14 Default 0x0 531 0 kernel: memory pressure normal",
			CategorySystem,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := p.ParseLine(tt.line)
			if err != nil {
				t.Fatalf("ParseLine should succeed: %v", err)
			}
			if ev.Category != tt.category {
				t.Errorf("expected category %q, got %q", tt.category, ev.Category)
			}
			if ev.Timestamp.Year() != 2024 || ev.Timestamp.Nanosecond() == 0 {
				t.Errorf("expected microsecond timestamp parsed, got %v", ev.Timestamp)
			}
		})
	}
}

// TestParseLine_AccessLog verifies status-class severity mapping and that
// the status code survives in the message for downstream counters.
func TestParseLine_AccessLog(t *testing.T) {
	p := newTestParser()

	tests := []struct {
		name     string
		line     string
		severity Severity
	}{
		{"5xx maps to error", `192.168.1.1 - - [16/Jan/2024:10:30:00 +0000] "GET /api HTTP/1.1" 502 0`, SeverityError},
		{"4xx maps to warning", `192.168.1.1 - - [16/Jan/2024:10:30:00 +0000] "GET /admin HTTP/1.1" 401 503`, SeverityWarning},
		{"2xx maps to info", `192.168.1.1 - - [16/Jan/2024:10:30:00 +0000] "GET /index HTTP/1.1" 200 1024`, SeverityInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := p.ParseLine(tt.line)
			if err != nil {
				t.Fatalf("ParseLine should succeed: %v", err)
			}
			if ev.Severity != tt.severity {
				t.Errorf("expected severity %q, got %q", tt.severity, ev.Severity)
			}
			if ev.SourceAddress != "192.168.1.1" {
				t.Errorf("expected source 192.168.1.1, got %q", ev.SourceAddress)
			}
			if ev.Category != CategoryApplication {
				t.Errorf("expected category application, got %q", ev.Category)
			}
		})
	}

	ev, _ := p.ParseLine(`10.1.2.3 - - [16/Jan/2024:10:30:00 +0000] "POST /login HTTP/1.1" 401 0`)
	if !strings.Contains(ev.Message, " 401 ") {
		t.Errorf("status code should survive in message, got %q", ev.Message)
	}
	if !strings.Contains(ev.Message, "/login") {
		t.Errorf("path should survive in message, got %q", ev.Message)
	}
}

// TestParseLine_WindowsXML verifies numeric Level mapping for Windows Event
// XML fragments.
func TestParseLine_WindowsXML(t *testing.T) {
	p := newTestParser()

	tests := []struct {
		level    string
		severity Severity
	}{
		{"1", SeverityCritical},
		{"2", SeverityError},
		{"3", SeverityWarning},
		{"4", SeverityInfo},
		{"5", SeverityInfo},
		{"9", SeverityInfo}, // unknown level defaults to info
	}

	for _, tt := range tests {
		t.Run("level "+tt.level, func(t *testing.T) {
			line := fmt.Sprintf("<Event><System><EventID>4625</EventID><Level>%s</Level><TimeCreated SystemTime='2024-01-16T10:30:00Z'/></System></Event>", tt.level)
			ev, err := p.ParseLine(line)
			if err != nil {
				t.Fatalf("ParseLine should succeed: %v", err)
			}
			if ev.Severity != tt.severity {
				t.Errorf("level %s: expected severity %q, got %q", tt.level, tt.severity, ev.Severity)
			}
			if ev.Category != CategorySystem {
				t.Errorf("expected category system, got %q", ev.Category)
			}
			if !strings.Contains(ev.Message, "4625") {
				t.Errorf("expected event id in message, got %q", ev.Message)
			}
		})
	}
}

// TestParseLine_MissingLevelDefaultsInfo verifies a fragment without a Level
// element falls back to info.
func TestParseLine_MissingLevelDefaultsInfo(t *testing.T) {
	p := newTestParser()

	ev, err := p.ParseLine("<Event><System><EventID>1102</EventID></System></Event>")
	if err != nil {
		t.Fatalf("ParseLine should succeed: %v", err)
	}
	if ev.Severity != SeverityInfo {
		t.Errorf("expected severity info, got %q", ev.Severity)
	}
}

// TestParseLine_DatabaseAudit verifies SQL-verb lines get the [Database]
// message prefix and system category.
func TestParseLine_DatabaseAudit(t *testing.T) {
	p := newTestParser()

	ev, err := p.ParseLine("audit: user admin EXECUTE statement on table accounts")
	if err != nil {
		t.Fatalf("ParseLine should succeed: %v", err)
	}
	if !strings.HasPrefix(ev.Message, "[Database] ") {
		t.Errorf("expected [Database] prefix, got %q", ev.Message)
	}
	if ev.Category != CategorySystem {
		t.Errorf("expected category system, got %q", ev.Category)
	}
}

// TestParseLine_Fallback verifies any sufficiently long line is absorbed by
// the generic format.
func TestParseLine_Fallback(t *testing.T) {
	p := newTestParser()

	ev, err := p.ParseLine("some entirely freeform text with no structure at all")
	if err != nil {
		t.Fatalf("ParseLine should succeed via fallback: %v", err)
	}
	if ev.SourceAddress != UnknownSource {
		t.Errorf("expected %q source, got %q", UnknownSource, ev.SourceAddress)
	}
	if ev.Category != CategorySystem {
		t.Errorf("expected category system, got %q", ev.Category)
	}
	if !ev.Timestamp.Equal(fixedClock()()) {
		t.Errorf("expected parse-time timestamp, got %v", ev.Timestamp)
	}
}

// TestParseLine_TooShort verifies trivially short lines are rejected.
func TestParseLine_TooShort(t *testing.T) {
	p := newTestParser()

	if _, err := p.ParseLine("short"); err == nil {
		t.Error("ParseLine should reject lines shorter than the minimum")
	}
}

// TestParseLine_LaxIPv4 verifies out-of-range octets are accepted, matching
// the documented lax extraction behavior.
func TestParseLine_LaxIPv4(t *testing.T) {
	p := newTestParser()

	ev, err := p.ParseLine("connection attempt recorded from 999.1.1.1 on port 8080")
	if err != nil {
		t.Fatalf("ParseLine should succeed: %v", err)
	}
	if ev.SourceAddress != "999.1.1.1" {
		t.Errorf("lax extraction should accept 999.1.1.1, got %q", ev.SourceAddress)
	}
}

// TestFormatFor verifies representative lines route to the expected format.
func TestFormatFor(t *testing.T) {
	p := newTestParser()

	tests := []struct {
		line   string
		format string
	}{
		{`{"message":"hello from 1.2.3.4"}`, "json"},
		{"2024-01-16T10:30:00Z namespace=prod pod=x starting worker", "kubernetes"},
		{"2024-01-16T10:30:00Z plain container message", "container"},
		{"2024-01-16 10:30:45.123456+0000 0x2a14 Default 0x0 531 0 sshd: hello there", "mac_unified"},
		{"Jan 16 10:30:00 host sshd[1]: clean message text", "mac_syslog"},
		{`192.168.1.1 - - [16/Jan/2024:10:30:00 +0000] "GET / HTTP/1.1" 200 99`, "access_log"},
		{"Jan 16 10:30:00 host postfix[9]: delivered to [local] queue", "syslog"},
		{"<Event><System><Level>2</Level></System></Event>", "windows_xml"},
		{"audit trail: UPDATE users set password", "db_audit"},
		{"completely unstructured content line", "generic"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			if got := p.FormatFor(tt.line); got != tt.format {
				t.Errorf("expected format %q, got %q for line %q", tt.format, got, tt.line)
			}
		})
	}
}

// =============================================================================
// Batch Tests
// =============================================================================

// TestParseBatch_MixedContent verifies counts, error capping inputs and
// blank-line skipping.
func TestParseBatch_MixedContent(t *testing.T) {
	p := newTestParser()

	content := strings.Join([]string{
		"Jan 16 10:30:00 server sshd[1234]: Failed password for admin from 192.168.1.100 port 22 ssh2",
		"",
		`{"message":"ok event","source_ip":"10.0.0.1"}`,
		"bad", // too short
		"   ",
		"another freeform line that the fallback absorbs",
	}, "\n")

	result := p.ParseBatch(content)

	if result.TotalLines != 4 {
		t.Errorf("expected 4 non-blank lines, got %d", result.TotalLines)
	}
	if result.ParsedLines != 3 {
		t.Errorf("expected 3 parsed lines, got %d", result.ParsedLines)
	}
	if len(result.Events) != 3 {
		t.Errorf("expected 3 events, got %d", len(result.Events))
	}
	if !result.Succeeded {
		t.Error("result should be marked succeeded")
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d: %v", len(result.Errors), result.Errors)
	}
	if !strings.HasPrefix(result.Errors[0], "line 4:") {
		t.Errorf("error should carry the 1-based line number, got %q", result.Errors[0])
	}
}

// TestParseBatch_EmptyContent verifies whitespace-only submissions fail with
// zero events.
func TestParseBatch_EmptyContent(t *testing.T) {
	p := newTestParser()

	for _, content := range []string{"", "   \n \n\t"} {
		result := p.ParseBatch(content)
		if result.Succeeded {
			t.Errorf("empty content should not succeed")
		}
		if len(result.Events) != 0 || result.TotalLines != 0 {
			t.Errorf("empty content should yield zero events/lines, got %+v", result)
		}
	}
}

// TestParseBatch_ErrorCap verifies the error list is capped while counts
// keep accumulating.
func TestParseBatch_ErrorCap(t *testing.T) {
	p := newTestParser()

	var lines []string
	for i := 0; i < 25; i++ {
		lines = append(lines, "x") // each too short
	}
	result := p.ParseBatch(strings.Join(lines, "\n"))

	if len(result.Errors) != maxParseErrors {
		t.Errorf("expected %d capped errors, got %d", maxParseErrors, len(result.Errors))
	}
	if result.TotalLines != 25 {
		t.Errorf("expected 25 total lines, got %d", result.TotalLines)
	}
	if result.Succeeded {
		t.Error("batch with zero parsed lines should not succeed")
	}
}

// TestParseBatch_Idempotent verifies parsing the same content twice yields
// identical events under a fixed clock.
func TestParseBatch_Idempotent(t *testing.T) {
	p := newTestParser()

	content := strings.Join([]string{
		"Jan 16 10:30:00 server sshd[1234]: Failed password for admin from 192.168.1.100 port 22 ssh2",
		`{"timestamp":"2024-01-16T10:30:00Z","source_ip":"10.0.0.1","message":"probe"}`,
		"freeform line without any timestamp inside",
	}, "\n")

	first := p.ParseBatch(content)
	second := p.ParseBatch(content)

	if !reflect.DeepEqual(first.Events, second.Events) {
		t.Error("parsing the same content twice should yield identical events")
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

// TestSeverityFromMessage verifies keyword priority ordering.
func TestSeverityFromMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want Severity
	}{
		{"kernel panic detected", SeverityCritical},
		{"FATAL error in module", SeverityCritical}, // critical keywords win over error
		{"operation failed", SeverityError},
		{"access denied for user", SeverityError},
		{"suspicious activity blocked", SeverityWarning},
		{"routine heartbeat", SeverityInfo},
	}

	for _, tt := range tests {
		if got := severityFromMessage(tt.msg); got != tt.want {
			t.Errorf("severityFromMessage(%q) = %q, want %q", tt.msg, got, tt.want)
		}
	}
}
