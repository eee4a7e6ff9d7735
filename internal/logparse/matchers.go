package logparse

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// matcher is one format detection strategy. TryParse returns (nil, false)
// when the line does not structurally match the format; once a format
// matches structurally, extraction is total and always yields an event.
type matcher interface {
	Name() string
	TryParse(line string, now time.Time) (*Event, bool)
}

var (
	ipv4Pattern = regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}\b`)
	isoPattern  = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`)
)

// extractIPv4 returns the first IPv4-shaped token in s, or UnknownSource.
// Octet ranges are deliberately not validated (999.1.1.1 is accepted);
// upstream feeds contain such tokens and rejecting them loses attribution.
func extractIPv4(s string) string {
	if m := ipv4Pattern.FindString(s); m != "" {
		return m
	}
	return UnknownSource
}

// severityFromMessage derives a severity from message keywords, scanned in
// priority order. Applied whenever a format carries no explicit severity.
func severityFromMessage(msg string) Severity {
	lower := strings.ToLower(msg)
	for _, kw := range []string{"critical", "emergency", "panic", "fatal"} {
		if strings.Contains(lower, kw) {
			return SeverityCritical
		}
	}
	for _, kw := range []string{"fail", "error", "denied"} {
		if strings.Contains(lower, kw) {
			return SeverityError
		}
	}
	for _, kw := range []string{"warning", "warn", "blocked", "suspicious"} {
		if strings.Contains(lower, kw) {
			return SeverityWarning
		}
	}
	return SeverityInfo
}

// categoryFromProcess infers a category from a process or service name.
func categoryFromProcess(process string) Category {
	p := strings.ToLower(process)
	switch {
	case strings.Contains(p, "ssh") || strings.Contains(p, "auth") ||
		strings.Contains(p, "login") || strings.Contains(p, "sudo"):
		return CategoryAuth
	case strings.Contains(p, "firewall") || strings.Contains(p, "pf") ||
		strings.Contains(p, "iptables"):
		return CategoryFirewall
	case strings.Contains(p, "http") || strings.Contains(p, "nginx") ||
		strings.Contains(p, "apache"):
		return CategoryApplication
	case strings.Contains(p, "network") || strings.Contains(p, "wifi") ||
		strings.Contains(p, "airport") || strings.Contains(p, "dhcp"):
		return CategoryNetwork
	default:
		return CategorySystem
	}
}

func validCategory(s string) (Category, bool) {
	switch Category(strings.ToLower(s)) {
	case CategoryAuth, CategorySystem, CategoryFirewall, CategoryApplication, CategoryNetwork:
		return Category(strings.ToLower(s)), true
	}
	return "", false
}

func validSeverity(s string) (Severity, bool) {
	switch Severity(strings.ToLower(s)) {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return Severity(strings.ToLower(s)), true
	}
	return "", false
}

// ===========================================================================
// 1. JSON object lines
// ===========================================================================

// Ordered key aliases per logical field. First present key wins.
var (
	jsonTimestampKeys = []string{"timestamp", "time", "ts"}
	jsonSourceKeys    = []string{"source_ip", "sourceIp", "src"}
	jsonMessageKeys   = []string{"message", "msg", "content"}
	jsonSeverityKeys  = []string{"severity", "level"}
	jsonCategoryKeys  = []string{"type", "category"}
)

type jsonMatcher struct{}

func (jsonMatcher) Name() string { return "json" }

func (jsonMatcher) TryParse(line string, now time.Time) (*Event, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return nil, false
	}

	ev := &Event{Timestamp: now, Raw: line}

	if v, ok := firstString(obj, jsonTimestampKeys); ok {
		if ts, err := parseTimestamp(v); err == nil {
			ev.Timestamp = ts
		}
	}

	if v, ok := firstString(obj, jsonSourceKeys); ok && v != "" {
		ev.SourceAddress = v
	} else {
		ev.SourceAddress = extractIPv4(trimmed)
	}

	if v, ok := firstString(obj, jsonMessageKeys); ok {
		ev.Message = v
	} else {
		ev.Message = trimmed
	}

	if v, ok := firstString(obj, jsonSeverityKeys); ok {
		if sev, valid := validSeverity(v); valid {
			ev.Severity = sev
		}
	}
	if ev.Severity == "" {
		ev.Severity = severityFromMessage(ev.Message)
	}

	if v, ok := firstString(obj, jsonCategoryKeys); ok {
		if cat, valid := validCategory(v); valid {
			ev.Category = cat
		}
	}
	if ev.Category == "" {
		ev.Category = CategorySystem
	}

	return ev, true
}

func firstString(obj map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			switch s := v.(type) {
			case string:
				return s, true
			case float64:
				return fmt.Sprintf("%v", s), true
			}
		}
	}
	return "", false
}

// parseTimestamp tries common timestamp layouts in order.
func parseTimestamp(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp: %q", s)
}

// ===========================================================================
// 2. Kubernetes-style lines (ISO timestamp + namespace=/pod= tags)
// ===========================================================================

var k8sTagPattern = regexp.MustCompile(`(namespace|pod|container)=(\S+)`)

type kubernetesMatcher struct{}

func (kubernetesMatcher) Name() string { return "kubernetes" }

func (kubernetesMatcher) TryParse(line string, now time.Time) (*Event, bool) {
	iso := isoPattern.FindString(line)
	if iso == "" {
		return nil, false
	}
	if !strings.Contains(line, "namespace=") && !strings.Contains(line, "pod=") {
		return nil, false
	}

	ev := &Event{Timestamp: now, Raw: line}
	full := isoWithOffset(line, iso)
	if ts, err := parseTimestamp(full); err == nil {
		ev.Timestamp = ts
	}

	var tags []string
	msg := line
	for _, m := range k8sTagPattern.FindAllStringSubmatch(line, -1) {
		tags = append(tags, m[2])
		msg = strings.Replace(msg, m[0], "", 1)
	}
	msg = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(msg), full))
	if len(tags) > 0 {
		msg = "[" + strings.Join(tags, "/") + "] " + strings.TrimSpace(msg)
	}

	ev.Message = msg
	ev.SourceAddress = extractIPv4(line)
	ev.Severity = severityFromMessage(line)
	ev.Category = CategoryApplication
	return ev, true
}

// isoWithOffset widens a bare ISO match to include a trailing offset or Z
// so the zone survives parsing.
func isoWithOffset(line, iso string) string {
	idx := strings.Index(line, iso)
	rest := line[idx+len(iso):]
	full := iso
	for _, r := range rest {
		if r == 'Z' || r == '+' || r == '-' || r == ':' || r == '.' || (r >= '0' && r <= '9') {
			full += string(r)
			continue
		}
		break
	}
	return full
}

// ===========================================================================
// 3. Container/application lines (bare ISO timestamp + message)
// ===========================================================================

type containerMatcher struct{}

func (containerMatcher) Name() string { return "container" }

func (containerMatcher) TryParse(line string, now time.Time) (*Event, bool) {
	iso := isoPattern.FindString(line)
	if iso == "" {
		return nil, false
	}
	// XML event fragments carry ISO SystemTime attributes; leave those to
	// the Windows matcher further down the chain.
	if strings.Contains(line, "<Event") || strings.Contains(line, "<System") {
		return nil, false
	}

	ev := &Event{Timestamp: now, Raw: line}
	full := isoWithOffset(line, iso)
	if ts, err := parseTimestamp(full); err == nil {
		ev.Timestamp = ts
	}

	idx := strings.Index(line, full)
	msg := strings.TrimSpace(line[:idx] + line[idx+len(full):])
	if msg == "" {
		msg = line
	}

	ev.Message = msg
	ev.SourceAddress = extractIPv4(line)
	ev.Severity = severityFromMessage(msg)
	ev.Category = CategoryApplication
	return ev, true
}

// ===========================================================================
// 4. macOS unified log lines
// ===========================================================================

// 2024-01-16 10:30:45.123456+0700 0x2a14 Default 0x0 531 loginwindow: message
var macUnifiedPattern = regexp.MustCompile(
	`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{6})([+-]\d{4})\s+0x[0-9a-fA-F]+\s+(?:\S+\s+){0,4}?([A-Za-z][\w.-]*?)(?:\[\d+\])?:\s*(.*)$`)

type macUnifiedMatcher struct{}

func (macUnifiedMatcher) Name() string { return "mac_unified" }

func (macUnifiedMatcher) TryParse(line string, now time.Time) (*Event, bool) {
	m := macUnifiedPattern.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}

	ev := &Event{Timestamp: now, Raw: line}
	if ts, err := time.Parse("2006-01-02 15:04:05.000000-0700", m[1]+m[2]); err == nil {
		ev.Timestamp = ts
	}

	process := m[3]
	ev.Message = strings.TrimSpace(m[4])
	if ev.Message == "" {
		ev.Message = line
	}
	ev.SourceAddress = extractIPv4(line)
	ev.Category = categoryFromProcess(process)
	ev.Severity = severityFromMessage(ev.Message)
	return ev, true
}

// ===========================================================================
// 5 & 7. Syslog lines (mac legacy and generic share the signature)
// ===========================================================================

// Jan 16 10:30:00 host sshd[1234]: message
var syslogPattern = regexp.MustCompile(
	`^([A-Z][a-z]{2}) {1,2}(\d{1,2}) (\d{2}:\d{2}:\d{2}) (\S+) ([^\s\[:]+)(?:\[(\d+)\])?: (.*)$`)

type syslogMatcher struct {
	name string
	// strict rejects lines whose message carries @ or [ noise; the mac
	// legacy variant runs first with strict set.
	strict bool
}

func (m syslogMatcher) Name() string { return m.name }

func (m syslogMatcher) TryParse(line string, now time.Time) (*Event, bool) {
	sm := syslogPattern.FindStringSubmatch(line)
	if sm == nil {
		return nil, false
	}
	msg := sm[7]
	if m.strict && (strings.Contains(msg, "@") || strings.Contains(msg, "[")) {
		return nil, false
	}

	ev := &Event{Timestamp: now, Raw: line}
	// Syslog carries no year; the current year is assumed.
	stamp := fmt.Sprintf("%s %s %s %d", sm[1], sm[2], sm[3], now.Year())
	if ts, err := time.Parse("Jan 2 15:04:05 2006", stamp); err == nil {
		ev.Timestamp = ts
	}

	ev.Message = msg
	ev.SourceAddress = extractIPv4(line)
	ev.Category = categoryFromProcess(sm[5])
	ev.Severity = severityFromMessage(msg)
	return ev, true
}

// ===========================================================================
// 6. HTTP access log lines
// ===========================================================================

// 192.168.1.1 - - [16/Jan/2024:10:30:00 +0000] "GET /admin HTTP/1.1" 401 503
var accessLogPattern = regexp.MustCompile(
	`^(\d{1,3}(?:\.\d{1,3}){3}) \S+ \S+ \[([^\]]+)\] "(\S+) (\S+)(?: (\S+))?" (\d{3}) (\S+)`)

type accessLogMatcher struct{}

func (accessLogMatcher) Name() string { return "access_log" }

func (accessLogMatcher) TryParse(line string, now time.Time) (*Event, bool) {
	m := accessLogPattern.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}

	ev := &Event{Timestamp: now, Raw: line}
	if ts, err := time.Parse("02/Jan/2006:15:04:05 -0700", m[2]); err == nil {
		ev.Timestamp = ts
	}

	ev.SourceAddress = m[1]
	// Keep method, path and status in the message so downstream substring
	// counters ("/login", " 401 ") keep working.
	ev.Message = fmt.Sprintf("%s %s %s %s", m[3], m[4], m[6], m[7])
	ev.Category = CategoryApplication

	switch m[6][0] {
	case '5':
		ev.Severity = SeverityError
	case '4':
		ev.Severity = SeverityWarning
	default:
		ev.Severity = SeverityInfo
	}
	return ev, true
}

// ===========================================================================
// 8. Windows Event XML fragments
// ===========================================================================

var (
	winLevelPattern    = regexp.MustCompile(`<Level>(\d+)</Level>`)
	winEventIDPattern  = regexp.MustCompile(`<EventID[^>]*>(\d+)</EventID>`)
	winTimePattern     = regexp.MustCompile(`SystemTime=['"]([^'"]+)['"]`)
	winProviderPattern = regexp.MustCompile(`Provider Name=['"]([^'"]+)['"]`)
)

type windowsXMLMatcher struct{}

func (windowsXMLMatcher) Name() string { return "windows_xml" }

func (windowsXMLMatcher) TryParse(line string, now time.Time) (*Event, bool) {
	if !strings.Contains(line, "<Event") && !strings.Contains(line, "<System") {
		return nil, false
	}

	ev := &Event{Timestamp: now, Raw: line}
	if m := winTimePattern.FindStringSubmatch(line); m != nil {
		if ts, err := parseTimestamp(m[1]); err == nil {
			ev.Timestamp = ts
		}
	}

	// Numeric Level: 1=critical, 2=error, 3=warning, 4/5=informational.
	ev.Severity = SeverityInfo
	if m := winLevelPattern.FindStringSubmatch(line); m != nil {
		switch m[1] {
		case "1":
			ev.Severity = SeverityCritical
		case "2":
			ev.Severity = SeverityError
		case "3":
			ev.Severity = SeverityWarning
		}
	}

	msg := "Windows event"
	if m := winEventIDPattern.FindStringSubmatch(line); m != nil {
		msg = fmt.Sprintf("Windows event %s", m[1])
	}
	if m := winProviderPattern.FindStringSubmatch(line); m != nil {
		msg += " from " + m[1]
	}

	ev.Message = msg
	ev.SourceAddress = extractIPv4(line)
	ev.Category = CategorySystem
	return ev, true
}

// ===========================================================================
// 9. Database audit heuristic
// ===========================================================================

var dbAuditPattern = regexp.MustCompile(`(?i)\b(QUERY|EXECUTE|UPDATE|DELETE|INSERT)\b`)

type dbAuditMatcher struct{}

func (dbAuditMatcher) Name() string { return "db_audit" }

func (dbAuditMatcher) TryParse(line string, now time.Time) (*Event, bool) {
	if !dbAuditPattern.MatchString(line) {
		return nil, false
	}
	return &Event{
		Timestamp:     now,
		SourceAddress: extractIPv4(line),
		Category:      CategorySystem,
		Message:       "[Database] " + strings.TrimSpace(line),
		Severity:      severityFromMessage(line),
		Raw:           line,
	}, true
}

// ===========================================================================
// 10. Fallback
// ===========================================================================

type fallbackMatcher struct{}

func (fallbackMatcher) Name() string { return "generic" }

func (fallbackMatcher) TryParse(line string, now time.Time) (*Event, bool) {
	return &Event{
		Timestamp:     now,
		SourceAddress: extractIPv4(line),
		Category:      CategorySystem,
		Message:       strings.TrimSpace(line),
		Severity:      severityFromMessage(line),
		Raw:           line,
	}, true
}
