// Package logparse turns heterogeneous raw log lines into normalized events.
// A fixed-priority chain of format matchers sniffs each line's structure and
// extracts a timestamp, source address, message, category, and severity.
package logparse

import "time"

// Severity is the normalized event severity.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Category is the normalized event category.
type Category string

const (
	CategoryAuth        Category = "auth"
	CategorySystem      Category = "system"
	CategoryFirewall    Category = "firewall"
	CategoryApplication Category = "application"
	CategoryNetwork     Category = "network"
)

// UnknownSource is the sentinel source address used when no IPv4 address
// can be extracted from a line. SourceAddress is never empty.
const UnknownSource = "unknown"

// Event is one normalized log event. Events are immutable once returned
// by the parser; callers own them.
type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	SourceAddress string    `json:"source_address"`
	Category      Category  `json:"category"`
	Message       string    `json:"message"`
	Severity      Severity  `json:"severity"`
	Raw           string    `json:"raw,omitempty"`
}

// ParseResult aggregates per-line outcomes for one submission.
type ParseResult struct {
	Succeeded   bool           `json:"succeeded"`
	Events      []*Event       `json:"events"`
	Errors      []string       `json:"errors,omitempty"`
	TotalLines  int            `json:"total_lines"`
	ParsedLines int            `json:"parsed_lines"`
	Formats     map[string]int `json:"formats,omitempty"`
}

// maxParseErrors caps the number of per-line error messages retained in a
// ParseResult. Further failures still count against ParsedLines.
const maxParseErrors = 10
