package logparse

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// minLineLength is the shortest line the router will attempt to classify.
const minLineLength = 10

// Parser routes raw lines through an ordered chain of format matchers.
// Parsing is pure: the same input always yields the same events, except
// that lines carrying no recoverable timestamp are stamped with now().
type Parser struct {
	matchers []matcher
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Parser.
type Option func(*Parser)

// WithClock overrides the parse-time timestamp source. Used by tests to
// remove the one source of nondeterminism.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) { p.now = now }
}

// New creates a Parser with the full format chain in priority order.
func New(logger *zap.Logger, opts ...Option) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Parser{
		matchers: []matcher{
			jsonMatcher{},
			kubernetesMatcher{},
			containerMatcher{},
			macUnifiedMatcher{},
			syslogMatcher{name: "mac_syslog", strict: true},
			accessLogMatcher{},
			syslogMatcher{name: "syslog"},
			windowsXMLMatcher{},
			dbAuditMatcher{},
			fallbackMatcher{},
		},
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseLine normalizes a single raw line. It returns an error only for
// lines too short to classify; any longer line is absorbed by the generic
// fallback format.
func (p *Parser) ParseLine(raw string) (*Event, error) {
	ev, _, err := p.parseLine(raw)
	return ev, err
}

func (p *Parser) parseLine(raw string) (*Event, string, error) {
	line := strings.TrimRight(raw, "\r")
	if len(strings.TrimSpace(line)) < minLineLength {
		return nil, "", fmt.Errorf("line too short to classify (%d bytes)", len(strings.TrimSpace(line)))
	}

	now := p.now()
	for _, m := range p.matchers {
		if ev, ok := m.TryParse(line, now); ok {
			p.logger.Debug("line parsed",
				zap.String("format", m.Name()),
				zap.String("source", ev.SourceAddress),
			)
			return ev, m.Name(), nil
		}
	}
	// Unreachable: the fallback matcher accepts every line.
	return nil, "", fmt.Errorf("no format matched")
}

// ParseBatch splits content into lines and normalizes each one. Blank lines
// are skipped and do not count toward TotalLines. Per-line failures are
// recorded (capped at maxParseErrors) with their 1-based line number.
func (p *Parser) ParseBatch(content string) *ParseResult {
	result := &ParseResult{Formats: make(map[string]int)}

	for i, raw := range strings.Split(content, "\n") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		result.TotalLines++

		ev, format, err := p.parseLine(raw)
		if err != nil {
			if len(result.Errors) < maxParseErrors {
				result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", i+1, err))
			}
			continue
		}
		result.Events = append(result.Events, ev)
		result.Formats[format]++
		result.ParsedLines++
	}

	result.Succeeded = result.ParsedLines > 0
	return result
}

// FormatNames lists the matcher chain in priority order. Exposed for
// metrics labels and diagnostics.
func (p *Parser) FormatNames() []string {
	names := make([]string, 0, len(p.matchers))
	for _, m := range p.matchers {
		names = append(names, m.Name())
	}
	return names
}

// FormatFor reports which format in the chain claims the given line.
func (p *Parser) FormatFor(raw string) string {
	line := strings.TrimRight(raw, "\r")
	if len(strings.TrimSpace(line)) < minLineLength {
		return ""
	}
	now := p.now()
	for _, m := range p.matchers {
		if _, ok := m.TryParse(line, now); ok {
			return m.Name()
		}
	}
	return ""
}
