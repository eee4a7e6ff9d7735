// Package publish emits threat alerts to NATS for downstream consumers.
// Publishing is best effort: a broker outage never fails an analysis.
package publish

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/lvonguyen/threatlens/internal/score"
)

// DefaultSubject is the NATS subject alerts are published on.
const DefaultSubject = "threatlens.alerts"

// Config holds alert publishing settings.
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Subject  string `yaml:"subject"`
	MinLevel string `yaml:"min_level"` // low, medium, high
}

// DefaultConfig returns alert publishing defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:  false,
		URL:      nats.DefaultURL,
		Subject:  DefaultSubject,
		MinLevel: "high",
	}
}

// Alert is the wire format for one published threat record.
type Alert struct {
	SourceAddress   string    `json:"source_address"`
	Score           int       `json:"score"`
	Level           string    `json:"level"`
	PrimaryCategory string    `json:"primary_category,omitempty"`
	Reasoning       string    `json:"reasoning"`
	Recommendations []string  `json:"recommendations,omitempty"`
	DetectedAt      time.Time `json:"detected_at"`
}

// conn is the slice of nats.Conn the publisher needs; tests substitute a
// recording fake.
type conn interface {
	Publish(subject string, data []byte) error
}

// Publisher sends qualifying threat records to NATS.
type Publisher struct {
	conn    conn
	subject string
	min     score.Level
	logger  *zap.Logger
	now     func() time.Time
	closer  func()
}

// Connect dials NATS and returns a publisher. Call Close when done.
func Connect(cfg Config, logger *zap.Logger) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, err
	}
	p := newPublisher(nc, cfg, logger)
	p.closer = nc.Close
	return p, nil
}

func newPublisher(c conn, cfg Config, logger *zap.Logger) *Publisher {
	subject := cfg.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{
		conn:    c,
		subject: subject,
		min:     minLevel(cfg.MinLevel),
		logger:  logger,
		now:     time.Now,
	}
}

func minLevel(s string) score.Level {
	switch score.Level(s) {
	case score.LevelLow, score.LevelMedium, score.LevelHigh:
		return score.Level(s)
	default:
		return score.LevelHigh
	}
}

// levelRank orders threat levels for the minimum-level gate.
func levelRank(l score.Level) int {
	switch l {
	case score.LevelHigh:
		return 2
	case score.LevelMedium:
		return 1
	default:
		return 0
	}
}

// PublishRecords sends an alert for every record at or above the
// configured minimum level. Failures are logged and counted, not returned.
func (p *Publisher) PublishRecords(records []*score.ThreatRecord) int {
	published := 0
	for _, rec := range records {
		if levelRank(rec.Level) < levelRank(p.min) {
			continue
		}

		alert := Alert{
			SourceAddress:   rec.SourceAddress,
			Score:           rec.Score,
			Level:           string(rec.Level),
			PrimaryCategory: rec.PrimaryCategory,
			Reasoning:       rec.Reasoning,
			Recommendations: rec.Recommendations,
			DetectedAt:      p.now(),
		}

		data, err := json.Marshal(alert)
		if err != nil {
			p.logger.Error("marshaling alert", zap.Error(err))
			continue
		}

		if err := p.conn.Publish(p.subject, data); err != nil {
			p.logger.Warn("publishing alert failed",
				zap.String("source", rec.SourceAddress),
				zap.Error(err))
			continue
		}
		published++
	}
	return published
}

// Close releases the underlying NATS connection.
func (p *Publisher) Close() {
	if p.closer != nil {
		p.closer()
	}
}
