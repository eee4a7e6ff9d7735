// Package pipeline wires the parser, aggregator, detection methods,
// scorers and reputation client into one analysis pass: raw events in,
// ranked threat records out.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lvonguyen/threatlens/internal/aggregate"
	"github.com/lvonguyen/threatlens/internal/detect"
	"github.com/lvonguyen/threatlens/internal/logparse"
	"github.com/lvonguyen/threatlens/internal/observability"
	"github.com/lvonguyen/threatlens/internal/reputation"
	"github.com/lvonguyen/threatlens/internal/score"
)

// Pipeline runs the full analysis pass. Detectors are pure, so per-source
// detection runs concurrently; the correlation detector additionally runs
// once over the whole event set so cross-source campaigns are visible.
type Pipeline struct {
	parser     *logparse.Parser
	detectors  []detect.Detector
	correlator detect.Detector
	reputation *reputation.Client
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics attaches Prometheus metrics to the pipeline.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New creates a pipeline with the full detector set.
func New(parser *logparse.Parser, cfg detect.AnomalyConfig, repClient *reputation.Client, logger *zap.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		parser:     parser,
		detectors:  detect.All(cfg),
		correlator: detect.NewCorrelationDetector(),
		reputation: repClient,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseBatch parses raw log content without analyzing it, recording parse
// metrics along the way.
func (p *Pipeline) ParseBatch(content string) *logparse.ParseResult {
	result := p.parser.ParseBatch(content)
	if p.metrics != nil {
		for format, n := range result.Formats {
			p.metrics.LinesParsed.WithLabelValues(format).Add(float64(n))
		}
		p.metrics.ParseFailures.Add(float64(result.TotalLines - result.ParsedLines))
	}
	return result
}

// AnalyzeText parses raw log content and analyzes the resulting events.
// It fails only when nothing in the content parses.
func (p *Pipeline) AnalyzeText(ctx context.Context, content string) ([]*score.ThreatRecord, *logparse.ParseResult, error) {
	result := p.ParseBatch(content)
	if !result.Succeeded {
		return nil, result, fmt.Errorf("could not parse any log entries")
	}
	records := p.Analyze(ctx, result.Events)
	return records, result, nil
}

// Analyze groups events by source, runs every detection method per source,
// fuses scores with reputation data, and returns threat records sorted by
// final score descending.
func (p *Pipeline) Analyze(ctx context.Context, events []*logparse.Event) []*score.ThreatRecord {
	start := time.Now()

	aggregates := aggregate.ByAddress(events)
	if len(aggregates) == 0 {
		return nil
	}

	// The distributed-attack check needs the whole event set; per-source
	// slices can never see five distinct sources.
	crossFindings := p.crossSourceFindings(events)

	findingsBySource := p.detectAll(aggregates, events, crossFindings)

	addresses := make([]string, 0, len(aggregates))
	for address := range aggregates {
		addresses = append(addresses, address)
	}
	reputations := p.reputation.LookupBatch(ctx, addresses)

	records := make([]*score.ThreatRecord, 0, len(aggregates))
	for address, agg := range aggregates {
		findings := findingsBySource[address]
		rec := score.Fuse(address, score.Composite(findings), reputations[address], findings, baseRecommendations(agg))
		records = append(records, rec)

		if p.metrics != nil {
			p.metrics.SourcesAnalyzed.Inc()
			p.metrics.ThreatsByLevel.WithLabelValues(string(rec.Level)).Inc()
			for _, f := range findings {
				p.metrics.DetectionsTotal.WithLabelValues(f.Method).Inc()
			}
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Score != records[j].Score {
			return records[i].Score > records[j].Score
		}
		return records[i].SourceAddress < records[j].SourceAddress
	})

	if p.metrics != nil {
		p.metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	}
	p.logger.Info("analysis complete",
		zap.Int("events", len(events)),
		zap.Int("sources", len(records)),
		zap.Duration("duration", time.Since(start)))

	return records
}

// eventsBySource groups the raw events the same way the aggregator keys
// them, preserving input order within a source.
func eventsBySource(events []*logparse.Event) map[string][]*logparse.Event {
	grouped := make(map[string][]*logparse.Event)
	for _, ev := range events {
		if ev == nil {
			continue
		}
		grouped[ev.SourceAddress] = append(grouped[ev.SourceAddress], ev)
	}
	return grouped
}

// crossSourceFindings runs the correlation detector over the full event
// set and keeps only the findings that need that global view.
func (p *Pipeline) crossSourceFindings(events []*logparse.Event) []detect.Finding {
	var cross []detect.Finding
	for _, f := range p.correlator.Detect(events) {
		if f.Method == detect.MethodDistributedAttack {
			cross = append(cross, f)
		}
	}
	return cross
}

// detectAll runs the detector set for every source concurrently and
// attaches cross-source findings to each participating source.
func (p *Pipeline) detectAll(aggregates map[string]*aggregate.SourceAggregate, events []*logparse.Event, crossFindings []detect.Finding) map[string][]detect.Finding {
	grouped := eventsBySource(events)

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		findings = make(map[string][]detect.Finding, len(aggregates))
	)

	for address := range aggregates {
		wg.Add(1)
		go func(address string, sourceEvents []*logparse.Event) {
			defer wg.Done()

			var sourceFindings []detect.Finding
			for _, d := range p.detectors {
				sourceFindings = append(sourceFindings, d.Detect(sourceEvents)...)
			}
			sourceFindings = append(sourceFindings, crossFindings...)

			mu.Lock()
			findings[address] = sourceFindings
			mu.Unlock()
		}(address, grouped[address])
	}
	wg.Wait()

	return findings
}

// baseRecommendations derives response recommendations from raw aggregate
// counters; the fusion layer merges them with reputation-derived ones.
func baseRecommendations(agg *aggregate.SourceAggregate) []string {
	var recs []string
	if agg.FailedAuth >= 3 {
		recs = append(recs, "Enable rate limiting on authentication endpoints")
	}
	if agg.SQLInjection > 0 {
		recs = append(recs, "Audit database queries and parameterize all inputs")
	}
	if agg.Malware > 0 {
		recs = append(recs, "Run a full malware scan on affected hosts")
	}
	if agg.DDoS > 0 {
		recs = append(recs, "Enable upstream traffic filtering")
	}
	if agg.HTTPDenied >= 5 {
		recs = append(recs, "Review access control rules for repeated denials")
	}
	return recs
}
