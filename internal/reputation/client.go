package reputation

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Boost bounds.
const (
	boostMin = -20
	boostMax = 50
)

// DefaultBatchDelay spaces sequential external lookups to stay inside
// third-party rate limits.
const DefaultBatchDelay = 200 * time.Millisecond

// Client resolves reputation records with a cache in front of an external
// provider and a heuristic generator behind it. Lookup never returns an
// error; on any provider failure it degrades to generated data.
type Client struct {
	cache      Cache
	provider   Provider
	generator  *Generator
	logger     *zap.Logger
	batchDelay time.Duration
	sleep      func(time.Duration)

	mu               sync.Mutex
	externalDisabled bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithProvider sets the external reputation provider. Without one the
// client serves cached and generated records only.
func WithProvider(p Provider) ClientOption {
	return func(c *Client) { c.provider = p }
}

// WithBatchDelay overrides the inter-call delay used by LookupBatch.
func WithBatchDelay(d time.Duration) ClientOption {
	return func(c *Client) { c.batchDelay = d }
}

func withSleep(fn func(time.Duration)) ClientOption {
	return func(c *Client) { c.sleep = fn }
}

// NewClient creates a reputation client over the given cache.
func NewClient(cache Cache, logger *zap.Logger, opts ...ClientOption) *Client {
	c := &Client{
		cache:      cache,
		generator:  NewGenerator(),
		logger:     logger,
		batchDelay: DefaultBatchDelay,
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns the reputation record for an address. Resolution order
// is cache, external provider, heuristic generator; the result is always
// cached so repeated lookups are stable within the TTL window.
func (c *Client) Lookup(ctx context.Context, address string) *Record {
	rec, _ := c.lookup(ctx, address)
	return rec
}

// lookup reports whether the record came from the external provider.
func (c *Client) lookup(ctx context.Context, address string) (*Record, bool) {
	address = strings.TrimSpace(address)

	if rec, ok := c.cache.Get(ctx, address); ok {
		return rec, false
	}

	if c.externalEnabled() {
		rec, err := c.provider.Check(ctx, address)
		if err == nil {
			c.cache.Set(ctx, address, rec)
			return rec, true
		}
		c.handleProviderError(address, err)
	}

	rec := c.generator.Generate(address)
	c.cache.Set(ctx, address, rec)
	return rec, false
}

func (c *Client) externalEnabled() bool {
	if c.provider == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.externalDisabled
}

func (c *Client) handleProviderError(address string, err error) {
	switch {
	case errors.Is(err, ErrBadCredentials):
		// Retrying with the same key cannot succeed. Stop calling out
		// for the rest of the process lifetime.
		c.mu.Lock()
		c.externalDisabled = true
		c.mu.Unlock()
		c.logger.Error("reputation credentials rejected, disabling external lookups",
			zap.String("provider", c.provider.Name()))
	case errors.Is(err, ErrRateLimited):
		c.logger.Warn("reputation service rate limited, using fallback",
			zap.String("address", address))
	default:
		c.logger.Warn("reputation lookup failed, using fallback",
			zap.String("address", address),
			zap.Error(err))
	}
}

// LookupBatch resolves a list of addresses, de-duplicated, preserving
// first-seen order. External calls are serialized with an inter-call
// delay; cache hits and generated records incur no delay.
func (c *Client) LookupBatch(ctx context.Context, addresses []string) map[string]*Record {
	results := make(map[string]*Record, len(addresses))
	external := 0
	for _, address := range addresses {
		address = strings.TrimSpace(address)
		if address == "" {
			continue
		}
		if _, seen := results[address]; seen {
			continue
		}
		if external > 0 {
			c.sleep(c.batchDelay)
			external = 0
		}
		rec, fromExternal := c.lookup(ctx, address)
		results[address] = rec
		if fromExternal {
			external++
		}
	}
	return results
}

// Boost converts a reputation record into a bounded signed score
// adjustment in [-20, 50].
func Boost(rec *Record) int {
	if rec == nil {
		return 0
	}

	boost := float64(rec.AbuseScore) / 100 * 40

	if !rec.LastReportedAt.IsZero() {
		age := time.Since(rec.LastReportedAt)
		switch {
		case age < 7*24*time.Hour:
			boost += 10
		case age < 30*24*time.Hour:
			boost += 5
		case age < 90*24*time.Hour:
			boost += 2
		}
	}

	if rec.IsListed {
		boost += 20
	}

	volume := float64(rec.ReportCount) / 100
	if volume > 1 {
		volume = 1
	}
	boost += volume * 10

	if highRiskCountries[rec.Country] {
		boost += 10
	}

	switch rec.Trend {
	case TrendDeclining:
		boost += 8
	case TrendImproving:
		boost -= 5
	}

	result := int(math.Round(boost))
	if result < boostMin {
		return boostMin
	}
	if result > boostMax {
		return boostMax
	}
	return result
}
