package reputation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"
)

// Provider errors. ErrBadCredentials must not be retried; ErrRateLimited
// callers should back off.
var (
	ErrBadCredentials = errors.New("reputation service rejected credentials")
	ErrRateLimited    = errors.New("reputation service rate limit exceeded")
	ErrUnavailable    = errors.New("reputation service unavailable")
	ErrNoAPIKey       = errors.New("reputation API key not configured")
)

// Provider is an external abuse-reputation source.
type Provider interface {
	Name() string
	Check(ctx context.Context, address string) (*Record, error)
}

// ProviderConfig holds external service settings. The API key is read from
// the environment variable named by APIKeyEnv, never stored directly.
type ProviderConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxAgeDays int           `yaml:"max_age_days"`
}

// DefaultProviderConfig returns sensible defaults.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		BaseURL:    "https://api.abuseipdb.com",
		APIKeyEnv:  "ABUSEIPDB_API_KEY",
		Timeout:    30 * time.Second,
		MaxAgeDays: 90,
	}
}

// HTTPProvider talks to an AbuseIPDB-compatible check endpoint.
type HTTPProvider struct {
	config     ProviderConfig
	httpClient *http.Client
}

// NewHTTPProvider creates the external provider. The API key must be
// present in the configured environment variable.
func NewHTTPProvider(config ProviderConfig) (*HTTPProvider, error) {
	if os.Getenv(config.APIKeyEnv) == "" {
		return nil, fmt.Errorf("%w: env var %s is empty", ErrNoAPIKey, config.APIKeyEnv)
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultProviderConfig().BaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxAgeDays <= 0 {
		config.MaxAgeDays = 90
	}

	return &HTTPProvider{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

func (p *HTTPProvider) Name() string { return "abuseipdb" }

// Check looks up one address. 401 maps to ErrBadCredentials, 429 to
// ErrRateLimited, any other non-2xx to ErrUnavailable.
func (p *HTTPProvider) Check(ctx context.Context, address string) (*Record, error) {
	endpoint := fmt.Sprintf("%s/api/v2/check?ipAddress=%s&maxAgeInDays=%d",
		p.config.BaseURL,
		url.QueryEscape(address),
		p.config.MaxAgeDays,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating check request: %w", err)
	}
	req.Header.Set("Key", os.Getenv(p.config.APIKeyEnv))
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "threatlens/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrBadCredentials
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var body checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}

	return body.Data.toRecord(address), nil
}

// checkResponse mirrors the AbuseIPDB check response envelope.
type checkResponse struct {
	Data checkData `json:"data"`
}

type checkData struct {
	IPAddress            string        `json:"ipAddress"`
	AbuseConfidenceScore int           `json:"abuseConfidenceScore"`
	CountryCode          string        `json:"countryCode"`
	ISP                  string        `json:"isp"`
	TotalReports         int           `json:"totalReports"`
	LastReportedAt       string        `json:"lastReportedAt"`
	IsWhitelisted        bool          `json:"isWhitelisted"`
	Reports              []checkReport `json:"reports,omitempty"`
}

type checkReport struct {
	Categories []int `json:"categories"`
}

// abuse category IDs worth naming in evidence. Unknown IDs are skipped.
var abuseCategories = map[int]string{
	4:  "ddos",
	14: "port-scan",
	15: "hacking",
	16: "sql-injection",
	18: "brute-force",
	19: "bad-web-bot",
	21: "web-attack",
	22: "ssh-abuse",
}

func (d checkData) toRecord(address string) *Record {
	rec := &Record{
		Address:      address,
		AbuseScore:   d.AbuseConfidenceScore,
		ReportCount:  d.TotalReports,
		IsListed:     !d.IsWhitelisted && d.AbuseConfidenceScore >= 75,
		Country:      d.CountryCode,
		Organization: d.ISP,
		RiskLevel:    riskLevelFor(d.AbuseConfidenceScore),
	}

	if ts, err := time.Parse(time.RFC3339, d.LastReportedAt); err == nil {
		rec.LastReportedAt = ts
	}

	seen := make(map[string]bool)
	for _, report := range d.Reports {
		for _, id := range report.Categories {
			if name, ok := abuseCategories[id]; ok && !seen[name] {
				seen[name] = true
				rec.Categories = append(rec.Categories, name)
			}
		}
	}

	rec.Trend = trendFor(rec)
	return rec
}

// trendFor derives a trend from score and report recency; the external
// service does not report one directly.
func trendFor(rec *Record) Trend {
	switch {
	case rec.AbuseScore >= 60 && !rec.LastReportedAt.IsZero() &&
		time.Since(rec.LastReportedAt) < 7*24*time.Hour:
		return TrendDeclining
	case rec.AbuseScore < 25:
		return TrendImproving
	default:
		return TrendStable
	}
}
