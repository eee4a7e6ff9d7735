// Package aggregate groups normalized events by source address and keeps
// the raw counters the scoring layer consumes. Aggregates are rebuilt from
// scratch on every analysis pass; nothing here is incrementally mutated
// across calls, so edits or deletions upstream can never leave stale counts.
package aggregate

import (
	"strings"
	"time"

	"github.com/lvonguyen/threatlens/internal/logparse"
)

// SourceAggregate holds the running counters for one source address.
type SourceAggregate struct {
	Address        string    `json:"address"`
	FailedAuth     int       `json:"failed_auth"`
	SQLInjection   int       `json:"sql_injection"`
	Malware        int       `json:"malware"`
	DDoS           int       `json:"ddos"`
	HTTPDenied     int       `json:"http_denied"`
	LoginEndpoints int       `json:"login_endpoints"`
	TotalEvents    int       `json:"total_events"`
	LastSeen       time.Time `json:"last_seen"`
	Messages       []string  `json:"-"`
}

// Phrase lists. An event contributes at most 1 to each counter: the first
// matching phrase short-circuits, independently per family.
var (
	failedAuthPhrases = []string{
		"failed password",
		"invalid user",
		"authentication failure",
		"server refused our key",
		"permission denied",
	}

	sqlInjectionPhrases = []string{
		"union select",
		"or 1=1",
		"' or '",
		"drop table",
		"; --",
		"%27",
		"information_schema",
	}

	malwarePhrases = []string{
		"malware",
		"trojan",
		"backdoor",
		"rootkit",
		"ransomware",
		"virus detected",
		"c2 server",
	}

	ddosPhrases = []string{
		"syn flood",
		"udp flood",
		"icmp flood",
		"denial of service",
		"ddos",
		"connection flood",
	}

	// Literal substring checks for denied HTTP responses.
	httpDeniedTokens = []string{" 401 ", ` 401"`, "status=401", " 403 ", "status=403"}

	loginEndpoints = []string{"/login", "/signin", "/wp-login", "/admin", "/auth"}
)

// ByAddress groups events by exact source-address string equality and
// computes per-source counters. No CIDR or subnet folding is applied.
func ByAddress(events []*logparse.Event) map[string]*SourceAggregate {
	aggregates := make(map[string]*SourceAggregate)

	for _, ev := range events {
		agg, ok := aggregates[ev.SourceAddress]
		if !ok {
			agg = &SourceAggregate{Address: ev.SourceAddress}
			aggregates[ev.SourceAddress] = agg
		}

		lower := strings.ToLower(ev.Message)

		if containsAny(lower, failedAuthPhrases) {
			agg.FailedAuth++
		}
		if containsAny(lower, sqlInjectionPhrases) {
			agg.SQLInjection++
		}
		if containsAny(lower, malwarePhrases) {
			agg.Malware++
		}
		if containsAny(lower, ddosPhrases) {
			agg.DDoS++
		}
		if containsAny(ev.Message, httpDeniedTokens) {
			agg.HTTPDenied++
		}
		if containsAny(lower, loginEndpoints) {
			agg.LoginEndpoints++
		}

		agg.TotalEvents++
		agg.Messages = append(agg.Messages, ev.Message)
		if ev.Timestamp.After(agg.LastSeen) {
			agg.LastSeen = ev.Timestamp
		}
	}

	return aggregates
}

func containsAny(s string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(s, phrase) {
			return true
		}
	}
	return false
}
