package detect

import (
	"fmt"
	"regexp"

	"github.com/lvonguyen/threatlens/internal/logparse"
)

// signature is one fixed attack pattern with its emission threshold and
// confidence curve: confidence = base + matches*increment, capped.
type signature struct {
	method      string
	pattern     *regexp.Regexp
	description string
	minMatches  int
	base        int
	increment   int
	cap         int
}

var signatures = []signature{
	{
		method:      MethodSSHBruteForce,
		pattern:     regexp.MustCompile(`(?i)failed password|invalid user|authentication failure`),
		description: "repeated SSH authentication failures consistent with brute forcing",
		minMatches:  3,
		base:        60,
		increment:   5,
		cap:         95,
	},
	{
		method:      MethodSQLInjection,
		pattern:     regexp.MustCompile(`(?i)union\s+select|or\s+1\s*=\s*1|'\s*or\s*'|drop\s+table|;\s*--|%27|information_schema`),
		description: "SQL injection payload observed in request content",
		minMatches:  1,
		base:        80,
		increment:   5,
		cap:         99,
	},
	{
		method:      MethodMalwareIndicator,
		pattern:     regexp.MustCompile(`(?i)malware|trojan|backdoor|rootkit|ransomware|virus detected|c2 server`),
		description: "malware indicator reported for this source",
		minMatches:  1,
		base:        75,
		increment:   5,
		cap:         95,
	},
	{
		method:      MethodDDoSIndicator,
		pattern:     regexp.MustCompile(`(?i)syn flood|udp flood|icmp flood|denial of service|ddos|connection flood`),
		description: "flood traffic indicator consistent with denial of service",
		minMatches:  1,
		base:        70,
		increment:   5,
		cap:         90,
	},
	{
		method:      MethodWebShellUpload,
		pattern:     regexp.MustCompile(`(?i)(?:upload|post)\S*\s+\S*\.(?:php|jsp|aspx?)\b|webshell|cmd\.php|shell\.php|c99\.php`),
		description: "web shell upload attempt detected",
		minMatches:  1,
		base:        85,
		increment:   5,
		cap:         99,
	},
	{
		method:      MethodPrivilegeEscalation,
		pattern:     regexp.MustCompile(`(?i)privilege escalation|became root|setuid|uid=0|sudo:.*incorrect password|unauthorized sudo`),
		description: "privilege escalation activity observed",
		minMatches:  1,
		base:        75,
		increment:   5,
		cap:         95,
	},
}

// SignatureDetector regex-tests events against the fixed signature set.
type SignatureDetector struct{}

func NewSignatureDetector() *SignatureDetector { return &SignatureDetector{} }

func (d *SignatureDetector) Name() string { return "signature" }

func (d *SignatureDetector) Detect(events []*logparse.Event) []Finding {
	var findings []Finding

	for _, sig := range signatures {
		var matched []string
		for _, ev := range events {
			if sig.pattern.MatchString(ev.Message) {
				matched = append(matched, ev.Message)
			}
		}
		if len(matched) < sig.minMatches {
			continue
		}

		confidence := clampConfidence(sig.base+len(matched)*sig.increment, sig.cap)
		findings = append(findings, Finding{
			Method:      sig.method,
			Confidence:  confidence,
			Description: fmt.Sprintf("%s (%d matching events)", sig.description, len(matched)),
			Evidence:    capEvidence(matched, 5),
		})
	}

	return findings
}
