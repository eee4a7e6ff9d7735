package reputation

import (
	"hash/fnv"
	"strings"
	"time"
)

// knownBadRange is a CIDR-style range the generator treats as hostile.
// Membership is checked by comparing whole leading octets (bits/8), a
// deliberate approximation; masks not aligned to octet boundaries are
// rounded down.
type knownBadRange struct {
	prefix string
	bits   int
	score  int
	label  string
}

var knownBadRanges = []knownBadRange{
	{prefix: "185.220.100.0", bits: 22, score: 85, label: "tor-exit"},
	{prefix: "45.155.205.0", bits: 24, score: 90, label: "scanner"},
	{prefix: "89.248.165.0", bits: 24, score: 88, label: "scanner"},
	{prefix: "141.98.10.0", bits: 24, score: 82, label: "brute-force"},
	{prefix: "193.106.191.0", bits: 24, score: 80, label: "brute-force"},
	{prefix: "5.188.206.0", bits: 24, score: 78, label: "spam"},
}

// hostileOrgs maps organization keywords seen in bulletproof-hosting
// ASN listings to a baseline abuse score.
var hostileOrgs = map[string]int{
	"bulletproof": 75,
	"offshore":    60,
	"anonymous":   55,
}

// highRiskCountries is the fixed set used by both the generator and the
// boost formula.
var highRiskCountries = map[string]bool{
	"CN": true,
	"RU": true,
	"KP": true,
	"IR": true,
}

var fallbackCountries = []string{"US", "CN", "RU", "DE", "NL", "BR", "IN", "VN", "KR", "FR"}

var fallbackOrgs = []string{
	"Hetzner Online GmbH",
	"DigitalOcean LLC",
	"OVH SAS",
	"Tencent Cloud Computing",
	"ChinaNet Backbone",
	"Comcast Cable Communications",
	"Vodafone GmbH",
	"Bharti Airtel Ltd",
}

// Generator produces deterministic heuristic reputation records when the
// external service cannot be reached. The same address always yields the
// same record for a fixed clock.
type Generator struct {
	now func() time.Time
}

// NewGenerator returns a generator using the wall clock.
func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// Generate derives a plausible record for the address from known bad
// ranges, organization heuristics, and a stable hash.
func (g *Generator) Generate(address string) *Record {
	h := addressHash(address)
	now := g.now()

	rec := &Record{
		Address:      address,
		Country:      fallbackCountries[h%uint32(len(fallbackCountries))],
		Organization: fallbackOrgs[(h/7)%uint32(len(fallbackOrgs))],
	}

	if r, ok := matchBadRange(address); ok {
		rec.AbuseScore = r.score
		rec.Categories = []string{r.label}
		rec.IsListed = true
		rec.ReportCount = 50 + int(h%200)
		rec.LastReportedAt = now.Add(-time.Duration(1+h%72) * time.Hour)
		rec.Trend = TrendDeclining
	} else {
		// Unlisted addresses get a low hash-derived score with a small
		// bump for high-risk countries.
		rec.AbuseScore = int(h % 30)
		if highRiskCountries[rec.Country] {
			rec.AbuseScore += 15
		}
		if bump, ok := orgScore(rec.Organization); ok && bump > rec.AbuseScore {
			rec.AbuseScore = bump
		}
		rec.ReportCount = int(h % 20)
		if rec.ReportCount > 0 {
			rec.LastReportedAt = now.Add(-time.Duration(2+h%40) * 24 * time.Hour)
		}
		rec.Trend = []Trend{TrendImproving, TrendStable, TrendStable}[h%3]
	}

	rec.RiskLevel = riskLevelFor(rec.AbuseScore)
	return rec
}

func orgScore(org string) (int, bool) {
	lower := strings.ToLower(org)
	for keyword, score := range hostileOrgs {
		if strings.Contains(lower, keyword) {
			return score, true
		}
	}
	return 0, false
}

// matchBadRange checks the address against known bad ranges by comparing
// the first bits/8 octets.
func matchBadRange(address string) (knownBadRange, bool) {
	octets := strings.Split(address, ".")
	if len(octets) != 4 {
		return knownBadRange{}, false
	}
	for _, r := range knownBadRanges {
		prefixOctets := strings.Split(r.prefix, ".")
		n := r.bits / 8
		if n > len(prefixOctets) {
			n = len(prefixOctets)
		}
		matched := true
		for i := 0; i < n; i++ {
			if octets[i] != prefixOctets[i] {
				matched = false
				break
			}
		}
		if matched {
			return r, true
		}
	}
	return knownBadRange{}, false
}

// addressHash gives a stable non-cryptographic hash for spreading
// generated fields across addresses.
func addressHash(address string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(address))))
	return h.Sum32()
}
