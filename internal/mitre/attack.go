// Package mitre maps detection methods to MITRE ATT&CK techniques so
// threat records carry framework references analysts can pivot on.
package mitre

import (
	"github.com/lvonguyen/threatlens/internal/detect"
)

// Technique represents a MITRE ATT&CK technique reference.
type Technique struct {
	ID     string `json:"id"`   // e.g., "T1110"
	Name   string `json:"name"` // e.g., "Brute Force"
	Tactic string `json:"tactic"`
	URL    string `json:"url"`
}

func technique(id, name, tactic string) Technique {
	return Technique{
		ID:     id,
		Name:   name,
		Tactic: tactic,
		URL:    "https://attack.mitre.org/techniques/" + id + "/",
	}
}

// methodTechniques keys techniques on detection method names. Methods
// without a clean framework equivalent are absent.
var methodTechniques = map[string]Technique{
	detect.MethodSSHBruteForce:       technique("T1110", "Brute Force", "credential-access"),
	detect.MethodSQLInjection:        technique("T1190", "Exploit Public-Facing Application", "initial-access"),
	detect.MethodMalwareIndicator:    technique("T1105", "Ingress Tool Transfer", "command-and-control"),
	detect.MethodDDoSIndicator:       technique("T1498", "Network Denial of Service", "impact"),
	detect.MethodWebShellUpload:      technique("T1505", "Server Software Component", "persistence"),
	detect.MethodPrivilegeEscalation: technique("T1068", "Exploitation for Privilege Escalation", "privilege-escalation"),
	detect.MethodAuthFailureAnomaly:  technique("T1110", "Brute Force", "credential-access"),
	detect.MethodRapidFireRequests:   technique("T1595", "Active Scanning", "reconnaissance"),
	detect.MethodDistributedAttack:   technique("T1595", "Active Scanning", "reconnaissance"),
	detect.MethodMultiVectorAttack:   technique("T1190", "Exploit Public-Facing Application", "initial-access"),
}

// ForFindings returns the distinct techniques implied by a finding set,
// preserving finding order.
func ForFindings(findings []detect.Finding) []Technique {
	var techniques []Technique
	seen := make(map[string]bool)
	for _, f := range findings {
		t, ok := methodTechniques[f.Method]
		if !ok || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		techniques = append(techniques, t)
	}
	return techniques
}
