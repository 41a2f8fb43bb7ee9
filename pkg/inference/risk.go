package inference

import (
	"strings"

	"github.com/TrapLineAI/trapline/pkg/intel"
)

// RiskLevel is the coarse scam-likelihood category for one message.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// ParseRisk maps a raw model reply onto a RiskLevel. Parsing is permissive:
// trim, uppercase, first-token match. The reserved DEFINITE tier degrades to
// HIGH; anything unrecognized becomes MEDIUM, the conservative default.
func ParseRisk(raw string) RiskLevel {
	token := strings.ToUpper(strings.TrimSpace(raw))
	if i := strings.IndexAny(token, " \t\r\n.,:;"); i > 0 {
		token = token[:i]
	}
	switch token {
	case "LOW":
		return RiskLow
	case "MEDIUM":
		return RiskMedium
	case "HIGH", "DEFINITE":
		return RiskHigh
	default:
		return RiskMedium
	}
}

// HeuristicRisk is the last-resort classifier used when every model and
// credential candidate has failed. It reuses the extractor's indicators:
// hard artifacts together with urgency keywords read as HIGH, anything else
// stays at the conservative MEDIUM floor. It never returns LOW - declaring
// a message harmless is something only a model gets to do.
func HeuristicRisk(rec intel.Record) RiskLevel {
	if rec.HasArtifacts() && len(rec.SuspiciousKeywords) > 0 {
		return RiskHigh
	}
	return RiskMedium
}
