package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy controls when an engagement ends and how the decoy persona behaves.
// Defaults match the production engagement rules; a YAML file can override
// individual fields for red-team exercises without a rebuild.
type Policy struct {
	// MaxMessages is the hard cap after which an engagement always terminates.
	MaxMessages int `yaml:"max_messages"`

	// ArtifactRequired gates termination-by-risk: when true, a HIGH
	// classification alone is not enough - at least one extracted payment
	// handle, bank account, or phishing link must also be present.
	// Keyword-only HIGH signals are treated as lower-confidence.
	ArtifactRequired bool `yaml:"artifact_required"`

	// HistoryWindow bounds how many recent conversation turns are fed to the
	// reply generator (oldest dropped first).
	HistoryWindow int `yaml:"history_window"`

	// Persona is the system instruction for the decoy agent.
	Persona string `yaml:"persona"`

	// SuspiciousKeywords is the urgency/fraud vocabulary the extractor
	// matches case-insensitively.
	SuspiciousKeywords []string `yaml:"suspicious_keywords"`

	// AgentNotes is the fixed analyst note attached to the final report.
	AgentNotes string `yaml:"agent_notes"`

	// StallReply is the deterministic fallback sent when every model and
	// credential candidate fails. Must never be empty: an absent reply is
	// scored as a failed engagement by the upstream evaluator.
	StallReply string `yaml:"stall_reply"`
}

// DefaultPolicy returns the built-in engagement policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxMessages:      10,
		ArtifactRequired: true,
		HistoryWindow:    8,
		Persona: "You are a naive, non-technical elderly person. " +
			"You are polite but easily confused. " +
			"You never give real money, but you pretend to be interested. " +
			"Keep your replies short (1-2 sentences).",
		SuspiciousKeywords: []string{"urgent", "block", "verify", "kyc", "suspend", "otp"},
		AgentNotes:         "Scammer used urgency and payment redirection tactics",
		StallReply:         "Oh dear, my internet is acting up. Could you say that again?",
	}
}

// LoadPolicy reads a YAML policy overlay from path, merged over the defaults.
// An empty path returns the defaults; a broken file logs and returns the
// defaults rather than refusing to start.
func LoadPolicy(path string) Policy {
	p := DefaultPolicy()
	if path == "" {
		return p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[STARTUP] Warning: policy file %s unreadable (%v), using defaults", path, err)
		return p
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		log.Printf("[STARTUP] Warning: policy file %s invalid (%v), using defaults", path, err)
		return DefaultPolicy()
	}

	// Re-fill anything the overlay blanked out; a zero cap or empty stall
	// line would break the termination and boundary guarantees.
	def := DefaultPolicy()
	if p.MaxMessages <= 0 {
		p.MaxMessages = def.MaxMessages
	}
	if p.HistoryWindow <= 0 {
		p.HistoryWindow = def.HistoryWindow
	}
	if p.Persona == "" {
		p.Persona = def.Persona
	}
	if len(p.SuspiciousKeywords) == 0 {
		p.SuspiciousKeywords = def.SuspiciousKeywords
	}
	if p.AgentNotes == "" {
		p.AgentNotes = def.AgentNotes
	}
	if p.StallReply == "" {
		p.StallReply = def.StallReply
	}
	return p
}
