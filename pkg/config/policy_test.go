package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultPolicy_Invariants(t *testing.T) {
	p := DefaultPolicy()
	if p.MaxMessages != 10 {
		t.Errorf("MaxMessages = %d, want 10", p.MaxMessages)
	}
	if !p.ArtifactRequired {
		t.Error("ArtifactRequired should default to true")
	}
	if p.StallReply == "" {
		t.Error("StallReply must never be empty")
	}
	if len(p.SuspiciousKeywords) == 0 {
		t.Error("keyword vocabulary is empty")
	}
}

func TestLoadPolicy_OverlayMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	overlay := "max_messages: 15\nartifact_required: false\nsuspicious_keywords: [lottery, prize]\n"
	if err := os.WriteFile(path, []byte(overlay), 0o644); err != nil {
		t.Fatal(err)
	}

	p := LoadPolicy(path)
	if p.MaxMessages != 15 {
		t.Errorf("MaxMessages = %d, want 15", p.MaxMessages)
	}
	if p.ArtifactRequired {
		t.Error("overlay should disable ArtifactRequired")
	}
	if len(p.SuspiciousKeywords) != 2 || p.SuspiciousKeywords[0] != "lottery" {
		t.Errorf("SuspiciousKeywords = %v", p.SuspiciousKeywords)
	}
	// Untouched fields keep their defaults.
	if p.StallReply != DefaultPolicy().StallReply {
		t.Errorf("StallReply = %q, want default", p.StallReply)
	}
	if p.Persona == "" {
		t.Error("Persona lost in overlay merge")
	}
}

func TestLoadPolicy_BadFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("max_messages: [not an int"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := LoadPolicy(path)
	if p.MaxMessages != DefaultPolicy().MaxMessages {
		t.Error("invalid YAML should fall back to defaults")
	}

	p = LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	if p.StallReply == "" {
		t.Error("missing file should fall back to defaults")
	}
}

func TestLoadPolicy_ZeroValuesRefilled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("max_messages: 0\nstall_reply: \"\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := LoadPolicy(path)
	if p.MaxMessages <= 0 {
		t.Error("zero MaxMessages must be refilled")
	}
	if p.StallReply == "" {
		t.Error("empty StallReply must be refilled")
	}
}
