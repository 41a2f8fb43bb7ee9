// Package config holds global settings for the TrapLine honeypot engine.
// All settings can be configured via environment variables or programmatically.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// MaxCredentialSlots is the highest GEMINI_KEY_<n> slot scanned at startup.
const MaxCredentialSlots = 50

// Config holds global settings for the TrapLine engine
type Config struct {
	// === Core Settings ===
	Port            string        // HTTP listen port (env: PORT, default "8080")
	APIKey          string        // Shared secret for the x-api-key request header (env: API_SECRET_KEY)
	RequestDeadline time.Duration // Outer per-request deadline; the boundary must answer inside this

	// === Inference Configuration ===
	Credentials    []string      // Gemini API keys loaded from GEMINI_KEY_1..GEMINI_KEY_50
	APIVersion     string        // Gemini REST API version segment (default "v1")
	PrimaryModel   string        // First model candidate (env: TRAPLINE_MODEL)
	FallbackModels []string      // Remaining ordered candidates (env: TRAPLINE_FALLBACK_MODELS)
	LLMTimeout     time.Duration // Per-call timeout for one model attempt
	KeyCooldown    time.Duration // Exclusion window after a quota-exhausted credential

	// === Session Storage ===
	RedisAddr     string        // Redis address for the durable mirror; empty = memory-only
	RedisPassword string        // Optional Redis auth
	SessionTTL    time.Duration // Idle auto-expiry window for sessions (mirror TTL + janitor)

	// === Reporting ===
	ReportURL     string        // Final-report webhook endpoint
	ReportTimeout time.Duration // One-shot report delivery timeout

	// === Engagement Policy ===
	Policy Policy // Termination policy, persona, keyword list (optionally YAML-overridden)
}

// NewDefaultConfig creates a Config with sensible defaults.
// All settings can be overridden via environment variables.
func NewDefaultConfig() *Config {
	cfg := &Config{
		Port:            GetEnv("PORT", "8080"),
		APIKey:          os.Getenv("API_SECRET_KEY"),
		RequestDeadline: time.Duration(GetEnvInt("TRAPLINE_REQUEST_DEADLINE_MS", 4500)) * time.Millisecond,

		Credentials:  loadCredentials(),
		APIVersion:   GetEnv("GEMINI_API_VERSION", "v1"),
		PrimaryModel: GetEnv("TRAPLINE_MODEL", "gemini-2.0-flash"),
		FallbackModels: GetEnvSlice("TRAPLINE_FALLBACK_MODELS",
			[]string{"gemini-1.5-flash-latest", "gemini-1.5-flash"}),
		LLMTimeout:  time.Duration(GetEnvInt("TRAPLINE_LLM_TIMEOUT_MS", 3000)) * time.Millisecond,
		KeyCooldown: time.Duration(GetEnvInt("TRAPLINE_KEY_COOLDOWN_SECONDS", 1800)) * time.Second,

		RedisAddr:     GetEnv("REDIS_ADDR", ""),
		RedisPassword: GetEnv("REDIS_PASSWORD", ""),
		SessionTTL:    time.Duration(GetEnvInt("TRAPLINE_SESSION_TTL_SECONDS", 1800)) * time.Second,

		ReportURL:     GetEnv("TRAPLINE_REPORT_URL", ""),
		ReportTimeout: time.Duration(GetEnvInt("TRAPLINE_REPORT_TIMEOUT_MS", 3000)) * time.Millisecond,

		Policy: LoadPolicy(GetEnv("TRAPLINE_POLICY_FILE", "")),
	}

	return cfg
}

// ModelCandidates returns the ordered model fallback list (primary first).
func (c *Config) ModelCandidates() []string {
	out := make([]string, 0, 1+len(c.FallbackModels))
	out = append(out, c.PrimaryModel)
	for _, m := range c.FallbackModels {
		if m != "" && m != c.PrimaryModel {
			out = append(out, m)
		}
	}
	return out
}

// loadCredentials scans the numbered GEMINI_KEY_<n> slots in order.
// Gaps are skipped so operators can retire a key without renumbering.
func loadCredentials() []string {
	var keys []string
	for i := 1; i <= MaxCredentialSlots; i++ {
		if k := os.Getenv(fmt.Sprintf("GEMINI_KEY_%d", i)); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// Validate checks that all required configuration is present.
// Missing credentials are a warning, not an error: the engine degrades to
// courtesy replies only, which is preferable to refusing inbound traffic.
func (c *Config) Validate() error {
	var missing []string

	if c.APIKey == "" {
		missing = append(missing, "API_SECRET_KEY (shared secret for x-api-key auth)")
	}
	if c.ReportURL == "" {
		missing = append(missing, "TRAPLINE_REPORT_URL (final-report webhook endpoint)")
	}

	if len(c.Credentials) == 0 {
		log.Printf("[STARTUP] Warning: no GEMINI_KEY_* credentials loaded - running in degraded mode")
	}
	if c.RedisAddr == "" {
		log.Printf("[STARTUP] Warning: REDIS_ADDR not set - session mirror disabled, crash recovery unavailable")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// MustValidate calls Validate and fatally exits if validation fails.
// Call this at startup before starting the server.
func (c *Config) MustValidate() {
	if err := c.Validate(); err != nil {
		log.Fatalf("[STARTUP] FATAL: Configuration validation failed: %v", err)
	}
	log.Println("[STARTUP] Configuration validated successfully")
}

// Helper functions for environment variable parsing
// These are exported for use by other packages

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

// GetEnvSlice returns a comma-separated list from an environment variable or a default value.
func GetEnvSlice(key string, defaultValue []string) []string {
	if v := os.Getenv(key); v != "" {
		var parts []string
		for _, p := range strings.Split(v, ",") {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}
