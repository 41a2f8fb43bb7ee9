// Package inference wraps the external generative-text capability behind two
// adapters: a risk classifier and a persona reply agent. Both share one REST
// client with ordered model fallback and quota-exhaustion detection.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/TrapLineAI/trapline/pkg/httputil"
)

// DefaultBaseURL is the Gemini REST endpoint. Overridable for tests.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// Content is one conversation turn in the Gemini wire format.
type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Part is a fragment of a Content turn.
type Part struct {
	Text string `json:"text,omitempty"`
}

type genConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	Contents          []Content  `json:"contents"`
	SystemInstruction *Content   `json:"systemInstruction,omitempty"`
	GenerationConfig  *genConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text,omitempty"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// QuotaError marks a quota-exhaustion failure on a specific credential so the
// caller can apply a cool-down before retrying with another key.
type QuotaError struct {
	Model   string
	Message string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exhausted [%s]: %s", e.Model, e.Message)
}

// IsQuota reports whether err (or anything it wraps) is a QuotaError.
func IsQuota(err error) bool {
	var qe *QuotaError
	return errors.As(err, &qe)
}

// ClientConfig configures the shared REST client.
type ClientConfig struct {
	BaseURL     string        // Defaults to DefaultBaseURL
	APIVersion  string        // Defaults to "v1"
	Models      []string      // Ordered model candidates, primary first
	CallTimeout time.Duration // Budget for a single model attempt
}

// Client is the shared Gemini REST client. One instance serves all sessions;
// it holds no per-session state.
type Client struct {
	http        *http.Client
	baseURL     string
	apiVersion  string
	models      []string
	callTimeout time.Duration
}

// NewClient creates a Client over the pooled transport.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v1"
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 3 * time.Second
	}
	return &Client{
		// Client timeout backstops the per-attempt context timeout.
		http:        httputil.NewClient(cfg.CallTimeout + time.Second),
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiVersion:  cfg.APIVersion,
		models:      cfg.Models,
		callTimeout: cfg.CallTimeout,
	}
}

// Models returns the configured model candidate list.
func (c *Client) Models() []string {
	return append([]string(nil), c.models...)
}

// Generate walks the model candidates in order and returns the first
// non-empty reply. A per-model failure is logged and the loop advances; the
// last error is returned once every candidate is exhausted. A QuotaError
// short-circuits the loop: further models on the same key will fail the
// same way, and the caller needs to rotate the credential.
func (c *Client) Generate(ctx context.Context, key string, contents []Content, system string) (string, error) {
	if key == "" {
		return "", errors.New("no credential available")
	}

	var lastErr error
	for _, model := range c.models {
		text, err := c.generateOnce(ctx, model, key, contents, system)
		if err != nil {
			log.Printf("[INFER] Model %s/%s failed: %v", c.apiVersion, model, err)
			lastErr = err
			if IsQuota(err) {
				return "", lastErr
			}
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		if text != "" {
			return text, nil
		}
		lastErr = fmt.Errorf("empty reply from %s", model)
	}
	if lastErr == nil {
		lastErr = errors.New("no model candidates configured")
	}
	return "", lastErr
}

func (c *Client) generateOnce(ctx context.Context, model, key string, contents []Content, system string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	reqBody := generateRequest{
		Contents: contents,
		GenerationConfig: &genConfig{
			Temperature:     0.7,
			MaxOutputTokens: 100,
		},
	}
	if system != "" {
		reqBody.SystemInstruction = &Content{Parts: []Part{{Text: system}}}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent?key=%s", c.baseURL, c.apiVersion, model, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer httputil.DrainAndClose(resp.Body)

	body, err := httputil.ReadResponseBody(resp.Body, httputil.MaxResponseSize)
	if err != nil {
		return "", err
	}

	if quotaExhausted(resp.StatusCode, body) {
		return "", &QuotaError{Model: model, Message: truncate(string(body), 200)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("unmarshal error: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("API error %d (%s): %s", out.Error.Code, out.Error.Status, out.Error.Message)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", nil
	}
	return strings.TrimSpace(out.Candidates[0].Content.Parts[0].Text), nil
}

// quotaExhausted matches the known rate-limit signatures of the endpoint.
func quotaExhausted(status int, body []byte) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	lower := strings.ToLower(string(body))
	return strings.Contains(lower, "resource_exhausted") ||
		strings.Contains(lower, "quota exceeded") ||
		strings.Contains(lower, "rate limit")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
