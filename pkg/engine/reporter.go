package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/TrapLineAI/trapline/pkg/httputil"
	"github.com/TrapLineAI/trapline/pkg/intel"
)

// Report is the final dossier delivered to the reporting sink when an
// engagement terminates.
type Report struct {
	SessionID              string       `json:"sessionId"`
	ScamDetected           bool         `json:"scamDetected"`
	TotalMessagesExchanged int          `json:"totalMessagesExchanged"`
	ExtractedIntelligence  intel.Record `json:"extractedIntelligence"`
	AgentNotes             string       `json:"agentNotes"`
}

// Reporter delivers final reports to the configured webhook. One-shot POST
// with a short timeout: the caller decides what a failure means for the
// session (it keeps it alive for a later retry).
type Reporter struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// NewReporter creates a Reporter for the given webhook URL.
func NewReporter(url string, timeout time.Duration) *Reporter {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Reporter{
		url:     url,
		client:  httputil.NewClient(timeout),
		timeout: timeout,
	}
}

// Submit POSTs the report. Every submission carries a fresh X-Report-ID so
// an at-least-once retry can be deduplicated by the receiver.
func (r *Reporter) Submit(ctx context.Context, report Report) error {
	if r.url == "" {
		return fmt.Errorf("no report URL configured")
	}

	report.ExtractedIntelligence = canonical(report.ExtractedIntelligence)
	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Report-ID", uuid.NewString())

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer httputil.DrainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := httputil.ReadResponseBody(resp.Body, 4096)
		return fmt.Errorf("report rejected with %d: %s", resp.StatusCode, body)
	}
	return nil
}

// canonical replaces nil indicator slices with empty ones so the report
// always serializes sets as JSON arrays, never null.
func canonical(r intel.Record) intel.Record {
	if r.UPIIDs == nil {
		r.UPIIDs = []string{}
	}
	if r.BankAccounts == nil {
		r.BankAccounts = []string{}
	}
	if r.PhoneNumbers == nil {
		r.PhoneNumbers = []string{}
	}
	if r.PhishingLinks == nil {
		r.PhishingLinks = []string{}
	}
	if r.SuspiciousKeywords == nil {
		r.SuspiciousKeywords = []string{}
	}
	return r
}
