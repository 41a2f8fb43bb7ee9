package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/TrapLineAI/trapline/pkg/intel"
)

func TestSubmit_PostsReportSchema(t *testing.T) {
	var mu sync.Mutex
	var gotBody []byte
	var gotReportID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotBody, _ = io.ReadAll(r.Body)
		gotReportID = r.Header.Get("X-Report-ID")
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rep := NewReporter(srv.URL, 2*time.Second)
	err := rep.Submit(context.Background(), Report{
		SessionID:              "sess-1",
		ScamDetected:           true,
		TotalMessagesExchanged: 7,
		ExtractedIntelligence: intel.Record{
			UPIIDs: []string{"test@upi"},
		},
		AgentNotes: "notes",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotReportID == "" {
		t.Error("X-Report-ID header missing")
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("report body not JSON: %v", err)
	}
	for _, field := range []string{"sessionId", "scamDetected", "totalMessagesExchanged", "extractedIntelligence", "agentNotes"} {
		if _, ok := payload[field]; !ok {
			t.Errorf("report missing field %q", field)
		}
	}

	// Empty indicator sets serialize as arrays, never null.
	var rec map[string]json.RawMessage
	_ = json.Unmarshal(payload["extractedIntelligence"], &rec)
	if string(rec["bankAccounts"]) != "[]" {
		t.Errorf("bankAccounts = %s, want []", rec["bankAccounts"])
	}
	if string(rec["upiIds"]) != `["test@upi"]` {
		t.Errorf("upiIds = %s", rec["upiIds"])
	}
}

func TestSubmit_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer srv.Close()

	rep := NewReporter(srv.URL, 2*time.Second)
	if err := rep.Submit(context.Background(), Report{SessionID: "s"}); err == nil {
		t.Error("Submit succeeded on 500, want error")
	}
}

func TestSubmit_NoURLConfigured(t *testing.T) {
	rep := NewReporter("", time.Second)
	if err := rep.Submit(context.Background(), Report{SessionID: "s"}); err == nil {
		t.Error("Submit without URL should error")
	}
}

func TestSubmit_TimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	rep := NewReporter(srv.URL, 50*time.Millisecond)
	start := time.Now()
	err := rep.Submit(context.Background(), Report{SessionID: "s"})
	if err == nil {
		t.Error("Submit should time out")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Submit took %v, timeout not enforced", elapsed)
	}
}
