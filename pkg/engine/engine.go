// Package engine is the session orchestrator: it turns each inbound message
// into intelligence updates, a risk classification, an optional decoy reply,
// and - once the engagement is complete - a final report and teardown.
package engine

import (
	"context"
	"log"
	"time"

	"github.com/TrapLineAI/trapline/pkg/config"
	"github.com/TrapLineAI/trapline/pkg/inference"
	"github.com/TrapLineAI/trapline/pkg/intel"
	"github.com/TrapLineAI/trapline/pkg/keypool"
	"github.com/TrapLineAI/trapline/pkg/store"
)

// DefaultKeyCandidates bounds how many credentials one request may burn
// through before degrading. Each candidate multiplies worst-case latency by
// the model fallback chain, so this stays small.
const DefaultKeyCandidates = 3

// Response is the boundary result for one processed message. A zero
// Response (no reply) is the deliberate no-content answer for LOW-risk
// traffic.
type Response struct {
	Status string `json:"status,omitempty"`
	Reply  string `json:"reply,omitempty"`
}

// RiskClassifier produces a coarse risk category using one credential.
// *inference.Classifier is the production implementation.
type RiskClassifier interface {
	Classify(ctx context.Context, key, text string) (inference.RiskLevel, error)
}

// ReplyAgent generates a decoy reply using one credential.
// *inference.Agent is the production implementation.
type ReplyAgent interface {
	Reply(ctx context.Context, key, userMessage string, history []inference.Turn) (string, error)
}

// ReportSink receives the final dossier. *Reporter is the production
// implementation.
type ReportSink interface {
	Submit(ctx context.Context, report Report) error
}

// Engine composes the pool, store, adapters and reporter into the
// per-request protocol. Safe for concurrent use across sessions; work for
// one session is linearized on the session lock.
type Engine struct {
	policy        config.Policy
	keyCandidates int

	pool       *keypool.Pool
	store      *store.Store
	extractor  *intel.Extractor
	classifier RiskClassifier
	agent      ReplyAgent
	reporter   ReportSink
}

// New wires up an Engine.
func New(policy config.Policy, pool *keypool.Pool, st *store.Store,
	extractor *intel.Extractor, classifier RiskClassifier,
	agent ReplyAgent, reporter ReportSink) *Engine {
	return &Engine{
		policy:        policy,
		keyCandidates: DefaultKeyCandidates,
		pool:          pool,
		store:         st,
		extractor:     extractor,
		classifier:    classifier,
		agent:         agent,
		reporter:      reporter,
	}
}

// ProcessRequest handles one inbound message. It never fails: every internal
// error degrades to the fixed stalling reply so the caller always has
// something to send back inside its deadline.
func (e *Engine) ProcessRequest(ctx context.Context, sessionID, text string, history []inference.Turn) Response {
	if sessionID == "" {
		// Untrusted callers sometimes omit the identifier; there is no
		// session to advance, but the counterparty still gets stalled.
		log.Println("[ENGINE] Dropping message without session identifier")
		return Response{Status: "success", Reply: e.policy.StallReply}
	}

	// A concurrent teardown can close the session between the table lookup
	// and the lock: re-fetch until the locked session is still live, so a
	// message never advances (or re-reports) a session that was already
	// destroyed.
	var (
		sess    *store.Session
		created bool
	)
	for {
		sess, created = e.store.GetOrCreate(sessionID)
		sess.Lock()
		if !sess.Closed() {
			break
		}
		sess.Unlock()
	}
	defer sess.Unlock()
	if created {
		log.Printf("[ENGINE] New session %s (credential bound: %t)", sessionID, sess.Key != "")
	}

	// Intelligence only grows; the count only climbs. Both advance on every
	// message, including empty and LOW-risk ones, so the termination
	// deadline stays meaningful.
	scanned := e.extractor.Scan(text)
	sess.Intel = intel.Merge(sess.Intel, scanned)
	sess.MessageCount++
	if !created {
		e.store.Touch(sessionID)
	}

	risk := e.classify(ctx, sessionID, text, scanned)

	var resp Response
	if risk == inference.RiskLow {
		// Conserve credential calls: no decoy reply for harmless chatter.
		resp = Response{}
	} else {
		if sess.State == store.StateMonitoring {
			log.Printf("[ENGINE] Session %s escalating to active engagement (risk %s)", sessionID, risk)
		}
		sess.State = store.StateEngaging
		resp = Response{Status: "success", Reply: e.reply(ctx, sessionID, text, history)}
	}

	if e.shouldTerminate(sess, risk) {
		e.terminate(sess, risk)
	}

	return resp
}

// classify walks the credential candidates, trying the full model chain on
// each. Quota-exhausted keys are put in cool-down as they are discovered.
// When everything fails the keyword heuristic supplies a bounded answer.
func (e *Engine) classify(ctx context.Context, sessionID, text string, scanned intel.Record) inference.RiskLevel {
	for _, key := range e.pool.Candidates(sessionID, e.keyCandidates) {
		risk, err := e.classifier.Classify(ctx, key, text)
		if err == nil {
			return risk
		}
		if inference.IsQuota(err) {
			e.pool.MarkCooldown(key, "classifier quota exhausted")
		}
		log.Printf("[ENGINE] Classification failed for session %s: %v", sessionID, err)
		if ctx.Err() != nil {
			break
		}
	}
	return inference.HeuristicRisk(scanned)
}

// reply walks the same credential ladder for the decoy agent. The return is
// never empty: total failure yields the fixed stalling line.
func (e *Engine) reply(ctx context.Context, sessionID, text string, history []inference.Turn) string {
	for _, key := range e.pool.Candidates(sessionID, e.keyCandidates) {
		out, err := e.agent.Reply(ctx, key, text, history)
		if err == nil {
			return out
		}
		if inference.IsQuota(err) {
			e.pool.MarkCooldown(key, "agent quota exhausted")
		}
		log.Printf("[ENGINE] Reply generation failed for session %s: %v", sessionID, err)
		if ctx.Err() != nil {
			break
		}
	}
	return e.policy.StallReply
}

// shouldTerminate applies the termination policy: the message-count deadline
// always ends the engagement; risk alone ends it only when the policy's
// artifact conjunction is satisfied. Caller holds the session lock.
func (e *Engine) shouldTerminate(sess *store.Session, risk inference.RiskLevel) bool {
	if sess.MessageCount >= e.policy.MaxMessages {
		return true
	}
	if risk != inference.RiskHigh {
		return false
	}
	if e.policy.ArtifactRequired {
		return sess.Intel.HasArtifacts()
	}
	return true
}

// scamDetected mirrors shouldTerminate's risk arm: a count-deadline
// termination without a confirmed scam reports scamDetected=false.
func (e *Engine) scamDetected(sess *store.Session, risk inference.RiskLevel) bool {
	if risk != inference.RiskHigh {
		return false
	}
	if e.policy.ArtifactRequired {
		return sess.Intel.HasArtifacts()
	}
	return true
}

// terminate fires the final report and, only on success, tears the session
// down. A failed submission leaves the session in ENGAGING so a later
// message retries it; the durable store's auto-expiry reclaims it if the
// counterparty never writes again. Caller holds the session lock.
func (e *Engine) terminate(sess *store.Session, risk inference.RiskLevel) {
	sess.State = store.StateTerminating
	log.Printf("[ENGINE] Session %s complete after %d messages, submitting report", sess.ID, sess.MessageCount)

	report := Report{
		SessionID:              sess.ID,
		ScamDetected:           e.scamDetected(sess, risk),
		TotalMessagesExchanged: sess.MessageCount,
		ExtractedIntelligence:  sess.Intel,
		AgentNotes:             e.policy.AgentNotes,
	}

	// Teardown runs on its own clock: the request deadline may be nearly
	// spent, but the cleanup guarantee still wants a bounded wait.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.reporter.Submit(ctx, report); err != nil {
		log.Printf("[ENGINE] Report failed for session %s, keeping session for retry: %v", sess.ID, err)
		sess.State = store.StateEngaging
		return
	}

	// Release before Remove: once the table entry is gone a new session
	// under the same identifier may bind a credential, and this teardown
	// must never strip that fresh binding.
	e.pool.Release(sess.ID)
	if err := e.store.Remove(ctx, sess.ID); err != nil {
		log.Printf("[ENGINE] Mirror delete failed for session %s: %v", sess.ID, err)
	}
	sess.MarkClosed()
	log.Printf("[ENGINE] Session %s reported and destroyed", sess.ID)
}
