// Package keypool multiplexes a finite set of rate-limited inference
// credentials across many concurrent engagement sessions.
//
// Each session gets a sticky binding to one credential for its whole
// lifetime (load balancing by random assignment), and credentials observed
// to be quota-exhausted are placed in a cool-down window during which
// acquire/candidates prefer other keys.
package keypool

import (
	"log"
	"math/rand"
	"sync"
	"time"
)

// DefaultCooldown is the exclusion window applied to a quota-exhausted key.
const DefaultCooldown = 30 * time.Minute

// Pool assigns credentials to sessions and tracks per-key cool-downs.
// Safe for concurrent use. A Pool constructed with zero keys is valid but
// degraded: every Acquire returns "" and callers must tolerate that.
type Pool struct {
	mu       sync.Mutex
	keys     []string
	bindings map[string]string    // sessionID -> key
	cooling  map[string]time.Time // key -> cool-down expiry
	cooldown time.Duration

	now  func() time.Time // test hook
	rand *rand.Rand
}

// Option configures a Pool.
type Option func(*Pool)

// WithCooldown overrides the cool-down window.
func WithCooldown(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.cooldown = d
		}
	}
}

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// New creates a Pool over the given credentials.
// An empty credential set logs a warning and produces a degraded pool
// instead of failing: the engine must still answer inbound traffic.
func New(keys []string, opts ...Option) *Pool {
	p := &Pool{
		keys:     append([]string(nil), keys...),
		bindings: make(map[string]string),
		cooling:  make(map[string]time.Time),
		cooldown: DefaultCooldown,
		now:      time.Now,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(p)
	}
	if len(p.keys) == 0 {
		log.Println("[POOL] Warning: no credentials loaded - pool running degraded")
	} else {
		log.Printf("[INIT] Loaded %d inference credentials", len(p.keys))
	}
	return p
}

// Acquire returns the credential bound to sessionID, binding a fresh one on
// first use. Selection is uniform over keys not currently cooling; when every
// key is cooling the full set is used anyway, because a courtesy reply must
// always be possible. Returns "" only when the pool is empty.
func (p *Pool) Acquire(sessionID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if key, ok := p.bindings[sessionID]; ok {
		return key
	}
	if len(p.keys) == 0 {
		return ""
	}

	pool := p.availableLocked()
	if len(pool) == 0 {
		pool = p.keys
	}
	key := pool[p.rand.Intn(len(pool))]
	p.bindings[sessionID] = key
	return key
}

// Release removes the session's binding. Releasing an unbound session is a
// no-op, not an error.
func (p *Pool) Release(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.bindings, sessionID)
}

// Candidates returns up to limit credentials in retry order: the session's
// bound key first, then the remaining non-cooling keys. If cool-down
// filtering would empty the list the unfiltered pool is used instead. Each
// key appears at most once.
func (p *Pool) Candidates(sessionID string, limit int) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if limit <= 0 || len(p.keys) == 0 {
		return nil
	}

	seen := make(map[string]bool, limit)
	out := make([]string, 0, limit)

	if bound, ok := p.bindings[sessionID]; ok && bound != "" {
		out = append(out, bound)
		seen[bound] = true
	}

	rest := p.availableLocked()
	if len(rest) == 0 {
		rest = p.keys
	}
	for _, k := range rest {
		if len(out) >= limit {
			break
		}
		if !seen[k] {
			out = append(out, k)
			seen[k] = true
		}
	}
	return out
}

// MarkCooldown excludes a credential from assignment until the cool-down
// window passes. Called after a detected quota-exhaustion error.
func (p *Pool) MarkCooldown(key, reason string) {
	if key == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	until := p.now().Add(p.cooldown)
	p.cooling[key] = until
	log.Printf("[POOL] Credential cooling until %s (%s)", until.Format(time.RFC3339), reason)
}

// availableLocked returns keys not currently in cool-down, pruning expired
// entries as it goes. Caller must hold p.mu.
func (p *Pool) availableLocked() []string {
	now := p.now()
	out := make([]string, 0, len(p.keys))
	for _, k := range p.keys {
		if until, ok := p.cooling[k]; ok {
			if now.Before(until) {
				continue
			}
			delete(p.cooling, k)
		}
		out = append(out, k)
	}
	return out
}

// Size returns the number of loaded credentials.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// ActiveBindings returns the number of sessions currently holding a key.
func (p *Pool) ActiveBindings() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.bindings)
}

// CoolingCount returns the number of credentials currently in cool-down.
func (p *Pool) CoolingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	now := p.now()
	for _, until := range p.cooling {
		if now.Before(until) {
			n++
		}
	}
	return n
}
