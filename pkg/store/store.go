// Package store is the authoritative in-memory session table, mirrored
// asynchronously to Redis for crash recovery and idle auto-expiry. The
// mirror is never read on the request path: losing a mirror write degrades
// recovery, not correctness.
package store

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TrapLineAI/trapline/pkg/httputil"
	"github.com/TrapLineAI/trapline/pkg/intel"
	"github.com/TrapLineAI/trapline/pkg/keypool"
)

// State is a session's position in the engagement lifecycle. CLOSED has no
// constant: a closed session is removed from the table, so a reused
// identifier starts over as a new session.
type State string

const (
	StateMonitoring  State = "MONITORING"
	StateEngaging    State = "ENGAGING"
	StateTerminating State = "TERMINATING"
)

// Session is one ongoing engagement with a counterparty. All message
// handling for a session runs under its embedded mutex so a session never
// observes two concurrent classification/reply cycles.
type Session struct {
	sync.Mutex

	ID           string
	Key          string // sticky inference credential
	Intel        intel.Record
	MessageCount int
	State        State
	CreatedAt    time.Time

	// lastActive is unix nanoseconds, stored atomically because the janitor
	// samples it without taking the session mutex.
	lastActive atomic.Int64

	// closed marks a session that has been torn down (reported or evicted)
	// while some caller may still hold a pointer to it. Guarded by the
	// session mutex.
	closed bool
}

// LastActive returns the time of the session's most recent message.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// SetLastActive records message activity.
func (s *Session) SetLastActive(t time.Time) {
	s.lastActive.Store(t.UnixNano())
}

// MarkClosed flags the session as torn down. Caller must hold the session
// mutex.
func (s *Session) MarkClosed() {
	s.closed = true
}

// Closed reports whether the session has been torn down. Caller must hold
// the session mutex; a closed session must not be mutated further - callers
// should drop it and fetch a fresh one from the table.
func (s *Session) Closed() bool {
	return s.closed
}

const keyPrefix = "trapline:session:"

// Store owns the session table. Safe for concurrent use; per-session work
// is linearized by the Session mutex, cross-session work only contends on
// the table lock.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	pool *keypool.Pool
	rdb  *redis.Client // nil = memory-only (degraded)
	ttl  time.Duration
	sem  *httputil.Semaphore

	stopJanitor chan struct{}
	janitorOnce sync.Once
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets the idle auto-expiry window (default 30 minutes).
func WithTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// New creates a Store. rdb may be nil, in which case the mirror is disabled
// and sessions survive only in process memory.
func New(pool *keypool.Pool, rdb *redis.Client, opts ...Option) *Store {
	s := &Store{
		sessions:    make(map[string]*Session),
		pool:        pool,
		rdb:         rdb,
		ttl:         30 * time.Minute,
		sem:         httputil.NewSemaphore(256),
		stopJanitor: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if rdb == nil {
		log.Println("[STORE] Durable mirror disabled - sessions are memory-only")
	}
	go s.janitorLoop()
	return s
}

// GetOrCreate returns the session for id, creating and credential-binding it
// on first sight. The second return reports whether it was created. The
// returned session may have been closed by a concurrent teardown by the time
// the caller locks it; callers must check Closed() under the lock and fetch
// again. Creation issues a non-blocking mirror upsert; mirror failure is
// logged, never surfaced.
func (s *Store) GetOrCreate(id string) (*Session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return sess, false
	}

	s.mu.Lock()
	if sess, ok = s.sessions[id]; ok {
		s.mu.Unlock()
		return sess, false
	}
	now := time.Now()
	sess = &Session{
		ID:        id,
		Key:       s.pool.Acquire(id),
		State:     StateMonitoring,
		CreatedAt: now,
	}
	sess.SetLastActive(now)
	s.sessions[id] = sess
	s.mu.Unlock()

	s.mirrorUpsert(sess)
	return sess, true
}

// Touch refreshes the session's idle window: last-active in memory now, the
// mirror TTL in the background.
func (s *Store) Touch(id string) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return
	}
	sess.SetLastActive(time.Now())
	s.mirrorExpire(id)
}

// Remove deletes the session from the table and awaits the mirror delete
// (bounded by ctx): a reported session must leave no residual state behind.
// The delete shares the mirror semaphore so teardown queues behind, rather
// than races past, outstanding background writes. The caller releases the
// credential binding and marks the session closed as part of the same
// teardown.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	if s.rdb == nil {
		return nil
	}
	if err := s.sem.Acquire(ctx); err != nil {
		return err
	}
	defer s.sem.Release()
	return s.rdb.Del(ctx, keyPrefix+id).Err()
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops the janitor loop.
func (s *Store) Close() {
	s.janitorOnce.Do(func() {
		close(s.stopJanitor)
	})
}

// mirrorUpsert writes the session skeleton to Redis with the idle TTL.
// Runs in the background behind the semaphore; drops under pressure.
func (s *Store) mirrorUpsert(sess *Session) {
	if s.rdb == nil || !s.sem.TryAcquire() {
		return
	}
	go func() {
		defer s.sem.Release()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		k := keyPrefix + sess.ID
		err := s.rdb.HSet(ctx, k, map[string]any{
			"sessionId": sess.ID,
			"geminiKey": sess.Key,
			"createdAt": sess.CreatedAt.Unix(),
		}).Err()
		if err == nil {
			err = s.rdb.Expire(ctx, k, s.ttl).Err()
		}
		if err != nil {
			log.Printf("[STORE] Mirror upsert failed for %s: %v", sess.ID, err)
		}
	}()
}

// mirrorExpire pushes the mirror's auto-expiry window forward.
func (s *Store) mirrorExpire(id string) {
	if s.rdb == nil || !s.sem.TryAcquire() {
		return
	}
	go func() {
		defer s.sem.Release()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := s.rdb.Expire(ctx, keyPrefix+id, s.ttl).Err(); err != nil {
			log.Printf("[STORE] Mirror touch failed for %s: %v", id, err)
		}
	}()
}

// janitorLoop evicts sessions idle past the TTL from process memory,
// releasing their credentials. The Redis TTL reclaims the mirror keys on
// its own; this keeps the in-memory table and the pool from leaking when a
// counterparty simply stops writing.
func (s *Store) janitorLoop() {
	interval := s.ttl / 6
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictIdle()
		case <-s.stopJanitor:
			return
		}
	}
}

// evictIdle removes sessions idle past the TTL. Candidates are taken from
// an unlocked sample, then re-checked under each session's own mutex: a
// session mid-message holds that mutex, so the janitor waits for the
// message to finish and the fresh last-active time then spares it.
func (s *Store) evictIdle() {
	now := time.Now()

	s.mu.RLock()
	var candidates []*Session
	for _, sess := range s.sessions {
		if now.Sub(sess.LastActive()) > s.ttl {
			candidates = append(candidates, sess)
		}
	}
	s.mu.RUnlock()

	for _, sess := range candidates {
		sess.Lock()
		if sess.Closed() || time.Since(sess.LastActive()) <= s.ttl {
			sess.Unlock()
			continue
		}
		s.pool.Release(sess.ID)
		s.mu.Lock()
		if s.sessions[sess.ID] == sess {
			delete(s.sessions, sess.ID)
		}
		s.mu.Unlock()
		sess.MarkClosed()
		sess.Unlock()
		log.Printf("[STORE] Evicted idle session %s", sess.ID)
	}
}
