package keypool

import (
	"sync"
	"testing"
	"time"
)

func TestAcquire_Sticky(t *testing.T) {
	p := New([]string{"k1", "k2", "k3"})

	first := p.Acquire("sess-a")
	if first == "" {
		t.Fatal("Acquire returned empty key from non-empty pool")
	}
	for i := 0; i < 20; i++ {
		if got := p.Acquire("sess-a"); got != first {
			t.Fatalf("Acquire not sticky: got %q, want %q", got, first)
		}
	}
}

func TestAcquire_EmptyPool(t *testing.T) {
	p := New(nil)
	if got := p.Acquire("sess-a"); got != "" {
		t.Errorf("Acquire on empty pool = %q, want empty", got)
	}
	if got := p.Candidates("sess-a", 3); got != nil {
		t.Errorf("Candidates on empty pool = %v, want nil", got)
	}
	// Must not panic
	p.Release("sess-a")
}

func TestRelease_Idempotent(t *testing.T) {
	p := New([]string{"k1"})
	p.Acquire("sess-a")
	p.Release("sess-a")
	p.Release("sess-a") // second release is a no-op

	if n := p.ActiveBindings(); n != 0 {
		t.Errorf("ActiveBindings = %d, want 0", n)
	}
}

func TestCooldown_ExcludesKey(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	p := New([]string{"k1", "k2"}, WithClock(clock), WithCooldown(time.Minute))

	p.MarkCooldown("k1", "quota exhausted")

	// New sessions should only get k2 while k1 cools.
	for i := 0; i < 10; i++ {
		if got := p.Acquire(string(rune('a' + i))); got != "k2" {
			t.Fatalf("Acquire during cooldown = %q, want k2", got)
		}
	}
	if n := p.CoolingCount(); n != 1 {
		t.Errorf("CoolingCount = %d, want 1", n)
	}

	// After expiry k1 is assignable again.
	now = now.Add(2 * time.Minute)
	if n := p.CoolingCount(); n != 0 {
		t.Errorf("CoolingCount after expiry = %d, want 0", n)
	}
}

func TestCooldown_AllCoolingFallsBack(t *testing.T) {
	p := New([]string{"k1", "k2"}, WithCooldown(time.Hour))
	p.MarkCooldown("k1", "quota")
	p.MarkCooldown("k2", "quota")

	// Best-effort: still returns a value rather than failing.
	if got := p.Acquire("sess-a"); got == "" {
		t.Error("Acquire returned empty while all keys cooling, want fallback to full set")
	}
	if got := p.Candidates("sess-b", 2); len(got) != 2 {
		t.Errorf("Candidates while all cooling = %v, want both keys", got)
	}
}

func TestCandidates_BoundFirstNoDuplicates(t *testing.T) {
	p := New([]string{"k1", "k2", "k3"})
	bound := p.Acquire("sess-a")

	cands := p.Candidates("sess-a", 10)
	if len(cands) != 3 {
		t.Fatalf("Candidates returned %d keys, want 3", len(cands))
	}
	if cands[0] != bound {
		t.Errorf("Candidates[0] = %q, want bound key %q", cands[0], bound)
	}
	seen := map[string]bool{}
	for _, k := range cands {
		if seen[k] {
			t.Errorf("duplicate candidate %q", k)
		}
		seen[k] = true
	}
}

func TestCandidates_Limit(t *testing.T) {
	p := New([]string{"k1", "k2", "k3", "k4"})
	if got := p.Candidates("unbound", 2); len(got) != 2 {
		t.Errorf("Candidates with limit 2 returned %d keys", len(got))
	}
	if got := p.Candidates("unbound", 0); got != nil {
		t.Errorf("Candidates with limit 0 = %v, want nil", got)
	}
}

func TestPool_Concurrent(t *testing.T) {
	p := New([]string{"k1", "k2", "k3"})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n%26))
			key := p.Acquire(id)
			if key == "" {
				t.Error("concurrent Acquire returned empty key")
			}
			p.Candidates(id, 3)
			if n%5 == 0 {
				p.MarkCooldown(key, "test")
			}
			p.Release(id)
		}(i)
	}
	wg.Wait()
}
