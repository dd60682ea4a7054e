package bridge

import (
	"sync"
	"testing"
	"time"
)

func TestAdmissionGuard_Lifecycle(t *testing.T) {
	g := newAdmissionGuard(time.Minute)

	if g.Suppressed("k1") {
		t.Fatal("fresh key should not be suppressed")
	}
	if !g.Admit("k1") {
		t.Fatal("first admit should succeed")
	}
	if !g.Suppressed("k1") {
		t.Error("in-flight key should be suppressed")
	}
	if g.Admit("k1") {
		t.Error("second admit of in-flight key should fail")
	}

	g.Finish("k1")
	if !g.Suppressed("k1") {
		t.Error("recently finished key should stay suppressed")
	}
	if g.Admit("k1") {
		t.Error("admit inside the dedup window should fail")
	}
}

func TestAdmissionGuard_WindowExpiry(t *testing.T) {
	g := newAdmissionGuard(time.Minute)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return base }

	g.Admit("k1")
	g.Finish("k1")

	g.now = func() time.Time { return base.Add(59 * time.Second) }
	if !g.Suppressed("k1") {
		t.Error("key inside window should be suppressed")
	}

	g.now = func() time.Time { return base.Add(61 * time.Second) }
	if g.Suppressed("k1") {
		t.Error("key past window should be admitted again")
	}
	if !g.Admit("k1") {
		t.Error("re-admit past window should succeed")
	}
}

func TestAdmissionGuard_SweepDropsExpired(t *testing.T) {
	g := newAdmissionGuard(time.Minute)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return base }

	for _, k := range []string{"a", "b", "c"} {
		g.Admit(k)
		g.Finish(k)
	}

	g.now = func() time.Time { return base.Add(2 * time.Minute) }
	g.Suppressed("anything") // triggers the lazy sweep

	g.mu.Lock()
	remaining := len(g.done)
	g.mu.Unlock()
	if remaining != 0 {
		t.Errorf("done map holds %d expired entries", remaining)
	}
}

func TestAdmissionGuard_ConcurrentAdmitSingleWinner(t *testing.T) {
	g := newAdmissionGuard(time.Minute)

	const workers = 32
	var wins int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if g.Admit("contested") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("winners = %d, want exactly 1", wins)
	}
}

func TestThreadSet(t *testing.T) {
	s := newThreadSet()
	if s.Has("C1:111") {
		t.Error("empty set should not contain keys")
	}
	s.Mark("C1:111")
	if !s.Has("C1:111") {
		t.Error("marked key should be present")
	}
	if s.Has("C1:222") {
		t.Error("unmarked key should be absent")
	}
}
