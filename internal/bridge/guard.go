package bridge

import (
	"sync"
	"time"
)

// DefaultDedupWindow is how long completed message keys are remembered.
// Slack redelivers events it considers unacknowledged; anything inside the
// window is treated as a replay and dropped.
const DefaultDedupWindow = 60 * time.Second

// admissionGuard tracks which message keys are currently being processed
// and which completed recently. It is the router's only defense against
// concurrent reprocessing and platform redelivery, so every operation is
// performed under one lock.
type admissionGuard struct {
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
	done     map[string]time.Time // key -> completion time
}

func newAdmissionGuard(window time.Duration) *admissionGuard {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &admissionGuard{
		window:   window,
		now:      time.Now,
		inflight: make(map[string]struct{}),
		done:     make(map[string]time.Time),
	}
}

// Suppressed reports whether the key is in flight or completed within the
// dedup window. Expired completion records are swept lazily here.
func (g *admissionGuard) Suppressed(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.sweepLocked(now)

	if _, ok := g.inflight[key]; ok {
		return true
	}
	if completed, ok := g.done[key]; ok && now.Sub(completed) < g.window {
		return true
	}
	return false
}

// Admit atomically re-checks suppression and claims the key for processing.
// Returns false if another task got there first.
func (g *admissionGuard) Admit(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.inflight[key]; ok {
		return false
	}
	if completed, ok := g.done[key]; ok && g.now().Sub(completed) < g.window {
		return false
	}
	g.inflight[key] = struct{}{}
	return true
}

// Finish releases the in-flight claim and stamps the key as completed.
func (g *admissionGuard) Finish(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inflight, key)
	g.done[key] = g.now()
}

// sweepLocked drops completion records older than the window.
func (g *admissionGuard) sweepLocked(now time.Time) {
	for key, completed := range g.done {
		if now.Sub(completed) >= g.window {
			delete(g.done, key)
		}
	}
}

// threadSet is a concurrency-safe set of thread keys the bot has replied
// in. Membership makes un-mentioned thread replies eligible for handling.
// In-memory only: after a restart old threads need a fresh @mention.
type threadSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newThreadSet() *threadSet {
	return &threadSet{keys: make(map[string]struct{})}
}

func (s *threadSet) Mark(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = struct{}{}
}

func (s *threadSet) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}
