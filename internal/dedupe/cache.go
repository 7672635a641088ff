// ABOUTME: Process-local TTL guard for side effects that must not run twice concurrently
// ABOUTME: Workers claim a key before an outbound effect and release it if the effect fails

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// claim stores when a key was claimed and its position in age order.
type claim struct {
	at   time.Time
	elem *list.Element
}

// EffectGuard is a thread-safe, TTL-bounded, size-bounded set of claimed
// effect keys. It covers redeliveries that reach this process while an
// earlier attempt is still in flight; the durable claim lives on the session.
type EffectGuard struct {
	mu      sync.Mutex
	claims  map[string]*claim
	age     *list.List // keys, oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// NewEffectGuard creates a guard. Expired claims are swept in the background
// every sweepEvery until Close.
func NewEffectGuard(ttl time.Duration, maxSize int, sweepEvery time.Duration) *EffectGuard {
	g := &EffectGuard{
		claims:  make(map[string]*claim),
		age:     list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	if sweepEvery > 0 {
		go g.sweepLoop(sweepEvery)
	}
	return g
}

// Claim atomically takes key. It returns false when a live claim already
// exists, so exactly one of several concurrent callers proceeds.
func (g *EffectGuard) Claim(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	if c, ok := g.claims[key]; ok {
		if now.Sub(c.at) < g.ttl {
			return false
		}
		g.age.Remove(c.elem)
		delete(g.claims, key)
	}

	if len(g.claims) >= g.maxSize {
		g.evictOldest()
	}
	g.claims[key] = &claim{at: now, elem: g.age.PushBack(key)}
	return true
}

// Release drops a claim so a later retry can take it again.
func (g *EffectGuard) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.claims[key]; ok {
		g.age.Remove(c.elem)
		delete(g.claims, key)
	}
}

// Held reports whether key has a live claim.
func (g *EffectGuard) Held(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	c, ok := g.claims[key]
	return ok && time.Since(c.at) < g.ttl
}

// Len returns the number of tracked claims, expired ones included until swept.
func (g *EffectGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.claims)
}

// evictOldest must be called with mu held.
func (g *EffectGuard) evictOldest() {
	front := g.age.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	g.age.Remove(front)
	delete(g.claims, key)
}

func (g *EffectGuard) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.sweep()
		case <-g.done:
			return
		}
	}
}

// sweep removes expired claims. Claims are in age order, so it stops at
// the first live one.
func (g *EffectGuard) sweep() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	for e := g.age.Front(); e != nil; {
		key, _ := e.Value.(string)
		c := g.claims[key]
		if c != nil && now.Sub(c.at) < g.ttl {
			return
		}
		next := e.Next()
		g.age.Remove(e)
		delete(g.claims, key)
		e = next
	}
}

// Close stops the background sweep. It is safe to call multiple times.
func (g *EffectGuard) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.closed {
		close(g.done)
		g.closed = true
	}
}
