package main

import (
	"sync"
	"time"
)

type loginFailureEntry struct {
	count     int
	expiresAt time.Time
}

// loginThrottle counts failed logins per client address. Once maxFailures
// is reached the address is refused until its window expires.
type loginThrottle struct {
	mu          sync.RWMutex
	entries     map[string]loginFailureEntry
	maxFailures int
	window      time.Duration
	now         func() time.Time
}

func newLoginThrottle(maxFailures int, window time.Duration) *loginThrottle {
	t := &loginThrottle{
		entries:     make(map[string]loginFailureEntry),
		maxFailures: maxFailures,
		window:      window,
		now:         time.Now,
	}
	go func(t *loginThrottle) {
		ticker := time.NewTicker(time.Minute)
		for {
			<-ticker.C
			t.sweep()
		}
	}(t)
	return t
}

func (t *loginThrottle) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for k, v := range t.entries {
		if now.After(v.expiresAt) {
			delete(t.entries, k)
		}
	}
}

func (t *loginThrottle) Allow(addr string) bool {
	if t == nil || t.maxFailures <= 0 {
		return true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[addr]
	if !ok || t.now().After(e.expiresAt) {
		return true
	}
	return e.count < t.maxFailures
}

func (t *loginThrottle) RecordFailure(addr string) {
	if t == nil || t.maxFailures <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	e, ok := t.entries[addr]
	if !ok || now.After(e.expiresAt) {
		e = loginFailureEntry{expiresAt: now.Add(t.window)}
	}
	e.count++
	t.entries[addr] = e
}

func (t *loginThrottle) Reset(addr string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, addr)
}
