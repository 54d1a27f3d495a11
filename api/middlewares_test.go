package main

import (
	"testing"
	"time"
)

func TestIPLimiter(t *testing.T) {
	l := newIPLimiter(1, 2)

	if !l.allow("10.0.0.1") || !l.allow("10.0.0.1") {
		t.Fatal("Expected the burst to be allowed")
	}
	if l.allow("10.0.0.1") {
		t.Error("Expected the third immediate request to be refused")
	}
	if !l.allow("10.0.0.2") {
		t.Error("Expected a separate bucket per address")
	}

	l.sweep(time.Now())
	if len(l.clients) != 2 {
		t.Errorf("sweep dropped active clients, %d left", len(l.clients))
	}
	l.sweep(time.Now().Add(l.idleAfter + time.Second))
	if len(l.clients) != 0 {
		t.Errorf("Expected idle clients to be dropped, %d left", len(l.clients))
	}
}
