package ratelimit

import (
	"testing"
	"time"
)

func TestLimiter_BurstThenDeny(t *testing.T) {
	l := New(1, 3) // 1/s refill, burst of 3

	addr := "203.0.113.7"
	for i := 0; i < 3; i++ {
		if !l.Allow(addr) {
			t.Errorf("expected connection %d within burst to be allowed", i)
		}
	}
	if l.Allow(addr) {
		t.Error("expected connection beyond burst to be denied")
	}
}

func TestLimiter_AddressesIndependent(t *testing.T) {
	l := New(1, 1)

	if !l.Allow("203.0.113.7") {
		t.Error("expected first address to be allowed")
	}
	if l.Allow("203.0.113.7") {
		t.Error("expected first address to be exhausted")
	}
	if !l.Allow("203.0.113.8") {
		t.Error("expected second address to have its own bucket")
	}
}

func TestLimiter_Disabled(t *testing.T) {
	l := New(0, 1)
	for i := 0; i < 100; i++ {
		if !l.Allow("203.0.113.7") {
			t.Fatalf("expected connection %d to be allowed with limiting disabled", i)
		}
	}
}

func TestLimiter_Cleanup(t *testing.T) {
	l := New(1, 1)
	l.Allow("203.0.113.7")
	l.Allow("203.0.113.8")

	if removed := l.Cleanup(time.Hour); removed != 0 {
		t.Errorf("expected no fresh buckets removed, got %d", removed)
	}
	if removed := l.Cleanup(0); removed != 2 {
		t.Errorf("expected 2 idle buckets removed, got %d", removed)
	}
	// A cleaned address starts over with a full burst.
	if !l.Allow("203.0.113.7") {
		t.Error("expected fresh bucket after cleanup")
	}
}
