package ratelimit

import (
	"testing"
	"time"
)

func TestAllow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := New(Config{Enabled: true, RequestsPerSecond: 1, Burst: 2})
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("Expected burst of 2 to be allowed")
	}
	if l.Allow("a") {
		t.Error("Expected third request to be limited")
	}
	if !l.Allow("b") {
		t.Error("Clients must not share buckets")
	}

	now = now.Add(time.Second)
	if !l.Allow("a") {
		t.Error("Expected refill after one second")
	}
}

func TestDisabled(t *testing.T) {
	l := New(Config{Enabled: false, RequestsPerSecond: 1, Burst: 1})
	for i := 0; i < 10; i++ {
		if !l.Allow("a") {
			t.Fatal("Disabled limiter must allow every request")
		}
	}
}

func TestUpdate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := New(Config{Enabled: true, RequestsPerSecond: 1, Burst: 1})
	l.now = func() time.Time { return now }

	l.Allow("a")
	if l.Allow("a") {
		t.Fatal("Expected limit before update")
	}

	l.Update(Config{Enabled: false})
	if !l.Allow("a") {
		t.Error("Expected update to disable limiting")
	}
	if l.Config().Enabled {
		t.Error("Config not updated")
	}
}

func TestCleanup(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := New(Config{Enabled: true, RequestsPerSecond: 1, Burst: 1})
	l.now = func() time.Time { return now }

	l.Allow("old")
	now = now.Add(2 * time.Hour)
	l.Allow("new")

	if removed := l.Cleanup(); removed != 1 {
		t.Errorf("Expected 1 bucket removed, got %d", removed)
	}
	if _, ok := l.clients["new"]; !ok {
		t.Error("Active bucket removed")
	}
}
