package ratelimit

import (
	"fmt"
	"testing"
	"time"
)

func TestLimiter_AllowsUpToBurst(t *testing.T) {
	l := New(3, time.Minute)

	for i := 0; i < 3; i++ {
		d := l.Check("player-1")
		if !d.Allowed {
			t.Fatalf("request %d: expected allowed", i)
		}
	}

	d := l.Check("player-1")
	if d.Allowed {
		t.Fatal("expected 4th request to be rejected")
	}
	if d.RetryAfter <= 0 {
		t.Errorf("expected positive RetryAfter, got %v", d.RetryAfter)
	}
	if d.RetryAfter > time.Minute {
		t.Errorf("RetryAfter %v exceeds the window", d.RetryAfter)
	}
}

func TestLimiter_PlayersAreIndependent(t *testing.T) {
	l := New(1, time.Minute)

	if d := l.Check("player-1"); !d.Allowed {
		t.Fatal("expected player-1 allowed")
	}
	if d := l.Check("player-1"); d.Allowed {
		t.Fatal("expected player-1 rejected")
	}

	// Another player is unaffected.
	if d := l.Check("player-2"); !d.Allowed {
		t.Fatal("expected player-2 allowed")
	}
}

func TestLimiter_RejectionConsumesNothing(t *testing.T) {
	l := New(2, time.Hour)

	l.Check("player-1")
	l.Check("player-1")

	// Repeated rejections keep reporting roughly the same retry hint
	// instead of pushing it further out.
	first := l.Check("player-1")
	second := l.Check("player-1")

	if first.Allowed || second.Allowed {
		t.Fatal("expected both checks rejected")
	}
	if second.RetryAfter > first.RetryAfter+time.Second {
		t.Errorf("retry hint grew from %v to %v", first.RetryAfter, second.RetryAfter)
	}
}

func TestLimiter_Purge(t *testing.T) {
	l := New(1, time.Minute)

	now := time.Unix(1700000000, 0)
	l.clockNow = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		l.Check(fmt.Sprintf("player-%d", i))
	}
	if l.Tracked() != 5 {
		t.Fatalf("expected 5 tracked players, got %d", l.Tracked())
	}

	// Idle players past ten windows are dropped; a fresh one stays.
	now = now.Add(11 * time.Minute)
	l.Check("player-fresh")

	removed := l.Purge()
	if removed != 5 {
		t.Errorf("expected 5 removed, got %d", removed)
	}
	if l.Tracked() != 1 {
		t.Errorf("expected 1 tracked player, got %d", l.Tracked())
	}
}
