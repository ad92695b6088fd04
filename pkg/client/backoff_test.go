package client

import (
	"testing"
	"time"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	b := &ExponentialBackoff{
		Base:   100 * time.Millisecond,
		Max:    time.Second,
		Factor: 2.0,
	}
	if got := b.Next(0); got != 100*time.Millisecond {
		t.Fatalf("attempt 0: %v", got)
	}
	if got := b.Next(2); got != 400*time.Millisecond {
		t.Fatalf("attempt 2: %v", got)
	}
	if got := b.Next(10); got != time.Second {
		t.Fatalf("attempt 10 should cap at max: %v", got)
	}
}

func TestBackoffNegativeAttempt(t *testing.T) {
	b := DefaultBackoff()
	if got := b.Next(-1); got != b.Base {
		t.Fatalf("negative attempt: %v", got)
	}
}

func TestBackoffJitterStaysInRange(t *testing.T) {
	b := &ExponentialBackoff{
		Base:   100 * time.Millisecond,
		Max:    time.Second,
		Factor: 2.0,
		Jitter: 0.5,
	}
	for i := 0; i < 100; i++ {
		d := b.Next(1)
		if d < 100*time.Millisecond || d > 300*time.Millisecond {
			t.Fatalf("jittered delay out of range: %v", d)
		}
	}
}
