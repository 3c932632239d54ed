package core

import "testing"

func TestLoginRateLimiterBurst(t *testing.T) {
	rl := NewLoginRateLimiter(60, 3)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("attempt %d within burst was rejected", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Fatalf("attempt over burst was allowed")
	}
}

func TestLoginRateLimiterPerClient(t *testing.T) {
	rl := NewLoginRateLimiter(60, 1)
	defer rl.Stop()

	if !rl.Allow("10.0.0.1") {
		t.Fatalf("first client rejected")
	}
	if rl.Allow("10.0.0.1") {
		t.Fatalf("first client over burst allowed")
	}
	// A different client has its own bucket.
	if !rl.Allow("10.0.0.2") {
		t.Fatalf("second client rejected")
	}
}

func TestLoginRateLimiterDefaults(t *testing.T) {
	rl := NewLoginRateLimiter(0, 0)
	defer rl.Stop()
	if !rl.Allow("10.0.0.1") {
		t.Fatalf("limiter with defaults rejected first attempt")
	}
}
