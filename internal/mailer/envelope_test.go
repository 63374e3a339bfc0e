package mailer

import (
	"testing"
	"time"
)

func TestEnvelopeMinuteWindow(t *testing.T) {
	env := NewEnvelope(3, 100)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := env.Allow("s1", now); err != nil {
			t.Fatalf("send %d should be allowed: %v", i+1, err)
		}
	}

	err := env.Allow("s1", now)
	if err == nil {
		t.Fatal("4th send within a minute should be rejected")
	}
	if err.Window != "minute" {
		t.Errorf("Window = %s, want minute", err.Window)
	}
	if err.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want positive", err.RetryAfter)
	}

	// Window slides: a minute later the sender is clean again
	if err := env.Allow("s1", now.Add(time.Minute)); err != nil {
		t.Errorf("send after window should be allowed: %v", err)
	}
}

func TestEnvelopeHourWindow(t *testing.T) {
	env := NewEnvelope(100, 5)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Spread sends over several minutes so the minute window never trips
	for i := 0; i < 5; i++ {
		at := now.Add(time.Duration(i) * 2 * time.Minute)
		if err := env.Allow("s1", at); err != nil {
			t.Fatalf("send %d should be allowed: %v", i+1, err)
		}
	}

	err := env.Allow("s1", now.Add(20*time.Minute))
	if err == nil {
		t.Fatal("6th send within an hour should be rejected")
	}
	if err.Window != "hour" {
		t.Errorf("Window = %s, want hour", err.Window)
	}

	if err := env.Allow("s1", now.Add(time.Hour+time.Second)); err != nil {
		t.Errorf("send after hour window should be allowed: %v", err)
	}
}

func TestEnvelopePerSenderIsolation(t *testing.T) {
	env := NewEnvelope(1, 10)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := env.Allow("s1", now); err != nil {
		t.Fatalf("s1 first send should be allowed: %v", err)
	}
	if err := env.Allow("s1", now); err == nil {
		t.Error("s1 second send should be rejected")
	}
	if err := env.Allow("s2", now); err != nil {
		t.Errorf("s2 has its own window: %v", err)
	}
}

func TestEnvelopeDisabledLimits(t *testing.T) {
	env := NewEnvelope(0, 0)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 1000; i++ {
		if err := env.Allow("s1", now); err != nil {
			t.Fatalf("send %d should be allowed with limits disabled", i+1)
		}
	}
}

func TestEnvelopeLazyPruning(t *testing.T) {
	env := NewEnvelope(10, 10)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		if err := env.Allow("s1", now); err != nil {
			t.Fatalf("send %d should be allowed: %v", i+1, err)
		}
	}

	minute, hour := env.Counts("s1", now)
	if minute != 10 || hour != 10 {
		t.Errorf("Counts = (%d, %d), want (10, 10)", minute, hour)
	}

	minute, hour = env.Counts("s1", now.Add(2*time.Minute))
	if minute != 0 || hour != 10 {
		t.Errorf("Counts after 2m = (%d, %d), want (0, 10)", minute, hour)
	}

	minute, hour = env.Counts("s1", now.Add(2*time.Hour))
	if minute != 0 || hour != 0 {
		t.Errorf("Counts after 2h = (%d, %d), want (0, 0)", minute, hour)
	}
}
