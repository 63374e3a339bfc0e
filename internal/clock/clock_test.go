package clock

import (
	"testing"
	"time"
)

func TestFakeAdvanceFiresInOrder(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	fc := NewFake(start)

	var fired []string
	fc.Schedule(start.Add(2*time.Minute), func() { fired = append(fired, "b") })
	fc.Schedule(start.Add(1*time.Minute), func() { fired = append(fired, "a") })
	fc.Schedule(start.Add(3*time.Minute), func() { fired = append(fired, "c") })

	fc.Advance(2 * time.Minute)

	if len(fired) != 2 || fired[0] != "a" || fired[1] != "b" {
		t.Fatalf("expected [a b], got %v", fired)
	}

	fc.Advance(time.Minute)
	if len(fired) != 3 || fired[2] != "c" {
		t.Fatalf("expected [a b c], got %v", fired)
	}
}

func TestFakeEqualDeadlinesFireInScheduleOrder(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	fc := NewFake(start)
	at := start.Add(time.Minute)

	var fired []int
	for i := 0; i < 5; i++ {
		i := i
		fc.Schedule(at, func() { fired = append(fired, i) })
	}

	fc.Advance(time.Minute)

	for i, got := range fired {
		if got != i {
			t.Fatalf("expected scheduling order, got %v", fired)
		}
	}
}

func TestFakeStopPreventsFire(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	fc := NewFake(start)

	fired := false
	h := fc.Schedule(start.Add(time.Minute), func() { fired = true })

	if !h.Stop() {
		t.Fatal("Stop should report true before firing")
	}
	fc.Advance(time.Hour)

	if fired {
		t.Error("stopped timer must not fire")
	}
	if h.Stop() {
		t.Error("second Stop should report false")
	}
}

func TestFakeOverdueFiresOnZeroAdvance(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fc := NewFake(start)

	fired := false
	fc.Schedule(start.Add(-time.Hour), func() { fired = true })

	fc.Advance(0)
	if !fired {
		t.Error("overdue callback should fire on Advance(0)")
	}
}

func TestFakeReschedulingDuringAdvance(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	fc := NewFake(start)

	count := 0
	var rearm func()
	rearm = func() {
		count++
		if count < 3 {
			fc.Schedule(fc.Now().Add(time.Minute), rearm)
		}
	}
	fc.Schedule(start.Add(time.Minute), rearm)

	fc.Advance(10 * time.Minute)

	if count != 3 {
		t.Errorf("expected 3 firings, got %d", count)
	}
	if got := fc.Now(); !got.Equal(start.Add(10 * time.Minute)) {
		t.Errorf("clock should land on target, got %v", got)
	}
}

func TestRealScheduleFires(t *testing.T) {
	c := NewReal()
	ch := make(chan struct{})
	c.Schedule(c.Now().Add(10*time.Millisecond), func() { close(ch) })

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("real timer did not fire")
	}
}
