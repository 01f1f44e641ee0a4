package timeutil

import (
	"sync"
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	before := time.Now()
	got := RealClock{}.Now()
	after := time.Now()

	if got.Before(before) || got.After(after) {
		t.Errorf("RealClock.Now() = %v, want between %v and %v", got, before, after)
	}
}

func TestRealClock_Sleep(t *testing.T) {
	start := time.Now()
	RealClock{}.Sleep(5 * time.Millisecond)
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Errorf("Sleep returned after %v, want at least 5ms", elapsed)
	}
}

func TestMockClock(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}

	c.Advance(time.Minute)
	if got := c.Now(); !got.Equal(start.Add(time.Minute)) {
		t.Errorf("after Advance, Now() = %v", got)
	}

	c.Sleep(10 * time.Millisecond)
	c.Sleep(20 * time.Millisecond)
	if got, want := c.Now(), start.Add(time.Minute+30*time.Millisecond); !got.Equal(want) {
		t.Errorf("after Sleep, Now() = %v, want %v", got, want)
	}

	sleeps := c.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 10*time.Millisecond || sleeps[1] != 20*time.Millisecond {
		t.Errorf("Sleeps() = %v, want [10ms 20ms]", sleeps)
	}

	// The returned slice is a copy.
	sleeps[0] = 0
	if c.Sleeps()[0] != 10*time.Millisecond {
		t.Error("Sleeps() must return a copy")
	}

	c.Set(start)
	if got := c.Now(); !got.Equal(start) {
		t.Errorf("after Set, Now() = %v, want %v", got, start)
	}
}

func TestMockClock_Concurrent(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Sleep(time.Millisecond)
			_ = c.Now()
		}()
	}
	wg.Wait()

	if got := len(c.Sleeps()); got != 10 {
		t.Errorf("recorded %d sleeps, want 10", got)
	}
	if got := c.Now(); !got.Equal(time.Unix(0, 0).Add(10 * time.Millisecond)) {
		t.Errorf("Now() = %v", got)
	}
}
