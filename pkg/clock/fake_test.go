package clock

import (
	"testing"
	"time"
)

func TestFakeAfterFuncFiresOnAdvance(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	fired := 0
	c.AfterFunc(time.Second, func() { fired++ })
	c.Advance(999 * time.Millisecond)
	if fired != 0 {
		t.Fatal("fired early")
	}
	c.Advance(time.Millisecond)
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	c.Advance(time.Hour)
	if fired != 1 {
		t.Fatal("one-shot fired twice")
	}
}

func TestFakeAfterFuncStop(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	timer := c.AfterFunc(time.Second, func() { t.Fatal("stopped timer fired") })
	if !timer.Stop() {
		t.Fatal("Stop should report true for a pending timer")
	}
	if timer.Stop() {
		t.Fatal("second Stop should report false")
	}
	c.Advance(2 * time.Second)
	if c.Pending() != 0 {
		t.Fatalf("pending = %d", c.Pending())
	}
}

func TestFakeChainedCallbacks(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	var ticks int
	var schedule func()
	schedule = func() {
		ticks++
		if ticks < 3 {
			c.AfterFunc(time.Second, schedule)
		}
	}
	c.AfterFunc(time.Second, schedule)
	for i := 0; i < 5; i++ {
		c.Advance(time.Second)
	}
	if ticks != 3 {
		t.Fatalf("ticks = %d, want 3", ticks)
	}
}

func TestFakeTicker(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	tk := c.NewTicker(10 * time.Millisecond)
	c.Advance(10 * time.Millisecond)
	select {
	case <-tk.C:
	default:
		t.Fatal("expected tick")
	}
	tk.Stop()
	c.Advance(time.Second)
	select {
	case <-tk.C:
		t.Fatal("tick after stop")
	default:
	}
}
