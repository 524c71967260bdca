package schedule

import (
	"testing"
	"time"
)

var epoch = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func TestFakeClockFiresInDeadlineOrder(t *testing.T) {
	c := NewFakeClock(epoch)
	var order []string
	c.AfterFunc(3*time.Second, func() { order = append(order, "c") })
	c.AfterFunc(1*time.Second, func() { order = append(order, "a") })
	c.AfterFunc(2*time.Second, func() { order = append(order, "b") })

	c.Advance(2 * time.Second)
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("order after 2s = %v, want [a b]", order)
	}
	c.Advance(time.Second)
	if len(order) != 3 {
		t.Fatalf("order after 3s = %v, want 3 entries", order)
	}
	if got := c.Now(); !got.Equal(epoch.Add(3 * time.Second)) {
		t.Errorf("Now() = %v, want %v", got, epoch.Add(3*time.Second))
	}
}

func TestFakeClockStop(t *testing.T) {
	c := NewFakeClock(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })
	if !timer.Stop() {
		t.Fatal("Stop() = false, want true for pending timer")
	}
	c.Advance(time.Minute)
	if fired {
		t.Fatal("stopped timer fired")
	}
	if timer.Stop() {
		t.Error("second Stop() = true, want false")
	}
}

func TestLoopRearmsAfterCompletion(t *testing.T) {
	c := NewFakeClock(epoch)
	runs := 0
	l := Every(c, 10*time.Second, func() { runs++ })

	c.Advance(35 * time.Second)
	if runs != 3 {
		t.Fatalf("runs = %d, want 3", runs)
	}

	l.Stop()
	c.Advance(time.Minute)
	if runs != 3 {
		t.Fatalf("runs after Stop() = %d, want 3", runs)
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}
}

func TestLoopStopDuringRunDoesNotRearm(t *testing.T) {
	c := NewFakeClock(epoch)
	var l *Loop
	runs := 0
	l = Every(c, time.Second, func() {
		runs++
		l.Stop()
	})
	c.Advance(5 * time.Second)
	if runs != 1 {
		t.Fatalf("runs = %d, want 1", runs)
	}
}

func TestGroupStopAll(t *testing.T) {
	c := NewFakeClock(epoch)
	var g Group
	runs := 0
	g.Add(Every(c, time.Second, func() { runs++ }))
	g.Add(Every(c, 2*time.Second, func() { runs++ }))
	stoppedFn := false
	g.Add(StopFunc(func() { stoppedFn = true }))

	g.StopAll()
	c.Advance(10 * time.Second)
	if runs != 0 {
		t.Errorf("runs = %d, want 0", runs)
	}
	if !stoppedFn {
		t.Error("StopFunc was not called")
	}

	late := false
	g.Add(StopFunc(func() { late = true }))
	if !late {
		t.Error("Add() after StopAll() should stop immediately")
	}
}
