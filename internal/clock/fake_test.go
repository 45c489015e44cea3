package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestAfterFuncFiresAtDeadline(t *testing.T) {
	c := Fake(epoch)
	var firedAt time.Time
	c.AfterFunc(5*time.Second, func() { firedAt = c.Now() })

	c.Advance(4999 * time.Millisecond)
	if !firedAt.IsZero() {
		t.Fatal("timer fired early")
	}
	c.Advance(time.Millisecond)
	if want := epoch.Add(5 * time.Second); !firedAt.Equal(want) {
		t.Errorf("fired at %v, want %v", firedAt, want)
	}
	if n := c.PendingCount(); n != 0 {
		t.Errorf("PendingCount() = %d after firing, want 0", n)
	}
}

func TestStopPreventsFiring(t *testing.T) {
	c := Fake(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Error("Stop() on pending timer = false, want true")
	}
	if timer.Stop() {
		t.Error("second Stop() = true, want false")
	}
	c.Advance(time.Minute)
	if fired {
		t.Error("stopped timer fired")
	}
}

func TestCallbackCanScheduleWithinWindow(t *testing.T) {
	c := Fake(epoch)
	var order []int
	c.AfterFunc(time.Second, func() {
		order = append(order, 1)
		c.AfterFunc(time.Second, func() { order = append(order, 2) })
	})

	c.Advance(3 * time.Second)
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("order = %v, want [1 2]", order)
	}
	if got := c.Now(); !got.Equal(epoch.Add(3 * time.Second)) {
		t.Errorf("Now() = %v after Advance", got)
	}
}

func TestTickerDeliversAndStops(t *testing.T) {
	c := Fake(epoch)
	tk := c.NewTicker(15 * time.Second)

	c.Advance(15 * time.Second)
	select {
	case <-tk.C:
	default:
		t.Fatal("expected a tick after one interval")
	}

	tk.Stop()
	c.Advance(time.Minute)
	select {
	case <-tk.C:
		t.Fatal("tick delivered after Stop")
	default:
	}
}
