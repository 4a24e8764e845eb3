package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFake_AfterFuncFiresOnAdvance(t *testing.T) {
	c := Fake(epoch)
	fired := 0
	c.AfterFunc(5*time.Second, func() { fired++ })

	c.Advance(4 * time.Second)
	if fired != 0 {
		t.Fatalf("fired = %d before deadline, want 0", fired)
	}

	c.Advance(time.Second)
	if fired != 1 {
		t.Fatalf("fired = %d at deadline, want 1", fired)
	}

	c.Advance(time.Minute)
	if fired != 1 {
		t.Errorf("fired = %d after deadline, want 1 (one-shot)", fired)
	}
}

func TestFake_StopPreventsCallback(t *testing.T) {
	c := Fake(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Error("Stop() = false on pending timer, want true")
	}
	if timer.Stop() {
		t.Error("second Stop() = true, want false")
	}

	c.Advance(time.Hour)
	if fired {
		t.Error("stopped timer fired")
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}
}

func TestFake_CallbackSeesDeadlineTime(t *testing.T) {
	c := Fake(epoch)
	var seen time.Time
	c.AfterFunc(3*time.Second, func() { seen = c.Now() })

	c.Advance(10 * time.Second)

	if want := epoch.Add(3 * time.Second); !seen.Equal(want) {
		t.Errorf("Now() inside callback = %v, want %v", seen, want)
	}
	if want := epoch.Add(10 * time.Second); !c.Now().Equal(want) {
		t.Errorf("Now() after Advance = %v, want %v", c.Now(), want)
	}
}

func TestFake_FiresInDeadlineOrder(t *testing.T) {
	c := Fake(epoch)
	var order []int
	c.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	c.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	c.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	c.Advance(5 * time.Second)

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("order = %v, want [1 2 3]", order)
	}
}

func TestFake_CallbackCanSchedule(t *testing.T) {
	c := Fake(epoch)
	count := 0
	var reschedule func()
	reschedule = func() {
		count++
		if count < 3 {
			c.AfterFunc(time.Second, reschedule)
		}
	}
	c.AfterFunc(time.Second, reschedule)

	c.Advance(10 * time.Second)

	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}
