package training

import (
	"slices"
	"testing"
	"time"

	"github.com/dgnsrekt/kaiwa/internal/clock"
)

func TestCountdown(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	c := NewCountdown(clk, 3)

	var ticks []int
	expired := 0
	c.OnTick(func(left int) { ticks = append(ticks, left) })
	c.OnExpire(func() { expired++ })

	c.Start()
	if !c.Active() || c.Left() != 3 {
		t.Fatalf("Active() = %v, Left() = %d after Start", c.Active(), c.Left())
	}
	clk.Advance(10 * time.Second)

	if !slices.Equal(ticks, []int{2, 1, 0}) {
		t.Errorf("ticks = %v, want [2 1 0]", ticks)
	}
	if expired != 1 {
		t.Errorf("expired %d times, want 1", expired)
	}
	if c.Active() || !c.Expired() || c.Left() != 0 {
		t.Errorf("Active() = %v, Expired() = %v, Left() = %d", c.Active(), c.Expired(), c.Left())
	}
}

func TestCountdownStopAndRestart(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	c := NewCountdown(clk, 5)
	expired := false
	c.OnExpire(func() { expired = true })

	c.Start()
	clk.Advance(2 * time.Second)
	c.Stop()
	clk.Advance(10 * time.Second)
	if expired || c.Left() != 3 || c.Active() {
		t.Errorf("after Stop: expired = %v, Left() = %d, Active() = %v", expired, c.Left(), c.Active())
	}
	if clk.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", clk.Pending())
	}

	c.Start()
	if c.Left() != 5 {
		t.Errorf("Left() after restart = %d, want 5", c.Left())
	}
	c.Reset(2)
	if c.Left() != 2 || c.Active() {
		t.Errorf("after Reset: Left() = %d, Active() = %v", c.Left(), c.Active())
	}
	c.Start()
	clk.Advance(2 * time.Second)
	if !expired {
		t.Error("countdown did not expire after Reset(2)")
	}
}

func TestCountdownZero(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	c := NewCountdown(clk, 0)
	c.Start()
	if c.Active() || clk.Pending() != 0 {
		t.Errorf("zero countdown Active() = %v, Pending() = %d", c.Active(), clk.Pending())
	}
}
