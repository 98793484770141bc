package clock

import (
	"testing"
	"time"
)

func TestFakeAdvanceOrder(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	var got []string

	c.AfterFunc(2*time.Second, func() { got = append(got, "b") })
	c.AfterFunc(time.Second, func() {
		got = append(got, "a")
		c.AfterFunc(500*time.Millisecond, func() { got = append(got, "a2") })
	})
	stopped := c.AfterFunc(1500*time.Millisecond, func() { got = append(got, "never") })
	late := c.AfterFunc(5*time.Second, func() { got = append(got, "late") })

	if !stopped.Stop() {
		t.Fatal("Stop() = false, want true")
	}
	c.Advance(2 * time.Second)

	want := []string{"a", "a2", "b"}
	if len(got) != len(want) {
		t.Fatalf("fired = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("fired[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if !c.Now().Equal(time.Unix(2, 0)) {
		t.Errorf("Now() = %v, want 2s", c.Now())
	}
	if c.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", c.Pending())
	}
	if !late.Stop() || late.Stop() {
		t.Error("Stop should succeed once")
	}
}
