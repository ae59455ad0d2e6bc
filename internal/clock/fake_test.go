package clock

import (
	"testing"
	"time"
)

func TestFakeClockAfterAdvancesTime(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	c := Fake(start)

	fired := <-c.After(2 * time.Second)
	if !fired.Equal(start.Add(2 * time.Second)) {
		t.Fatalf("unexpected fire time: %v", fired)
	}
	c.Sleep(3 * time.Second)
	if got := Since(c, start); got != 5*time.Second {
		t.Fatalf("expected 5s elapsed, got %s", got)
	}
	sleeps := c.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 2*time.Second || sleeps[1] != 3*time.Second {
		t.Fatalf("unexpected recorded sleeps: %v", sleeps)
	}
}

func TestFakeClockNonPositiveDurationsDoNotMove(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	c := Fake(start)

	<-c.After(0)
	c.Sleep(-time.Second)
	c.Advance(-time.Second)
	if !c.Now().Equal(start) {
		t.Fatalf("clock moved on non-positive durations: %v", c.Now())
	}

	c.Advance(time.Minute)
	if got := Since(c, start); got != time.Minute {
		t.Fatalf("expected 1m after advance, got %s", got)
	}
	if len(c.Sleeps()) != 2 {
		t.Fatalf("advance must not record a sleep: %v", c.Sleeps())
	}
}
