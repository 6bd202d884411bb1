package clock

import (
	"testing"
	"time"
)

func TestFixedAdvance(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := NewFixed(start)

	c.Advance(25 * time.Hour)
	if got := c.Now(); !got.Equal(start.Add(25 * time.Hour)) {
		t.Fatalf("unexpected time %s", got)
	}

	c.Set(start)
	if !c.Now().Equal(start) {
		t.Fatalf("expected Set to reset the clock")
	}
}

func TestRealIsUTC(t *testing.T) {
	if loc := (Real{}).Now().Location(); loc != time.UTC {
		t.Fatalf("expected UTC, got %s", loc)
	}
}
