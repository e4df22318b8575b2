package clock

import (
	"testing"
	"time"
)

func TestRealClockNow(t *testing.T) {
	clk := RealClock{}
	if clk.Now().IsZero() {
		t.Fatalf("expected non-zero time")
	}
}

func TestFakeClockAdvance(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := NewFakeClock(start)

	if !clk.Now().Equal(start) {
		t.Fatalf("expected start time")
	}

	clk.Advance(1500 * time.Millisecond)
	want := start.Add(1500 * time.Millisecond)
	if !clk.Now().Equal(want) {
		t.Fatalf("expected %v got %v", want, clk.Now())
	}

	later := start.Add(48 * time.Hour)
	clk.Set(later)
	if !clk.Now().Equal(later) {
		t.Fatalf("expected %v got %v", later, clk.Now())
	}
}
