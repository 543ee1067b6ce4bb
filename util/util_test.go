package util_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/nasa-jpl/frog/util"
)

func ExampleLimiter_Check() {
	l := util.Limiter{Min: 0, Max: 270}
	fmt.Println(l.Check(90), l.Check(300))
	// Output: true false
}

func TestClampHigh(t *testing.T) {
	var (
		low   = 0.
		high  = 10.
		input = 20.
	)
	clamped := util.Clamp(input, low, high)
	if clamped != high {
		t.Errorf("expected out of range value %f to be clipped to %f < x < %f, got %f", input, low, high, clamped)
	}
}

func TestClampLow(t *testing.T) {
	var (
		low   = 0.
		high  = 10.
		input = -1.
	)
	clamped := util.Clamp(input, low, high)
	if clamped != low {
		t.Errorf("expected out of range value %f to be clipped to %f < x < %f, got %f", input, low, high, clamped)
	}
}

func TestSecsToDuration(t *testing.T) {
	var dur time.Duration = 123456789
	secs := dur.Seconds()
	out := util.SecsToDuration(secs)
	if out != dur {
		t.Errorf("expected SecsToDuration to round trip, output %v != expected %v", out, dur)
	}
	if back := util.DurationToSecs(out); back != secs {
		t.Errorf("expected %v got %v", secs, back)
	}
}
