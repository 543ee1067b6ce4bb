// Package util contains misc internal utilities.
package util

import (
	"math"
	"time"
)

// Limiter holds a closed interval of permitted values
type Limiter struct {
	Min float64 `json:"min" yaml:"min" koanf:"min"`
	Max float64 `json:"max" yaml:"max" koanf:"max"`
}

// Check returns true if Min <= f <= Max
func (l Limiter) Check(f float64) bool {
	return f >= l.Min && f <= l.Max
}

// Clamp limits v to [low, high]
func Clamp(v, low, high float64) float64 {
	return math.Min(math.Max(v, low), high)
}

// SecsToDuration converts a floating point number of seconds to a time.Duration
func SecsToDuration(secs float64) time.Duration {
	return time.Duration(math.Round(secs * 1e9))
}

// DurationToSecs is the inverse of SecsToDuration
func DurationToSecs(d time.Duration) float64 {
	return d.Seconds()
}
