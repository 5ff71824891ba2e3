// Package backoff computes the wait schedule between retry attempts.
package backoff

import "time"

// Exponential is a capped exponential schedule: the wait after the zero-based
// attempt K is min(2^K, Cap) units. With the default unit of one second and
// cap of ten, successive waits are 1s, 2s, 4s, 8s, 10s, 10s, ...
type Exponential struct {
	// Unit is the duration of one backoff unit.
	Unit time.Duration
	// Cap is the maximum wait, in units.
	Cap int
}

// Default returns the schedule used by the dispatcher: one-second units
// capped at ten.
func Default() Exponential {
	return Exponential{Unit: time.Second, Cap: 10}
}

// Delay returns the wait before the attempt following the zero-based attempt
// index just completed.
func (e Exponential) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	// 1<<attempt overflows past 62; anything that large is beyond any
	// sensible cap anyway.
	units := e.Cap
	if attempt < 31 {
		if v := 1 << attempt; v < e.Cap {
			units = v
		}
	}
	return time.Duration(units) * e.Unit
}
