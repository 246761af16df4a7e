// Package durationx parses the compact "<uint><unit>..." duration syntax
// used throughout this system's configuration (--timeout, retry_interval,
// default_timeout).
package durationx

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var unitDurations = map[string]time.Duration{
	"ns": time.Nanosecond,
	"us": time.Microsecond,
	"µs": time.Microsecond,
	"ms": time.Millisecond,
	"s":  time.Second,
	"S":  time.Second,
	"m":  time.Minute,
	"M":  time.Minute,
	"h":  time.Hour,
	"H":  time.Hour,
	"d":  24 * time.Hour,
	"D":  24 * time.Hour,
}

// Parse accepts a concatenation of <uint><unit> pairs, e.g. "1h15m10s", and
// sums them. It fails if the numeric and unit runs don't pair up one to
// one, or if any unit is unrecognized.
func Parse(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("durationx: empty duration")
	}

	var numbers []string
	var units []string

	var b strings.Builder
	inDigits := true
	for _, r := range s {
		isDigit := r >= '0' && r <= '9'
		if isDigit != inDigits {
			if b.Len() == 0 {
				return 0, fmt.Errorf("durationx: malformed duration %q", s)
			}
			if inDigits {
				numbers = append(numbers, b.String())
			} else {
				units = append(units, b.String())
			}
			b.Reset()
			inDigits = isDigit
		}
		b.WriteRune(r)
	}
	if b.Len() > 0 {
		if inDigits {
			numbers = append(numbers, b.String())
		} else {
			units = append(units, b.String())
		}
	}

	if len(numbers) != len(units) || len(numbers) == 0 {
		return 0, fmt.Errorf("durationx: malformed duration %q", s)
	}

	var total time.Duration
	for i, numStr := range numbers {
		n, err := strconv.ParseUint(numStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("durationx: invalid number %q: %w", numStr, err)
		}
		unit, ok := unitDurations[units[i]]
		if !ok {
			return 0, fmt.Errorf("durationx: unknown unit %q", units[i])
		}
		total += time.Duration(n) * unit
	}

	return total, nil
}
