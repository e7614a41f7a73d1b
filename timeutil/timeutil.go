// Package timeutil contains the HH:MM:SS clock arithmetic shared by the
// stint tracker and the strategy projection engine.
//
// Race clocks in this system are times of day rendered as zero-padded
// HH:MM:SS strings. Arithmetic that crosses midnight is date-aware: a
// duration between two clock values adds 24 hours when needed so the
// result stays positive, and subtraction reports whether it rolled into
// the previous day.
package timeutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedTime indicates an input that is not a valid HH:MM:SS string.
var ErrMalformedTime = errors.New("malformed HH:MM:SS time")

// ZeroTime is the canonical zero clock value substituted for malformed input.
const ZeroTime = "00:00:00"

// ParseHHMMSS converts an "HH:MM:SS" string to total seconds.
//
// Hours may exceed 23 (race lengths such as "25:00:00" are legal inputs);
// minutes and seconds must be in [0, 60). Returns ErrMalformedTime on any
// parse failure.
func ParseHHMMSS(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
		}
		nums[i] = n
	}

	h, m, sec := nums[0], nums[1], nums[2]
	if h < 0 || m < 0 || m >= 60 || sec < 0 || sec >= 60 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
	}

	return h*3600 + m*60 + sec, nil
}

// FormatHHMMSS renders a seconds value as a zero-padded "HH:MM:SS" string.
// Negative values are clamped to zero.
func FormatHHMMSS(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatDuration renders a duration as "HH:MM:SS", truncating sub-second
// precision. Negative durations are clamped to zero.
func FormatDuration(d time.Duration) string {
	return FormatHHMMSS(int(d.Seconds()))
}

// Normalize24h rewrites the out-of-range "24:MM:SS" clock value some race
// configurations use for a full-day length into "00:MM:SS".
func Normalize24h(s string) string {
	if strings.HasPrefix(s, "24:") {
		return "00:" + s[3:]
	}
	return s
}

// Bucket quantizes an HH:MM:SS value into a window of the given size in
// seconds, returning the start of the window the value falls into. Used to
// equate near-simultaneous observations of the same pit-out across agents.
//
// Returns ErrMalformedTime for bad input and an error for a non-positive
// window.
func Bucket(s string, windowSeconds int) (string, error) {
	if windowSeconds <= 0 {
		return "", fmt.Errorf("bucket window must be positive, got %d", windowSeconds)
	}

	total, err := ParseHHMMSS(s)
	if err != nil {
		return "", err
	}

	return FormatHHMMSS((total / windowSeconds) * windowSeconds), nil
}

// ClockDistance returns the wall-time distance from the clock value end
// back to start, treating both as times of day. When start reads earlier
// than end it is assumed to belong to the next day, so the result is
// always non-negative (e.g. distance from start "00:30:00" back to end
// "23:30:00" is one hour).
func ClockDistance(start, end string) (time.Duration, error) {
	a, err := ParseHHMMSS(Normalize24h(start))
	if err != nil {
		return 0, err
	}
	b, err := ParseHHMMSS(end)
	if err != nil {
		return 0, err
	}

	if a < b {
		a += 24 * 3600
	}
	return time.Duration(a-b) * time.Second, nil
}

// SubtractClock subtracts a duration from a time-of-day value. The second
// return value reports whether the subtraction crossed midnight into the
// previous day; the returned clock value is only meaningful when it did
// not.
func SubtractClock(s string, d time.Duration) (string, bool, error) {
	total, err := ParseHHMMSS(s)
	if err != nil {
		return "", false, err
	}

	remaining := total - int(d.Seconds())
	if remaining < 0 {
		return "", true, nil
	}
	return FormatHHMMSS(remaining), false, nil
}

// AdjustSeconds applies the tracker's remaining-time corrections to a base
// seconds value: startTime (HH:MM:SS) is subtracted and offsetTime
// (HH:MM:SS) is added. Empty strings skip the respective adjustment. The
// result is not clamped; callers clamp to zero where appropriate.
func AdjustSeconds(base int, startTime, offsetTime string) (int, error) {
	seconds := base

	if startTime != "" {
		v, err := ParseHHMMSS(startTime)
		if err != nil {
			return 0, fmt.Errorf("invalid start time %q: %w", startTime, err)
		}
		seconds -= v
	}

	if offsetTime != "" {
		v, err := ParseHHMMSS(offsetTime)
		if err != nil {
			return 0, fmt.Errorf("invalid offset time %q: %w", offsetTime, err)
		}
		seconds += v
	}

	return seconds, nil
}
