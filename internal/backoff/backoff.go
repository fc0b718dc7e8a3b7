// Package backoff computes retry delays shared by the job queue and the
// webhook dispatcher.
package backoff

import "time"

// maxShift keeps BaseDelay<<shift inside time.Duration range for a one-minute base.
const maxShift = 27

// BaseDelay is the unit of the exponential schedule.
const BaseDelay = time.Minute

// Delay returns 2^attempts minutes. attempts is the number of failed attempts
// recorded so far, so the first retry waits two minutes. There is no ceiling
// beyond the overflow guard.
func Delay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > maxShift {
		attempts = maxShift
	}
	return BaseDelay << attempts
}

// NextRetryAt returns now + Delay(attempts) in UTC.
func NextRetryAt(now time.Time, attempts int) time.Time {
	return now.Add(Delay(attempts)).UTC()
}
