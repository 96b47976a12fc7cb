// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package timebase provides the timing primitives the drivers block on and
// the low-power capability of the node.
//
// Drivers never touch timer or power registers directly; they only ask a
// Clock for the current monotonic time and for delays, and the orchestrator
// asks a LowPower implementation to suspend the node between measurements.
package timebase

import (
	"runtime"
	"time"
)

// Clock is a monotonic time source with a blocking delay.
type Clock interface {
	// Now returns the current time. Only differences between two values are
	// meaningful.
	Now() time.Time
	// Delay blocks for at least d.
	Delay(d time.Duration)
}

// LowPower is the capability to suspend the node.
type LowPower interface {
	// EnterLowPower suspends the node for d.
	EnterLowPower(d time.Duration)
	// CalibrateTimebase measures the wake-up timer against the monotonic
	// clock and returns the observed granularity.
	CalibrateTimebase() time.Duration
}

// Expired returns true once c has reached deadline.
func Expired(c Clock, deadline time.Time) bool {
	return !c.Now().Before(deadline)
}

// DefaultSpinThreshold is the delay below which Host busy-waits.
const DefaultSpinThreshold = 2 * time.Millisecond

// Host is the Clock and LowPower implementation of a hosted target.
//
// Delays below SpinThreshold busy-wait on the monotonic clock, which is the
// only way to hold microsecond slot timings under a general purpose
// scheduler. Longer delays sleep.
type Host struct {
	SpinThreshold time.Duration

	granularity time.Duration
}

// Now implements Clock.
func (h *Host) Now() time.Time {
	return time.Now()
}

// Delay implements Clock.
func (h *Host) Delay(d time.Duration) {
	if d <= 0 {
		return
	}
	threshold := h.SpinThreshold
	if threshold == 0 {
		threshold = DefaultSpinThreshold
	}
	if d >= threshold {
		sleep(d)
		return
	}
	end := time.Now().Add(d)
	for time.Now().Before(end) {
	}
}

// EnterLowPower implements LowPower. A hosted process has no deeper state
// than sleeping.
func (h *Host) EnterLowPower(d time.Duration) {
	if d > 0 {
		sleep(d)
	}
}

// CalibrateTimebase implements LowPower.
//
// It returns the smallest non-zero step observed between consecutive clock
// readings. A result above 10µs means the host cannot hold 1-wire slot
// timings reliably.
func (h *Host) CalibrateTimebase() time.Duration {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	var best time.Duration
	for i := 0; i < 64; i++ {
		start := time.Now()
		var step time.Duration
		for step == 0 {
			step = time.Since(start)
		}
		if best == 0 || step < best {
			best = step
		}
	}
	h.granularity = best
	return best
}

// Granularity returns the value measured by the last CalibrateTimebase call.
func (h *Host) Granularity() time.Duration {
	return h.granularity
}

var sleep = time.Sleep

var _ Clock = &Host{}
var _ LowPower = &Host{}
