// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package timebasetest is meant to be used to test drivers that block on a
// timebase.Clock.
package timebasetest

import (
	"sync"
	"time"

	"github.com/GermanBionicSystems/fieldnode/timebase"
)

// Clock is a virtual clock. Delay and EnterLowPower advance it instantly.
//
// The zero value starts at the zero time.Time and is ready to use.
type Clock struct {
	sync.Mutex
	T time.Time
	// Record enables appending every Delay to Delays.
	Record bool
	Delays []time.Duration
	// Suspended accumulates the time spent in EnterLowPower.
	Suspended time.Duration
}

// Now implements timebase.Clock.
func (c *Clock) Now() time.Time {
	c.Lock()
	defer c.Unlock()
	return c.T
}

// Delay implements timebase.Clock.
func (c *Clock) Delay(d time.Duration) {
	c.Lock()
	defer c.Unlock()
	if d < 0 {
		d = 0
	}
	c.T = c.T.Add(d)
	if c.Record {
		c.Delays = append(c.Delays, d)
	}
}

// Advance moves the clock forward without recording a delay.
func (c *Clock) Advance(d time.Duration) {
	c.Lock()
	defer c.Unlock()
	c.T = c.T.Add(d)
}

// EnterLowPower implements timebase.LowPower.
func (c *Clock) EnterLowPower(d time.Duration) {
	c.Lock()
	defer c.Unlock()
	c.T = c.T.Add(d)
	c.Suspended += d
}

// CalibrateTimebase implements timebase.LowPower. The virtual clock is exact.
func (c *Clock) CalibrateTimebase() time.Duration {
	return time.Nanosecond
}

var _ timebase.Clock = &Clock{}
var _ timebase.LowPower = &Clock{}
