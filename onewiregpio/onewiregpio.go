// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package onewiregpio drives a 1-wire bus by bit-banging a single GPIO pin.
//
// The pin is used open-drain: it is either driven low or switched to input
// with a pull-up, letting the bus float high. All slot timings are delays on
// a timebase.Clock; on a hosted target use a clock that busy-waits.
//
// The Bus is not safe for concurrent use.
package onewiregpio

import (
	"fmt"
	"runtime"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/onewire"

	"github.com/GermanBionicSystems/fieldnode/timebase"
)

// Timing holds the slot timings of the bus. All values are minimums.
type Timing struct {
	ResetLow       time.Duration // reset pulse, at least 480µs
	PresenceSample time.Duration // presence sample point after release
	ResetTail      time.Duration // remainder of the reset slot after sampling
	Write1Low      time.Duration // low time of a 1 write slot
	Write1High     time.Duration // remainder of a 1 write slot
	Write0Low      time.Duration // low time of a 0 write slot
	Write0Recovery time.Duration // released time after a 0 write slot
	ReadLow        time.Duration // low time initiating a read slot
	ReadSample     time.Duration // sample point after release
	ReadTail       time.Duration // remainder of the read slot after sampling
}

// DefaultTiming is the standard speed timing: a 960µs reset slot, 60µs
// write-1 and read slots and a 65µs write-0 slot.
var DefaultTiming = Timing{
	ResetLow:       500 * time.Microsecond,
	PresenceSample: 50 * time.Microsecond,
	ResetTail:      450 * time.Microsecond,
	Write1Low:      5 * time.Microsecond,
	Write1High:     55 * time.Microsecond,
	Write0Low:      60 * time.Microsecond,
	Write0Recovery: 5 * time.Microsecond,
	ReadLow:        5 * time.Microsecond,
	ReadSample:     5 * time.Microsecond,
	ReadTail:       50 * time.Microsecond,
}

// Opts contains options to pass to the constructor.
type Opts struct {
	Timing Timing
	// Clock used for slot timing. Defaults to a busy-waiting timebase.Host.
	Clock timebase.Clock
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	Timing: DefaultTiming,
}

// New returns a 1-wire bus driven through pin p.
//
// The pin is released immediately so the bus idles high.
func New(p gpio.PinIO, opts *Opts) (*Bus, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	b := &Bus{pin: p, t: opts.Timing, clock: opts.Clock}
	if b.clock == nil {
		b.clock = &timebase.Host{}
	}
	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("onewiregpio: failed to release %s: %v", p, err)
	}
	return b, nil
}

// Bus is a 1-wire master on a single GPIO pin. It implements onewire.Bus.
//
// Bus implements a persistent error model: the first pin error is latched,
// every later bit operation becomes a no-op and Tx returns the latched error.
// Errors on the 1-wire bus itself, such as a missing presence pulse, are not
// persistent and implement onewire.BusError.
type Bus struct {
	pin   gpio.PinIO
	clock timebase.Clock
	t     Timing
	err   error
}

func (b *Bus) String() string {
	return fmt.Sprintf("onewiregpio{%s}", b.pin)
}

// Halt implements conn.Resource. It releases the bus.
func (b *Bus) Halt() error {
	b.release()
	return b.err
}

// Err returns the latched pin error, if any.
func (b *Bus) Err() error {
	return b.err
}

// Reset issues a reset pulse and returns true if a device answered with a
// presence pulse.
//
// The full 960µs reset slot has elapsed when Reset returns.
func (b *Bus) Reset() bool {
	b.low()
	b.clock.Delay(b.t.ResetLow)
	b.release()
	b.clock.Delay(b.t.PresenceSample)
	present := b.sample() == gpio.Low
	b.clock.Delay(b.t.ResetTail)
	return present && b.err == nil
}

// WriteBit writes a single bit slot.
func (b *Bus) WriteBit(bit bool) {
	b.low()
	if bit {
		b.clock.Delay(b.t.Write1Low)
		b.release()
		b.clock.Delay(b.t.Write1High)
		return
	}
	b.clock.Delay(b.t.Write0Low)
	b.release()
	b.clock.Delay(b.t.Write0Recovery)
}

// ReadBit runs a read slot and returns the sampled bit.
//
// A latched pin error reads as 1, the level of an idle bus.
func (b *Bus) ReadBit() bool {
	b.low()
	b.clock.Delay(b.t.ReadLow)
	b.release()
	b.clock.Delay(b.t.ReadSample)
	bit := b.sample() == gpio.High
	b.clock.Delay(b.t.ReadTail)
	return bit
}

// WriteOctet writes d least significant bit first.
func (b *Bus) WriteOctet(d byte) {
	for n := 0; n < 8; n++ {
		b.WriteBit(d&0x01 != 0)
		d >>= 1
	}
}

// ReadOctet reads a byte least significant bit first.
func (b *Bus) ReadOctet() byte {
	var d byte
	for n := uint(0); n < 8; n++ {
		if b.ReadBit() {
			d |= 1 << n
		}
	}
	return d
}

// Tx performs a bus transaction: a reset, writing w and reading r.
//
// With power set to onewire.StrongPullup the pin actively drives the bus high
// after the last byte, which powers parasitic devices until the next
// transaction. Polling a conversion requires onewire.WeakPullup.
func (b *Bus) Tx(w, r []byte, power onewire.Pullup) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if !b.Reset() {
		if b.err != nil {
			return b.err
		}
		return busError("onewiregpio: no device present")
	}
	for _, d := range w {
		b.WriteOctet(d)
	}
	for i := range r {
		r[i] = b.ReadOctet()
	}
	if power == onewire.StrongPullup {
		b.drive(gpio.High)
	}
	return b.err
}

// Search performs a "search" cycle on the 1-wire bus and returns the addresses
// of all devices on the bus if alarmOnly is false and of all devices in alarm
// state if alarmOnly is true.
func (b *Bus) Search(alarmOnly bool) ([]onewire.Address, error) {
	return onewire.Search(b, alarmOnly)
}

// SearchTriplet performs a single bit search triplet: two read slots for the
// bit and its complement, then writes the chosen branch.
//
// SearchTriplet should not be used directly, use Search instead.
func (b *Bus) SearchTriplet(direction byte) (onewire.TripletResult, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	bit := b.ReadBit()
	comp := b.ReadBit()
	tr := onewire.TripletResult{GotZero: !bit, GotOne: !comp}
	switch {
	case tr.GotZero && tr.GotOne:
		tr.Taken = direction & 1
	case tr.GotZero:
		tr.Taken = 0
	default:
		tr.Taken = 1
	}
	b.WriteBit(tr.Taken == 1)
	return tr, b.err
}

//

func (b *Bus) low() {
	b.drive(gpio.Low)
}

func (b *Bus) drive(l gpio.Level) {
	if b.err != nil {
		return
	}
	if err := b.pin.Out(l); err != nil {
		b.err = fmt.Errorf("onewiregpio: failed to drive %s %s: %v", b.pin, l, err)
	}
}

func (b *Bus) release() {
	if b.err != nil {
		return
	}
	if err := b.pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		b.err = fmt.Errorf("onewiregpio: failed to release %s: %v", b.pin, err)
	}
}

func (b *Bus) sample() gpio.Level {
	if b.err != nil {
		return gpio.High
	}
	return b.pin.Read()
}

// busError implements error and onewire.BusError.
type busError string

func (e busError) Error() string  { return string(e) }
func (e busError) BusError() bool { return true }

var _ conn.Resource = &Bus{}
var _ onewire.Bus = &Bus{}
var _ onewire.BusSearcher = &Bus{}
