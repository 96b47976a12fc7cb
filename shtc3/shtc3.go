// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package shtc3 interfaces with the Sensirion SHTC3 temperature and humidity
// sensor that measures the climate inside the node enclosure.
//
// The sensor is kept in sleep mode between measurements.
//
// # Datasheet
//
// https://sensirion.com/media/documents/643F9C8E/63A5A436/Datasheet_SHTC3.pdf
package shtc3

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GermanBionicSystems/fieldnode/common"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// DefaultAddress is the only I²C address of the SHTC3.
const DefaultAddress i2c.Addr = 0x70

const (
	// 16 bit commands, big endian.
	cmdWakeup    uint16 = 0x3517
	cmdSleep     uint16 = 0xb098
	cmdSoftReset uint16 = 0x805d
	cmdReadID    uint16 = 0xefc8
	// Temperature first, clock stretching disabled.
	cmdMeasure         uint16 = 0x7866
	cmdMeasureLowPower uint16 = 0x609c

	idMask    = 0x083f
	idPattern = 0x0807

	wakeupTime       = 240 * time.Microsecond
	resetTime        = 240 * time.Microsecond
	measureTime      = 13 * time.Millisecond
	measureTimeLowPw = time.Millisecond
)

// Opts holds the configuration options.
type Opts struct {
	// LowPower selects the low power measurement mode. It is faster and less
	// repeatable.
	LowPower bool
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{}

// New returns a handle to a SHTC3 sensor after checking its identifier. The
// sensor is left in sleep mode.
func New(bus i2c.Bus, addr i2c.Addr, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{d: &i2c.Dev{Bus: bus, Addr: uint16(addr)}, opts: *opts}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.command(cmdWakeup, wakeupTime); err != nil {
		return nil, err
	}
	var r [3]byte
	if err := d.read(cmdReadID, 0, r[:]); err != nil {
		return nil, err
	}
	d.id = uint16(r[0])<<8 | uint16(r[1])
	if d.id&idMask != idPattern {
		return nil, fmt.Errorf("shtc3: unexpected id %#04x", d.id)
	}
	return d, d.command(cmdSleep, 0)
}

// Dev is a handle to a SHTC3.
type Dev struct {
	d    *i2c.Dev
	opts Opts
	id   uint16
	mu   sync.Mutex
}

func (d *Dev) String() string {
	return fmt.Sprintf("SHTC3{%s}", d.d)
}

// ID returns the product code read at initialization.
func (d *Dev) ID() uint16 {
	return d.id
}

// ReadRaw wakes the sensor, measures and puts it back to sleep. It returns
// the raw temperature and humidity ticks.
func (d *Dev) ReadRaw() (t, rh uint16, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err = d.command(cmdWakeup, wakeupTime); err != nil {
		return 0, 0, err
	}
	cmd, wait := cmdMeasure, measureTime
	if d.opts.LowPower {
		cmd, wait = cmdMeasureLowPower, measureTimeLowPw
	}
	var r [6]byte
	if err = d.read(cmd, wait, r[:]); err != nil {
		return 0, 0, err
	}
	t = uint16(r[0])<<8 | uint16(r[1])
	rh = uint16(r[3])<<8 | uint16(r[4])
	return t, rh, d.command(cmdSleep, 0)
}

// Sense reads temperature and humidity. Implements physic.SenseEnv.
func (d *Dev) Sense(e *physic.Env) error {
	t, rh, err := d.ReadRaw()
	if err != nil {
		return err
	}
	e.Temperature = TicksToTemperature(t)
	e.Humidity = TicksToHumidity(rh)
	e.Pressure = 0
	return nil
}

// SenseContinuous implements physic.SenseEnv. The node measures on demand
// only.
func (d *Dev) SenseContinuous(time.Duration) (<-chan physic.Env, error) {
	return nil, errors.New("shtc3: not implemented")
}

// Precision implements physic.SenseEnv.
func (d *Dev) Precision(e *physic.Env) {
	e.Temperature = physic.Kelvin / 100
	e.Humidity = physic.PercentRH / 100
	e.Pressure = 0
}

// Reset issues a soft reset. The sensor must be awake.
func (d *Dev) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.command(cmdWakeup, wakeupTime); err != nil {
		return err
	}
	if err := d.command(cmdSoftReset, resetTime); err != nil {
		return err
	}
	return d.command(cmdSleep, 0)
}

// Halt puts the sensor in sleep mode. Implements conn.Resource.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.command(cmdSleep, 0)
}

// TicksToTemperature converts a raw reading: T = -45 + 175 * ticks / 2¹⁶.
func TicksToTemperature(ticks uint16) physic.Temperature {
	return physic.Temperature(-45*int64(physic.Kelvin)+175*int64(physic.Kelvin)*int64(ticks)/65536) + physic.ZeroCelsius
}

// TicksToHumidity converts a raw reading: RH = 100 * ticks / 2¹⁶.
func TicksToHumidity(ticks uint16) physic.RelativeHumidity {
	return physic.RelativeHumidity(int64(100*physic.PercentRH) * int64(ticks) / 65536)
}

//

func (d *Dev) command(cmd uint16, wait time.Duration) error {
	if err := d.d.Tx([]byte{byte(cmd >> 8), byte(cmd)}, nil); err != nil {
		return fmt.Errorf("shtc3: error writing command %#04x: %w", cmd, err)
	}
	if wait > 0 {
		sleep(wait)
	}
	return nil
}

// read sends cmd, waits and reads r, a sequence of 16 bit words each
// followed by its CRC.
func (d *Dev) read(cmd uint16, wait time.Duration, r []byte) error {
	if err := d.command(cmd, wait); err != nil {
		return err
	}
	if err := d.d.Tx(nil, r); err != nil {
		return fmt.Errorf("shtc3: error reading %w", err)
	}
	for i := 0; i+2 < len(r); i += 3 {
		if common.SensirionCRC8(r[i:i+2]) != r[i+2] {
			return fmt.Errorf("shtc3: bytes[%d:%d] read crc error", i, i+2)
		}
	}
	return nil
}

var sleep = time.Sleep

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
