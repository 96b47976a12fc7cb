// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds18b20 reads a single DS18B20 temperature sensor on a 1-wire bus.
//
// The sensor is always addressed with Skip ROM, so it must be the only
// device on the bus.
package ds18b20

import (
	"encoding/binary"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/fieldnode/common"
	"github.com/GermanBionicSystems/fieldnode/timebase"
)

// Command opcodes, datasheet p.11.
const (
	cmdSkipROM        = 0xcc
	cmdConvertT       = 0x44
	cmdReadScratchpad = 0xbe
)

// ScratchpadSize is the size of the scratchpad including its CRC byte.
const ScratchpadSize = 9

// Bus is a 1-wire bus that can also run a single read slot, which is how a
// conversion in progress is polled.
type Bus interface {
	onewire.Bus
	ReadBit() bool
}

// Opts contains options to pass to the constructor.
type Opts struct {
	// MaxPolls and PollInterval bound WaitForCompletion.
	MaxPolls     int
	PollInterval time.Duration
	// Clock used between polls. Defaults to timebase.Host.
	Clock  timebase.Clock
	Logger *zap.Logger
}

// DefaultOpts polls every 10ms for up to a second, which covers the 750ms
// conversion time at the 12 bit power-on resolution.
var DefaultOpts = Opts{
	MaxPolls:     100,
	PollInterval: 10 * time.Millisecond,
}

// New returns an object that communicates over 1-wire to the DS18B20 sensor.
func New(o Bus, opts *Opts) *Dev {
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{bus: o, opts: *opts, clock: opts.Clock, log: opts.Logger}
	if d.opts.MaxPolls <= 0 {
		d.opts.MaxPolls = DefaultOpts.MaxPolls
	}
	if d.opts.PollInterval <= 0 {
		d.opts.PollInterval = DefaultOpts.PollInterval
	}
	if d.clock == nil {
		d.clock = &timebase.Host{}
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	return d
}

// Dev is a handle to a Dallas Semi / Maxim DS18B20 temperature sensor on a
// 1-wire bus.
type Dev struct {
	bus   Bus
	opts  Opts
	clock timebase.Clock
	log   *zap.Logger
}

func (d *Dev) String() string {
	return "DS18B20{" + d.bus.String() + "}"
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	return nil
}

// StartMeasurement starts a temperature conversion.
//
// A bus without a device is not reported; the following ReadTemperature
// fails instead. Only a broken bus master returns an error.
func (d *Dev) StartMeasurement() error {
	err := d.bus.Tx([]byte{cmdSkipROM, cmdConvertT}, nil, onewire.WeakPullup)
	if isBusError(err) {
		d.log.Debug("conversion not started", zap.Error(err))
		return nil
	}
	return err
}

// WaitForCompletion polls the bus until the sensor releases it, which marks
// the end of the conversion. It returns true if the sensor was still busy
// after all polls.
func (d *Dev) WaitForCompletion() (timedOut bool) {
	for n := 0; n < d.opts.MaxPolls; n++ {
		if d.bus.ReadBit() {
			return false
		}
		d.clock.Delay(d.opts.PollInterval)
	}
	d.log.Warn("conversion timed out",
		zap.Int("polls", d.opts.MaxPolls), zap.Duration("interval", d.opts.PollInterval))
	return true
}

// ReadTemperature reads the result of the last conversion in °C.
//
// It returns NaN if the scratchpad could not be read or its CRC does not
// match.
func (d *Dev) ReadTemperature() float64 {
	raw, err := d.ReadRaw()
	if err != nil {
		d.log.Warn("temperature read failed", zap.Error(err))
		return math.NaN()
	}
	return float64(raw) / 16
}

// ReadRaw reads the scratchpad and returns the raw temperature register in
// 1/16°C.
func (d *Dev) ReadRaw() (int16, error) {
	spad, err := d.readScratchpad()
	if err != nil {
		return 0, err
	}
	raw := int16(binary.LittleEndian.Uint16(spad[0:2]))
	// The device powers up with a value of 85°C; reading it usually means
	// no conversion ran.
	if raw == 85*16 {
		d.log.Debug("temperature equals the power-on value")
	}
	return raw, nil
}

// LastTemp reads the temperature resulting from the last conversion.
func (d *Dev) LastTemp() (physic.Temperature, error) {
	raw, err := d.ReadRaw()
	if err != nil {
		return 0, err
	}
	return rawToTemperature(raw), nil
}

// Sense implements physic.SenseEnv.
func (d *Dev) Sense(e *physic.Env) error {
	if err := d.StartMeasurement(); err != nil {
		return err
	}
	if d.WaitForCompletion() {
		return busError("ds18b20: conversion timed out")
	}
	t, err := d.LastTemp()
	if err != nil {
		return err
	}
	e.Temperature = t
	return nil
}

// SenseContinuous implements physic.SenseEnv.
//
// The driver is synchronous; call Sense from the measurement loop instead.
func (d *Dev) SenseContinuous(time.Duration) (<-chan physic.Env, error) {
	return nil, errors.New("ds18b20: continuous sensing not supported")
}

// Precision implements physic.SenseEnv.
func (d *Dev) Precision(e *physic.Env) {
	e.Temperature = physic.Kelvin / 16
}

// readScratchpad reads the 9 bytes of scratchpad and checks the CRC.
func (d *Dev) readScratchpad() ([]byte, error) {
	var spad [ScratchpadSize]byte
	if err := d.bus.Tx([]byte{cmdSkipROM, cmdReadScratchpad}, spad[:], onewire.WeakPullup); err != nil {
		return nil, err
	}
	if !common.CheckCRC8(spad[:]) {
		for _, s := range spad {
			if s != 0xff {
				return nil, busError("ds18b20: incorrect scratchpad CRC")
			}
		}
		return nil, busError("ds18b20: device did not respond")
	}
	// A line held low reads all zeros, which passes the CRC. Any other
	// scratchpad with a matching CRC is decoded.
	if spad == [ScratchpadSize]byte{} {
		return nil, busError("ds18b20: bus stuck low")
	}
	return spad[:], nil
}

// rawToTemperature converts the signed register value with 4 fractional bits.
// Datasheet p.4.
func rawToTemperature(raw int16) physic.Temperature {
	return physic.Temperature(raw)*physic.Kelvin/16 + physic.ZeroCelsius
}

func isBusError(err error) bool {
	var be onewire.BusError
	return errors.As(err, &be) && be.BusError()
}

// busError implements error and onewire.BusError.
type busError string

func (e busError) Error() string  { return string(e) }
func (e busError) BusError() bool { return true }

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
