// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/GermanBionicSystems/fieldnode/ds18b20"
	"github.com/GermanBionicSystems/fieldnode/lineio"
	"github.com/GermanBionicSystems/fieldnode/onewiregpio"
	"github.com/GermanBionicSystems/fieldnode/rn2483"
	"github.com/GermanBionicSystems/fieldnode/shtc3"
	"github.com/GermanBionicSystems/fieldnode/timebase"
)

// hardware holds the peripherals opened for a command.
type hardware struct {
	clock   *timebase.Host
	bus     *onewiregpio.Bus
	water   *ds18b20.Dev
	inside  *shtc3.Dev
	radio   *rn2483.Dev
	closers []func() error
}

func (h *hardware) close() {
	for i := len(h.closers) - 1; i >= 0; i-- {
		_ = h.closers[i]()
	}
}

func initHost(log *zap.Logger) (*timebase.Host, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "host init")
	}
	clock := &timebase.Host{}
	log.Debug("timebase calibrated", zap.Duration("granularity", clock.CalibrateTimebase()))
	return clock, nil
}

// openBus opens the 1-wire bus and the DS18B20 on it.
func (h *hardware) openBus(c *cli.Context, log *zap.Logger) error {
	name := c.String("pin")
	p := gpioreg.ByName(name)
	if p == nil {
		return errors.Errorf("unknown pin %q", name)
	}
	bus, err := onewiregpio.New(p, &onewiregpio.Opts{Timing: onewiregpio.DefaultTiming, Clock: h.clock})
	if err != nil {
		return err
	}
	h.bus = bus
	h.closers = append(h.closers, bus.Halt)
	opts := ds18b20.DefaultOpts
	opts.Clock = h.clock
	opts.Logger = log.Named("ds18b20")
	h.water = ds18b20.New(bus, &opts)
	return nil
}

// openInside opens the SHTC3, unless disabled.
func (h *hardware) openInside(c *cli.Context) error {
	if c.Bool("no-inside") {
		return nil
	}
	bus, err := i2creg.Open(c.String("i2c"))
	if err != nil {
		return errors.Wrap(err, "i2c")
	}
	h.closers = append(h.closers, bus.Close)
	d, err := shtc3.New(bus, shtc3.DefaultAddress, &shtc3.DefaultOpts)
	if err != nil {
		return err
	}
	h.inside = d
	return nil
}

// openRadio opens the serial port and the RN2483 on it.
func (h *hardware) openRadio(c *cli.Context, log *zap.Logger) error {
	port, err := lineio.Open(c.String("serial"), c.Int("baud"))
	if err != nil {
		return err
	}
	h.closers = append(h.closers, port.Close)
	h.radio = rn2483.New(port, nil, rn2483.WithLogger(log.Named("rn2483")), rn2483.WithClock(h.clock))
	return nil
}

// open initializes the host and opens the peripherals a command asks for.
func open(c *cli.Context, log *zap.Logger, water, inside, radio bool) (*hardware, error) {
	clock, err := initHost(log)
	if err != nil {
		return nil, err
	}
	h := &hardware{clock: clock}
	if water {
		if err := h.openBus(c, log); err != nil {
			h.close()
			return nil, err
		}
	}
	if inside {
		if err := h.openInside(c); err != nil {
			h.close()
			return nil, err
		}
	}
	if radio {
		if err := h.openRadio(c, log); err != nil {
			h.close()
			return nil, err
		}
	}
	return h, nil
}
