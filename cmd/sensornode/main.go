// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// sensornode runs a water temperature sensor node: a DS18B20 on a bit-banged
// 1-wire pin, an optional SHTC3 for the enclosure climate and an RN2483 LoRa
// modem on a serial port.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/fieldnode/internal/clilog"
	"github.com/GermanBionicSystems/fieldnode/nodeconfig"
	"github.com/GermanBionicSystems/fieldnode/rn2483"
)

type app struct {
	log *zap.Logger
}

func main() {
	a := &app{log: zap.NewNop()}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := a.cli().RunContext(ctx, os.Args); err != nil {
		a.log.Error("failed", zap.Error(err))
		_ = a.log.Sync()
		os.Exit(1)
	}
	_ = a.log.Sync()
}

func (a *app) cli() *cli.App {
	return &cli.App{
		Name:  "sensornode",
		Usage: "water temperature LoRaWAN sensor node",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "serial", Aliases: []string{"s"}, Value: "/dev/ttyUSB0", Usage: "serial port of the RN2483", EnvVars: []string{"SENSORNODE_SERIAL"}},
			&cli.IntFlag{Name: "baud", Value: rn2483.BaudRate, Usage: "serial baud rate", EnvVars: []string{"SENSORNODE_BAUD"}},
			&cli.StringFlag{Name: "pin", Value: "GPIO4", Usage: "GPIO pin of the 1-wire bus", EnvVars: []string{"SENSORNODE_PIN"}},
			&cli.StringFlag{Name: "i2c", Usage: "I²C bus of the SHTC3, first available if empty", EnvVars: []string{"SENSORNODE_I2C"}},
			&cli.BoolFlag{Name: "no-inside", Usage: "run without the SHTC3"},
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "node configuration blob", EnvVars: []string{"SENSORNODE_CONFIG"}},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log the serial traffic"},
		},
		Before: func(c *cli.Context) error {
			a.log = clilog.New(c.Bool("verbose"))
			return nil
		},
		Commands: []*cli.Command{
			{Name: "scan", Usage: "list the devices on the 1-wire bus", Action: a.scan},
			{Name: "measure", Usage: "measure once and print the result", Action: a.measure},
			{Name: "hweui", Usage: "print the hardware EUI of the modem", Action: a.hweui},
			{Name: "vdd", Usage: "print the supply voltage seen by the modem", Action: a.vdd},
			{Name: "join", Usage: "join the network", Flags: activationFlags(), Action: a.join},
			{
				Name:   "run",
				Usage:  "measure and transmit until interrupted",
				Flags:  append(activationFlags(), planFlags()...),
				Action: a.run,
			},
			{
				Name:  "config",
				Usage: "manage node configuration blobs",
				Subcommands: []*cli.Command{
					{
						Name:      "write",
						Usage:     "write a configuration blob",
						ArgsUsage: "<file>",
						Flags:     append(activationFlags(), planFlags()...),
						Action:    a.configWrite,
					},
					{Name: "show", Usage: "print a configuration blob", ArgsUsage: "<file>", Action: a.configShow},
				},
			},
		},
	}
}

func planFlags() []cli.Flag {
	return []cli.Flag{
		&cli.UintFlag{Name: "interval", Value: 60, Usage: "wake-up interval in seconds"},
		&cli.UintFlag{Name: "nth-temp-humi", Value: 1, Usage: "measure temperatures every n wake-ups, 0 never"},
		&cli.UintFlag{Name: "nth-voltage", Value: 10, Usage: "measure the supply voltage every n wake-ups, 0 never"},
	}
}

func (a *app) scan(c *cli.Context) error {
	h, err := open(c, a.log, true, false, false)
	if err != nil {
		return err
	}
	defer h.close()
	addrs, err := h.bus.Search(false)
	if err != nil {
		return err
	}
	for _, addr := range addrs {
		a.log.Info("found", zap.String("address", fmt.Sprintf("%016x", uint64(addr))))
	}
	a.log.Info("scan done", zap.Int("devices", len(addrs)))
	return nil
}

func (a *app) measure(c *cli.Context) error {
	h, err := open(c, a.log, true, true, false)
	if err != nil {
		return err
	}
	defer h.close()
	var e physic.Env
	if err := h.water.Sense(&e); err != nil {
		return err
	}
	a.log.Info("water", zap.Stringer("temperature", e.Temperature))
	if h.inside != nil {
		if err := h.inside.Sense(&e); err != nil {
			return err
		}
		a.log.Info("inside", zap.Stringer("temperature", e.Temperature), zap.Stringer("humidity", e.Humidity))
	}
	return nil
}

// openModem opens the radio and brings it to a known state.
func (a *app) openModem(c *cli.Context) (*hardware, error) {
	h, err := open(c, a.log, false, false, true)
	if err != nil {
		return nil, err
	}
	if err := h.radio.Sync(); err != nil {
		h.close()
		return nil, err
	}
	if err := h.radio.ResetDevice(); err != nil {
		h.close()
		return nil, err
	}
	a.log.Info("modem ready", zap.Stringer("variant", h.radio.Variant()))
	return h, nil
}

func (a *app) hweui(c *cli.Context) error {
	h, err := a.openModem(c)
	if err != nil {
		return err
	}
	defer h.close()
	eui, err := h.radio.HWEUI()
	if err != nil {
		return err
	}
	a.log.Info("hardware EUI", zap.String("eui", fmt.Sprintf("%X", eui)))
	return nil
}

func (a *app) vdd(c *cli.Context) error {
	h, err := a.openModem(c)
	if err != nil {
		return err
	}
	defer h.close()
	v, err := h.radio.VDD()
	if err != nil {
		return err
	}
	a.log.Info("supply", zap.Stringer("voltage", v))
	return nil
}

// config returns the configuration blob named by --config, or nil.
func (a *app) config(c *cli.Context) (*nodeconfig.Config, error) {
	path := c.String("config")
	if path == "" {
		return nil, nil
	}
	return loadConfig(path)
}

func (a *app) join(c *cli.Context) error {
	cfg, err := a.config(c)
	if err != nil {
		return err
	}
	act, err := activation(c, cfg)
	if err != nil {
		return err
	}
	h, err := open(c, a.log, false, false, true)
	if err != nil {
		return err
	}
	defer h.close()
	return h.radio.Init(act)
}

func (a *app) run(c *cli.Context) error {
	cfg, err := a.config(c)
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = planConfig(c)
	}
	act, err := activation(c, cfg)
	if err != nil {
		return err
	}
	h, err := open(c, a.log, true, true, true)
	if err != nil {
		return err
	}
	defer h.close()
	if err := h.radio.Init(act); err != nil {
		return err
	}
	n := &node{
		water:      h.water,
		radio:      h.radio,
		power:      h.clock,
		cfg:        cfg,
		activation: act,
		log:        a.log,
	}
	if h.inside != nil {
		n.inside = h.inside
	}
	a.log.Info("running", zap.Duration("interval", cfg.Interval()),
		zap.Uint8("nth_temp_humi", cfg.NthTempHumi), zap.Uint8("nth_voltage", cfg.NthVoltage))

	g, ctx := errgroup.WithContext(c.Context)
	g.Go(func() error { return n.run(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		a.log.Info("shutting down")
		return nil
	})
	return g.Wait()
}

// planConfig builds a configuration from the plan flags.
func planConfig(c *cli.Context) *nodeconfig.Config {
	return &nodeconfig.Config{
		WakeupInterval: uint16(c.Uint("interval")),
		NthTempHumi:    uint8(c.Uint("nth-temp-humi")),
		NthVoltage:     uint8(c.Uint("nth-voltage")),
	}
}

func (a *app) configWrite(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return errors.New("missing output file")
	}
	cfg := planConfig(c)
	act, err := activation(c, nil)
	if err != nil {
		return err
	}
	abp, ok := act.(*rn2483.ABP)
	if !ok {
		return errors.New("configuration blobs hold ABP keys only")
	}
	cfg.DevAddr = abp.DevAddr
	cfg.AppSKey = abp.AppSKey
	cfg.NwkSKey = abp.NwkSKey
	b, err := cfg.MarshalBinary()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return errors.WithStack(err)
	}
	a.log.Info("written", zap.String("file", path), zap.Int("bytes", len(b)))
	return nil
}

func (a *app) configShow(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return errors.New("missing file")
	}
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	a.log.Info("config",
		zap.String("devaddr", fmt.Sprintf("%X", cfg.DevAddr)),
		zap.Duration("interval", cfg.Interval()),
		zap.Uint8("nth_temp_humi", cfg.NthTempHumi),
		zap.Uint8("nth_voltage", cfg.NthVoltage))
	return nil
}
