// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"os"
	"strings"

	"github.com/GermanBionicSystems/fieldnode/nodeconfig"
	"github.com/GermanBionicSystems/fieldnode/rn2483"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

// decodeKey decodes the hex string s into dst, which it must fill exactly.
// Spaces and colons are ignored.
func decodeKey(dst []byte, name, s string) error {
	s = strings.NewReplacer(" ", "", ":", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return errors.Wrapf(err, "invalid %s", name)
	}
	if len(b) != len(dst) {
		return errors.Errorf("invalid %s: %d bytes, want %d", name, len(b), len(dst))
	}
	copy(dst, b)
	return nil
}

// loadConfig reads the node configuration blob at path.
func loadConfig(path string) (*nodeconfig.Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	cfg, err := nodeconfig.Parse(b)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return cfg, nil
}

// activation returns the activation selected by the flags. The ABP keys of
// a configuration blob take precedence over the key flags.
func activation(c *cli.Context, cfg *nodeconfig.Config) (rn2483.Activation, error) {
	adr := c.Bool("adr")
	switch mode := c.String("mode"); mode {
	case "abp":
		if cfg != nil {
			return cfg.ABP(adr), nil
		}
		a := &rn2483.ABP{ADR: adr}
		if err := decodeKey(a.DevAddr[:], "devaddr", c.String("devaddr")); err != nil {
			return nil, err
		}
		if err := decodeKey(a.AppSKey[:], "appskey", c.String("appskey")); err != nil {
			return nil, err
		}
		if err := decodeKey(a.NwkSKey[:], "nwkskey", c.String("nwkskey")); err != nil {
			return nil, err
		}
		return a, nil
	case "otaa":
		a := &rn2483.OTAA{ADR: adr}
		if err := decodeKey(a.DevEUI[:], "deveui", c.String("deveui")); err != nil {
			return nil, err
		}
		if err := decodeKey(a.AppEUI[:], "appeui", c.String("appeui")); err != nil {
			return nil, err
		}
		if err := decodeKey(a.AppKey[:], "appkey", c.String("appkey")); err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, errors.Errorf("unknown activation mode %q", mode)
	}
}

// activationFlags are shared by the commands that join.
func activationFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "mode", Value: "abp", Usage: "activation mode, abp or otaa", EnvVars: []string{"SENSORNODE_MODE"}},
		&cli.BoolFlag{Name: "adr", Usage: "enable adaptive data rate", EnvVars: []string{"SENSORNODE_ADR"}},
		&cli.StringFlag{Name: "devaddr", Usage: "ABP device address, hex", EnvVars: []string{"SENSORNODE_DEVADDR"}},
		&cli.StringFlag{Name: "appskey", Usage: "ABP application session key, hex", EnvVars: []string{"SENSORNODE_APPSKEY"}},
		&cli.StringFlag{Name: "nwkskey", Usage: "ABP network session key, hex", EnvVars: []string{"SENSORNODE_NWKSKEY"}},
		&cli.StringFlag{Name: "deveui", Usage: "OTAA device EUI, hex", EnvVars: []string{"SENSORNODE_DEVEUI"}},
		&cli.StringFlag{Name: "appeui", Usage: "OTAA application EUI, hex", EnvVars: []string{"SENSORNODE_APPEUI"}},
		&cli.StringFlag{Name: "appkey", Usage: "OTAA application key, hex", EnvVars: []string{"SENSORNODE_APPKEY"}},
	}
}
