// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// ttn-listener prints the measurements the sensor nodes of an application
// send, as seen on The Things Stack MQTT integration.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/GermanBionicSystems/fieldnode/internal/clilog"
)

func main() {
	log := zap.NewNop()
	app := &cli.App{
		Name:  "ttn-listener",
		Usage: "log sensor node uplinks from The Things Stack",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Value: "tcp://eu1.cloud.thethings.network:1883", Usage: "MQTT broker", EnvVars: []string{"TTN_HOST"}},
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Value: "gfroerli-test@ttn", Usage: "MQTT user name, the application id", EnvVars: []string{"TTN_USER"}},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Required: true, Usage: "MQTT password, an API key", EnvVars: []string{"TTN_PASSWORD"}},
			&cli.StringFlag{Name: "client-id", Value: "ttn-listener", Usage: "MQTT client id", EnvVars: []string{"TTN_CLIENT_ID"}},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "more logging"},
		},
		Before: func(c *cli.Context) error {
			log = clilog.New(c.Bool("verbose"))
			return nil
		},
		Action: func(c *cli.Context) error {
			l := newListener(log, c.String("host"), c.String("user"), c.String("password"), c.String("client-id"))
			return l.run(c.Context)
		},
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Error("failed", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	_ = log.Sync()
}
