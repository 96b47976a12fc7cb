// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/GermanBionicSystems/fieldnode/measurement"
	"github.com/GermanBionicSystems/fieldnode/nodeconfig"
	"github.com/GermanBionicSystems/fieldnode/rn2483"
	"github.com/GermanBionicSystems/fieldnode/timebase"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/physic"
)

type waterSensor interface {
	StartMeasurement() error
	WaitForCompletion() (timedOut bool)
	ReadRaw() (int16, error)
}

type insideSensor interface {
	ReadRaw() (t, rh uint16, err error)
}

type radio interface {
	Join(a rn2483.Activation) error
	Send(port uint8, payload []byte, confirmed bool) rn2483.Outcome
	Receive(out []byte, offset int) int
	LastPort() (uint8, bool)
	ClearReceived()
	VDD() (physic.ElectricPotential, error)
	Sleep(d time.Duration) error
	WakeUp() error
}

var encode = (*measurement.Message).MarshalBinary

// node runs the measure and transmit cycle.
type node struct {
	water      waterSensor
	inside     insideSensor // optional
	radio      radio
	power      timebase.LowPower
	cfg        *nodeconfig.Config
	activation rn2483.Activation
	log        *zap.Logger
}

// cycle measures what the plan of wake-up i asks for and sends it.
func (n *node) cycle(i uint32) rn2483.Outcome {
	tempHumi, voltage := n.cfg.Plan(i)
	if !tempHumi && !voltage {
		return rn2483.NoError
	}
	var msg measurement.Message
	if tempHumi {
		n.measureWater(&msg)
		if n.inside != nil {
			if t, rh, err := n.inside.ReadRaw(); err != nil {
				n.log.Warn("inside sensor failed", zap.Error(err))
			} else {
				msg.SetInside(t, rh)
			}
		}
	}
	if voltage {
		if v, err := n.radio.VDD(); err != nil {
			n.log.Warn("supply voltage failed", zap.Error(err))
		} else {
			msg.SetSupplyVoltage(v)
		}
	}
	b, err := encode(&msg)
	if err != nil {
		n.log.Error("encoding failed, cycle skipped", zap.Uint32("cycle", i), zap.Error(err))
		return rn2483.InternalError
	}
	n.log.Info("transmitting", zap.Uint32("cycle", i), zap.Stringer("measurement", &msg), zap.String("payload", hex.EncodeToString(b)))
	o := n.radio.Send(measurement.Port, b, false)
	if o == rn2483.NotConnected {
		n.log.Warn("not joined, joining again")
		if err := n.radio.Join(n.activation); err != nil {
			n.log.Warn("join failed", zap.Error(err))
		}
	}
	n.downlink()
	return o
}

func (n *node) measureWater(msg *measurement.Message) {
	if err := n.water.StartMeasurement(); err != nil {
		n.log.Warn("water sensor failed", zap.Error(err))
		return
	}
	if n.water.WaitForCompletion() {
		n.log.Warn("water sensor conversion timed out")
		return
	}
	raw, err := n.water.ReadRaw()
	if err != nil {
		n.log.Warn("water sensor failed", zap.Error(err))
		return
	}
	msg.SetWaterTemp(raw)
}

func (n *node) downlink() {
	var buf [16]byte
	c := n.radio.Receive(buf[:], 0)
	if c == 0 {
		return
	}
	port, _ := n.radio.LastPort()
	n.log.Info("downlink", zap.Uint8("port", port), zap.String("payload", hex.EncodeToString(buf[:c])))
	n.radio.ClearReceived()
}

// run loops until ctx is canceled, putting the radio and the node to sleep
// for the wake-up interval between cycles.
func (n *node) run(ctx context.Context) error {
	interval := n.cfg.Interval()
	if interval <= 0 {
		interval = time.Minute
	}
	for i := uint32(0); ctx.Err() == nil; i++ {
		if o := n.cycle(i); o != rn2483.NoError {
			n.log.Warn("transmit failed", zap.Stringer("outcome", o))
		}
		if err := n.radio.Sleep(interval); err != nil {
			return err
		}
		n.suspend(ctx, interval)
		if err := n.radio.WakeUp(); err != nil {
			return err
		}
	}
	return nil
}

// suspend enters low power for d in steps, so cancellation is seen within a
// second.
func (n *node) suspend(ctx context.Context, d time.Duration) {
	for d > 0 && ctx.Err() == nil {
		step := min(d, time.Second)
		n.power.EnterLowPower(step)
		d -= step
	}
}
