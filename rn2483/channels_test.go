// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package rn2483

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/GermanBionicSystems/fieldnode/lineio/lineiotest"
	"periph.io/x/conn/v3/physic"
)

func TestSetters(t *testing.T) {
	d, p, _ := newDev(t,
		cmd("mac set pwridx 3", "ok"),
		cmd("mac set linkchk 600", "ok"),
		cmd("mac set bat 254", "ok"),
		cmd("mac set ch freq 3 867100000", "ok"),
		cmd("mac set ch freq 4 433175000", "ok"),
		cmd("mac set ch dcycle 3 99", "ok"),
		cmd("mac set ch dcycle 4 0", "ok"),
		cmd("mac set ch drrange 3 0 5", "ok"),
		cmd("mac set ch status 3 on", "ok"),
		cmd("mac forceENABLE", "ok"),
	)
	steps := []func() error{
		func() error { return d.SetPowerIndex(3) },
		func() error { return d.SetLinkCheckInterval(600) },
		func() error { return d.SetBattery(254) },
		func() error { return d.SetChannelFreq(3, 867100*physic.KiloHertz) },
		func() error { return d.SetChannelFreq(4, 433175*physic.KiloHertz) },
		func() error { return d.SetDutyCycle(3, 1) },
		func() error { return d.SetDutyCycle(4, 100) },
		func() error { return d.SetDRRange(3, 0, 5) },
		func() error { return d.SetChannelStatus(3, true) },
		d.ForceEnable,
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("#%d: %v", i, err)
		}
	}
	closePlayback(t, p)
}

func TestSetters_invalid(t *testing.T) {
	// Nothing is written for invalid arguments.
	d, p, _ := newDev(t)
	steps := []func() error{
		func() error { return d.SetChannelFreq(2, 868*physic.MegaHertz) },
		func() error { return d.SetChannelFreq(16, 868*physic.MegaHertz) },
		func() error { return d.SetChannelFreq(3, 915*physic.MegaHertz) },
		func() error { return d.SetChannelFreq(3, 862*physic.MegaHertz) },
		func() error { return d.SetDutyCycle(16, 1) },
		func() error { return d.SetDutyCycle(3, 0) },
		func() error { return d.SetDutyCycle(3, 101) },
		func() error { return d.SetDRRange(16, 0, 5) },
		func() error { return d.SetDRRange(3, 8, 5) },
		func() error { return d.SetDRRange(3, 0, 8) },
		func() error { return d.SetChannelStatus(16, false) },
		func() error { return d.SetSpreadingFactor(6) },
		func() error { return d.SetSpreadingFactor(13) },
		func() error { return d.SetFSBChannels(9) },
	}
	for i, step := range steps {
		if err := step(); err == nil {
			t.Fatalf("#%d: expected error", i)
		}
	}
	closePlayback(t, p)
}

func TestSetSpreadingFactor(t *testing.T) {
	d, p, _ := newDev(t,
		cmd("mac set dr 5", "ok"),
		cmd("mac set dr 0", "ok"),
	)
	if err := d.SetSpreadingFactor(7); err != nil {
		t.Fatal(err)
	}
	if err := d.SetSpreadingFactor(12); err != nil {
		t.Fatal(err)
	}
	closePlayback(t, p)

	d, p, _ = newDev(t, cmd("mac set dr 0", "ok"))
	d.variant = RN2903
	if err := d.SetSpreadingFactor(10); err != nil {
		t.Fatal(err)
	}
	if err := d.SetSpreadingFactor(11); err == nil {
		t.Fatal("expected error")
	}
	closePlayback(t, p)
}

func TestSetFSBChannels_all(t *testing.T) {
	var ops []lineiotest.IO
	for i := 0; i < 72; i++ {
		ops = append(ops, cmd(fmt.Sprintf("mac set ch status %d on", i), "ok"))
	}
	d, p, _ := newDev(t, ops...)
	if err := d.SetFSBChannels(0); err != nil {
		t.Fatal(err)
	}
	closePlayback(t, p)
}

func TestSetFSBChannels_rejected(t *testing.T) {
	var ops []lineiotest.IO
	for i := 0; i < 72; i++ {
		state := "off"
		if (i >= 56 && i <= 63) || i == 71 {
			state = "on"
		}
		r := "ok"
		if i == 10 || i == 40 {
			r = "invalid_param"
		}
		ops = append(ops, cmd(fmt.Sprintf("mac set ch status %d %s", i, state), r))
	}
	d, p, _ := newDev(t, ops...)
	err := d.SetFSBChannels(8)
	if !errors.Is(err, ErrCommandRejected) {
		t.Fatalf("got %v", err)
	}
	if !strings.Contains(err.Error(), "2 of 72") {
		t.Fatal(err)
	}
	// All channels were attempted.
	closePlayback(t, p)
}
