// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/onewire/onewiretest"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/fieldnode/timebase/timebasetest"
)

// playbackBus adds scripted read slots to onewiretest.Playback.
type playbackBus struct {
	onewiretest.Playback
	bits  []bool
	reads int
}

func (p *playbackBus) ReadBit() bool {
	p.reads++
	if len(p.bits) == 0 {
		return false
	}
	b := p.bits[0]
	p.bits = p.bits[1:]
	return b
}

// absentBus is a bus without any device on it.
type absentBus struct {
	txs int
}

func (a *absentBus) String() string { return "absent" }
func (a *absentBus) Halt() error    { return nil }
func (a *absentBus) Tx(w, r []byte, power onewire.Pullup) error {
	a.txs++
	return busError("no device present")
}
func (a *absentBus) Search(bool) ([]onewire.Address, error) { return nil, nil }
func (a *absentBus) ReadBit() bool                          { return true }

var (
	spad85      = []byte{0x50, 0x05, 0x4b, 0x46, 0x7f, 0xff, 0x0c, 0x10, 0x1c}
	spad25      = []byte{0x91, 0x01, 0x4b, 0x46, 0x7f, 0xff, 0x0f, 0x10, 0x25}
	spadMinus25 = []byte{0x6f, 0xfe, 0x4b, 0x46, 0x7f, 0xff, 0x01, 0x10, 0x61}
)

func newDev(t *testing.T, b Bus, clk *timebasetest.Clock) *Dev {
	return New(b, &Opts{MaxPolls: 100, PollInterval: 10 * time.Millisecond, Clock: clk, Logger: zaptest.NewLogger(t)})
}

func TestStartMeasurement(t *testing.T) {
	bus := &playbackBus{Playback: onewiretest.Playback{Ops: []onewiretest.IO{
		{W: []byte{0xcc, 0x44}},
	}}}
	d := newDev(t, bus, &timebasetest.Clock{})
	if err := d.StartMeasurement(); err != nil {
		t.Fatal(err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestStartMeasurement_noDevice(t *testing.T) {
	bus := &absentBus{}
	d := newDev(t, bus, &timebasetest.Clock{})
	if err := d.StartMeasurement(); err != nil {
		t.Fatalf("a missing device is not reported: %v", err)
	}
	if !math.IsNaN(d.ReadTemperature()) {
		t.Fatal("expected NaN without a device")
	}
	if bus.txs != 2 {
		t.Fatalf("%d transactions", bus.txs)
	}
}

func TestStartMeasurement_masterError(t *testing.T) {
	bus := &playbackBus{Playback: onewiretest.Playback{DontPanic: true}}
	d := newDev(t, bus, &timebasetest.Clock{})
	if err := d.StartMeasurement(); err == nil {
		t.Fatal("expected the playback error to be returned")
	}
}

func TestWaitForCompletion(t *testing.T) {
	clk := &timebasetest.Clock{Record: true}
	bus := &playbackBus{bits: []bool{false, false, false, true}}
	d := newDev(t, bus, clk)
	if d.WaitForCompletion() {
		t.Fatal("unexpected timeout")
	}
	if bus.reads != 4 {
		t.Fatalf("%d polls", bus.reads)
	}
	want := []time.Duration{10 * time.Millisecond, 10 * time.Millisecond, 10 * time.Millisecond}
	if diff := cmp.Diff(want, clk.Delays); diff != "" {
		t.Fatalf("poll delays (-want +got):\n%s", diff)
	}
}

func TestWaitForCompletion_timeout(t *testing.T) {
	clk := &timebasetest.Clock{}
	bus := &playbackBus{}
	d := newDev(t, bus, clk)
	start := clk.Now()
	if !d.WaitForCompletion() {
		t.Fatal("expected timeout")
	}
	if bus.reads != 100 {
		t.Fatalf("%d polls", bus.reads)
	}
	if got := clk.Now().Sub(start); got != time.Second {
		t.Fatalf("waited %s", got)
	}
}

func TestReadTemperature(t *testing.T) {
	for _, test := range []struct {
		spad []byte
		want float64
	}{
		{spad85, 85},
		{spad25, 25.0625},
		{spadMinus25, -25.0625},
	} {
		t.Run(fmt.Sprint(test.want), func(t *testing.T) {
			bus := &playbackBus{Playback: onewiretest.Playback{Ops: []onewiretest.IO{
				{W: []byte{0xcc, 0xbe}, R: test.spad},
			}}}
			d := newDev(t, bus, &timebasetest.Clock{})
			if got := d.ReadTemperature(); got != test.want {
				t.Fatalf("ReadTemperature() = %f, want %f", got, test.want)
			}
			if err := bus.Close(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestReadTemperature_badCRC(t *testing.T) {
	for name, spad := range map[string][]byte{
		"crc":      {0x91, 0x01, 0x4b, 0x46, 0x7f, 0xff, 0x0f, 0x10, 0x26},
		"bit flip": {0x91, 0x03, 0x4b, 0x46, 0x7f, 0xff, 0x0f, 0x10, 0x25},
		"absent":   {0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		"stuck":    {0, 0, 0, 0, 0, 0, 0, 0, 0},
	} {
		t.Run(name, func(t *testing.T) {
			bus := &playbackBus{Playback: onewiretest.Playback{Ops: []onewiretest.IO{
				{W: []byte{0xcc, 0xbe}, R: spad},
			}}}
			d := newDev(t, bus, &timebasetest.Clock{})
			if got := d.ReadTemperature(); !math.IsNaN(got) {
				t.Fatalf("ReadTemperature() = %f, want NaN", got)
			}
		})
	}
}

// A zero configuration byte and CRC byte are not mistaken for a stuck bus
// when the CRC matches.
func TestReadTemperature_zeroCRCByte(t *testing.T) {
	bus := &playbackBus{Playback: onewiretest.Playback{Ops: []onewiretest.IO{
		{W: []byte{0xcc, 0xbe}, R: []byte{0x91, 0x01, 0x4b, 0x46, 0x00, 0xff, 0x0f, 0xd6, 0x00}},
	}}}
	d := newDev(t, bus, &timebasetest.Clock{})
	if got := d.ReadTemperature(); got != 25.0625 {
		t.Fatalf("ReadTemperature() = %f, want 25.0625", got)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestRawToTemperature(t *testing.T) {
	var testData = []struct {
		raw  int16
		want float64
	}{
		{0x07d0, 125},
		{0x0550, 85},
		{0x0191, 25.0625},
		{0x00a2, 10.125},
		{0x0008, 0.5},
		{0x0000, 0},
		{-8, -0.5},
		{-162, -10.125},
		{-401, -25.0625},
		{-880, -55},
	}
	for _, entry := range testData {
		if c := rawToTemperature(entry.raw).Celsius(); c != entry.want {
			t.Errorf("rawToTemperature(%#x) = %f, want %f", entry.raw, c, entry.want)
		}
	}
}

// TestSense runs a full conversion on recorded bus transactions.
func TestSense(t *testing.T) {
	bus := &playbackBus{
		Playback: onewiretest.Playback{Ops: []onewiretest.IO{
			{W: []byte{0xcc, 0x44}},
			{W: []byte{0xcc, 0xbe}, R: spad25},
		}},
		bits: []bool{false, true},
	}
	d := newDev(t, bus, &timebasetest.Clock{})
	if s := d.String(); s != "DS18B20{playback}" {
		t.Fatal(s)
	}
	e := physic.Env{}
	if err := d.Sense(&e); err != nil {
		t.Fatal(err)
	}
	if expected := 25062500*physic.MicroKelvin + physic.ZeroCelsius; e.Temperature != expected {
		t.Errorf("expected %s, got %s", expected, e.Temperature)
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
	d.Precision(&e)
	if e.Temperature != physic.Kelvin/16 {
		t.Fatalf("precision %s", e.Temperature)
	}
	if _, err := d.SenseContinuous(time.Second); err == nil {
		t.Fatal("expected error")
	}
}

func TestSense_timeout(t *testing.T) {
	bus := &playbackBus{Playback: onewiretest.Playback{Ops: []onewiretest.IO{
		{W: []byte{0xcc, 0x44}},
	}}}
	d := newDev(t, bus, &timebasetest.Clock{})
	if err := d.Sense(&physic.Env{}); err == nil {
		t.Fatal("expected a conversion timeout")
	}
}

func TestNew_defaults(t *testing.T) {
	d := New(&absentBus{}, &Opts{})
	if d.opts.MaxPolls != 100 || d.opts.PollInterval != 10*time.Millisecond {
		t.Fatalf("unexpected defaults %+v", d.opts)
	}
	if d.clock == nil || d.log == nil {
		t.Fatal("missing clock or logger")
	}
}
