// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package measurement

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/physic"
)

var all = Message{
	Present:        WaterTemp | InsideTemp | InsideHumidity | SupplyVoltage,
	WaterTemp:      0b0000_0101_1010,
	InsideTemp:     0b1100_0011_1010_0101,
	InsideHumidity: 0b0011_1100_0101_1010,
	SupplyVoltage:  0b1111_1010_0101,
}

var allEncoded = []byte{
	0x0F,
	0b0000_0101,
	0b1010_1100,
	0b0011_1010,
	0b0101_0011,
	0b1100_0101,
	0b1010_1111,
	0b1010_0101,
}

func TestMarshalBinary(t *testing.T) {
	data := []struct {
		name string
		m    Message
		want []byte
	}{
		{"empty", Message{}, []byte{0}},
		{"water", Message{Present: WaterTemp, WaterTemp: 0b0000_0101_1010}, []byte{1, 0b0000_0101, 0b1010_0000}},
		{"all", all, allEncoded},
		{"inside", Message{Present: InsideTemp | InsideHumidity, InsideTemp: 0x1234, InsideHumidity: 0xABCD}, []byte{0x06, 0x12, 0x34, 0xAB, 0xCD}},
		{"water and supply", Message{Present: WaterTemp | SupplyVoltage, WaterTemp: 0x123, SupplyVoltage: 0xCE4}, []byte{0x09, 0x12, 0x3C, 0xE4}},
		{"supply", Message{Present: SupplyVoltage, SupplyVoltage: 0xFFF}, []byte{0x08, 0xFF, 0xF0}},
		{"clamped", Message{Present: WaterTemp, WaterTemp: 0xFFFF}, []byte{1, 0xFF, 0xF0}},
		{"ignored", Message{WaterTemp: 0x123}, []byte{0}},
	}
	for _, line := range data {
		t.Run(line.name, func(t *testing.T) {
			got, err := line.m.MarshalBinary()
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(line.want, got); diff != "" {
				t.Fatalf("(-want +got):\n%s", diff)
			}
		})
	}
	if b, _ := all.MarshalBinary(); len(b) != MaxLen {
		t.Fatalf("len = %d", len(b))
	}
}

func TestDecode(t *testing.T) {
	m, err := Decode(allEncoded)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(&all, m); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	m, err = Decode([]byte{1, 0b0000_0101, 0b1010_0000})
	if err != nil {
		t.Fatal(err)
	}
	if m.Present != WaterTemp || m.WaterTemp != 0x5A {
		t.Fatalf("%+v", m)
	}
}

func TestDecode_errors(t *testing.T) {
	data := []struct {
		name string
		in   []byte
	}{
		{"empty", nil},
		{"short", []byte{1, 0x05}},
		{"short all", allEncoded[:7]},
		{"unknown field", []byte{0x10}},
	}
	for _, line := range data {
		if _, err := Decode(line.in); err == nil {
			t.Errorf("%s: expected error", line.name)
		}
	}
	if _, err := Decode(allEncoded[:7]); !errors.Is(err, ErrTruncated) {
		t.Fatalf("got %v", err)
	}
}

func TestSetters(t *testing.T) {
	var m Message
	m.SetWaterTemp(401)
	m.SetInside(0x6666, 0x8000)
	m.SetSupplyVoltage(3300 * physic.MilliVolt)
	if m.Present != WaterTemp|InsideTemp|InsideHumidity|SupplyVoltage {
		t.Fatalf("Present = %#x", m.Present)
	}
	if want := physic.ZeroCelsius + 25062500*physic.MicroKelvin; m.Water() != want {
		t.Fatalf("Water() = %s; want %s", m.Water(), want)
	}
	if m.Supply() != 3300*physic.MilliVolt {
		t.Fatalf("Supply() = %s", m.Supply())
	}
	if m.Humidity() != 50*physic.PercentRH {
		t.Fatalf("Humidity() = %s", m.Humidity())
	}
	// -45 + 175 * 0x6666 / 65536
	if got := m.Inside().Celsius(); got < 24.99 || got > 25.0 {
		t.Fatalf("Inside() = %s", m.Inside())
	}
}

func TestSetters_clamp(t *testing.T) {
	var m Message
	m.SetWaterTemp(-10)
	if m.WaterTemp != 0 {
		t.Fatal(m.WaterTemp)
	}
	b, err := m.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	d, err := Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if d.Water() != physic.ZeroCelsius {
		t.Fatalf("sub-zero decodes as %s", d.Water())
	}
	m.SetWaterTemp(0x1000)
	if m.WaterTemp != 0xFFF {
		t.Fatal(m.WaterTemp)
	}
	m.SetSupplyVoltage(5 * physic.Volt)
	if m.SupplyVoltage != 0xFFF {
		t.Fatal(m.SupplyVoltage)
	}
}

func TestString(t *testing.T) {
	m := Message{Present: WaterTemp | SupplyVoltage, WaterTemp: 16 * 20, SupplyVoltage: 3300}
	want := "{water: " + m.Water().String() + ", supply: " + m.Supply().String() + "}"
	if s := m.String(); s != want {
		t.Fatalf("%q; want %q", s, want)
	}
	if s := (&Message{}).String(); s != "{}" {
		t.Fatal(s)
	}
}
