// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package measurement encodes the uplink message of a sensor node.
//
// The first byte is a mask of the fields present. The present fields follow
// in mask bit order, packed most significant bit first without padding:
//
//	bit 0  water temperature     12 bits, DS18B20 raw, 1/16°C
//	bit 1  inside temperature    16 bits, SHTC3 ticks
//	bit 2  inside humidity       16 bits, SHTC3 ticks
//	bit 3  supply voltage        12 bits, mV
//
// The last byte is zero padded.
//
// The water temperature field is unsigned. A sub-zero reading is sent as 0
// and decodes as 0°C, so a decoded 0°C means "0°C or colder". Values above
// 255.9375°C saturate at 0xFFF.
package measurement

import (
	"fmt"

	"github.com/GermanBionicSystems/fieldnode/shtc3"
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/physic"
)

// MaxLen is the length of a message with all fields present.
const MaxLen = 8

// Port is the LoRaWAN port measurements are sent on.
const Port = 123

// Field is a bit of the presence mask.
type Field uint8

// Fields of a message, in encoding order.
const (
	WaterTemp Field = 1 << iota
	InsideTemp
	InsideHumidity
	SupplyVoltage

	allFields = WaterTemp | InsideTemp | InsideHumidity | SupplyVoltage
)

// ErrTruncated is returned when decoding a message shorter than its mask
// announces.
var ErrTruncated = errors.New("measurement: truncated message")

// Message is one measurement. Only the fields set in Present are encoded.
type Message struct {
	Present        Field
	WaterTemp      uint16 // 12 bits
	InsideTemp     uint16
	InsideHumidity uint16
	SupplyVoltage  uint16 // 12 bits
}

// SetWaterTemp sets the water temperature from a DS18B20 raw reading.
// Values outside of 0 to 0xFFF are clamped; below freezing reads as 0°C.
func (m *Message) SetWaterTemp(raw int16) {
	m.Present |= WaterTemp
	m.WaterTemp = u12(int(raw))
}

// SetInside sets the inside temperature and humidity from SHTC3 ticks.
func (m *Message) SetInside(t, rh uint16) {
	m.Present |= InsideTemp | InsideHumidity
	m.InsideTemp = t
	m.InsideHumidity = rh
}

// SetSupplyVoltage sets the supply voltage, clamped to 4.095V.
func (m *Message) SetSupplyVoltage(v physic.ElectricPotential) {
	m.Present |= SupplyVoltage
	m.SupplyVoltage = u12(int(v / physic.MilliVolt))
}

// Water returns the water temperature. 0°C also stands for any sub-zero
// reading.
func (m *Message) Water() physic.Temperature {
	return physic.Temperature(m.WaterTemp)*physic.Kelvin/16 + physic.ZeroCelsius
}

// Inside returns the inside temperature.
func (m *Message) Inside() physic.Temperature {
	return shtc3.TicksToTemperature(m.InsideTemp)
}

// Humidity returns the inside relative humidity.
func (m *Message) Humidity() physic.RelativeHumidity {
	return shtc3.TicksToHumidity(m.InsideHumidity)
}

// Supply returns the supply voltage.
func (m *Message) Supply() physic.ElectricPotential {
	return physic.ElectricPotential(m.SupplyVoltage) * physic.MilliVolt
}

func (m *Message) String() string {
	s := "{"
	sep := ""
	if m.Present&WaterTemp != 0 {
		s += fmt.Sprintf("water: %s", m.Water())
		sep = ", "
	}
	if m.Present&InsideTemp != 0 {
		s += fmt.Sprintf("%sinside: %s", sep, m.Inside())
		sep = ", "
	}
	if m.Present&InsideHumidity != 0 {
		s += fmt.Sprintf("%shumidity: %s", sep, m.Humidity())
		sep = ", "
	}
	if m.Present&SupplyVoltage != 0 {
		s += fmt.Sprintf("%ssupply: %s", sep, m.Supply())
	}
	return s + "}"
}

// MarshalBinary encodes the message. It implements encoding.BinaryMarshaler.
func (m *Message) MarshalBinary() ([]byte, error) {
	buf := make([]byte, MaxLen)
	bit := 8
	var mask Field
	for _, f := range m.fields() {
		if m.Present&f.id == 0 {
			continue
		}
		v := *f.v
		if f.size == 12 && v > 0xFFF {
			v = 0xFFF
		}
		putBits(buf, bit, f.size, v)
		bit += f.size
		mask |= f.id
	}
	buf[0] = byte(mask)
	return buf[:(bit+4)/8], nil
}

// UnmarshalBinary decodes b into m. It implements
// encoding.BinaryUnmarshaler.
func (m *Message) UnmarshalBinary(b []byte) error {
	if len(b) == 0 {
		return ErrTruncated
	}
	mask := Field(b[0])
	if mask&^allFields != 0 {
		return errors.Errorf("measurement: unknown fields in mask %#02x", b[0])
	}
	*m = Message{Present: mask}
	bit := 8
	for _, f := range m.fields() {
		if mask&f.id == 0 {
			continue
		}
		if (bit+f.size+7)/8 > len(b) {
			return errors.Wrapf(ErrTruncated, "measurement: %d bytes for mask %#02x", len(b), b[0])
		}
		*f.v = getBits(b, bit, f.size)
		bit += f.size
	}
	return nil
}

// Decode returns the message encoded in b.
func Decode(b []byte) (*Message, error) {
	m := &Message{}
	if err := m.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return m, nil
}

//

type field struct {
	id   Field
	size int
	v    *uint16
}

func (m *Message) fields() [4]field {
	return [4]field{
		{WaterTemp, 12, &m.WaterTemp},
		{InsideTemp, 16, &m.InsideTemp},
		{InsideHumidity, 16, &m.InsideHumidity},
		{SupplyVoltage, 12, &m.SupplyVoltage},
	}
}

func u12(v int) uint16 {
	if v < 0 {
		return 0
	}
	if v > 0xFFF {
		return 0xFFF
	}
	return uint16(v)
}

// putBits writes the n low bits of v at bit offset, most significant first.
func putBits(buf []byte, offset, n int, v uint16) {
	for i := 0; i < n; i++ {
		if v>>(n-1-i)&1 != 0 {
			buf[(offset+i)/8] |= 0x80 >> ((offset + i) % 8)
		}
	}
}

func getBits(buf []byte, offset, n int) uint16 {
	var v uint16
	for i := 0; i < n; i++ {
		v <<= 1
		if buf[(offset+i)/8]&(0x80>>((offset+i)%8)) != 0 {
			v |= 1
		}
	}
	return v
}
