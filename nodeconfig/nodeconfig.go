// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package nodeconfig reads and writes the persisted configuration of a
// sensor node.
//
// Layout, version 1:
//
//	0x00  version (1)
//	0x01  magic 0x23 0x42 0x99
//	0x04  DevAddr, 4 bytes
//	0x08  NwkSKey, 16 bytes
//	0x18  AppSKey, 16 bytes
//	0x28  wake-up interval in seconds, uint16 little endian
//	0x2A  every n-th wake-up measures temperature and humidity
//	0x2B  every n-th wake-up measures the supply voltage
package nodeconfig

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/GermanBionicSystems/fieldnode/rn2483"
	"github.com/pkg/errors"
)

// Size is the length of the encoded configuration.
const Size = 44

// Version is the only supported layout version.
const Version = 1

var magic = [3]byte{0x23, 0x42, 0x99}

var (
	// ErrWrongLength is returned when the input is shorter than Size.
	ErrWrongLength = errors.New("nodeconfig: wrong slice length")
	// ErrWrongMagic is returned when the magic bytes do not match; the
	// data is likely corrupted.
	ErrWrongMagic = errors.New("nodeconfig: wrong magic bytes")
)

// UnsupportedVersionError is returned for an unknown layout version.
type UnsupportedVersionError uint8

func (e UnsupportedVersionError) Error() string {
	return fmt.Sprintf("nodeconfig: unsupported config format version (%d)", uint8(e))
}

// Config is the node configuration.
type Config struct {
	DevAddr [4]byte
	NwkSKey [16]byte
	AppSKey [16]byte
	// WakeupInterval is how often, in seconds, the node wakes up.
	WakeupInterval uint16
	// NthTempHumi is every how many wake-ups temperature and humidity are
	// measured and sent. 0 never does.
	NthTempHumi uint8
	// NthVoltage is every how many wake-ups the supply voltage is measured
	// and sent. 0 never does.
	NthVoltage uint8
}

// Parse decodes a configuration. Bytes past Size are ignored.
func Parse(b []byte) (*Config, error) {
	c := &Config{}
	if err := c.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return c, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (c *Config) UnmarshalBinary(b []byte) error {
	if len(b) < Size {
		return ErrWrongLength
	}
	if b[0] != Version {
		return UnsupportedVersionError(b[0])
	}
	if [3]byte(b[1:4]) != magic {
		return ErrWrongMagic
	}
	copy(c.DevAddr[:], b[0x04:0x08])
	copy(c.NwkSKey[:], b[0x08:0x18])
	copy(c.AppSKey[:], b[0x18:0x28])
	c.WakeupInterval = binary.LittleEndian.Uint16(b[0x28:0x2A])
	c.NthTempHumi = b[0x2A]
	c.NthVoltage = b[0x2B]
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (c *Config) MarshalBinary() ([]byte, error) {
	b := make([]byte, Size)
	b[0] = Version
	copy(b[1:4], magic[:])
	copy(b[0x04:0x08], c.DevAddr[:])
	copy(b[0x08:0x18], c.NwkSKey[:])
	copy(b[0x18:0x28], c.AppSKey[:])
	binary.LittleEndian.PutUint16(b[0x28:0x2A], c.WakeupInterval)
	b[0x2A] = c.NthTempHumi
	b[0x2B] = c.NthVoltage
	return b, nil
}

// Interval returns the wake-up interval.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.WakeupInterval) * time.Second
}

// Plan returns what to measure at the given wake-up cycle, counted from 0.
func (c *Config) Plan(cycle uint32) (tempHumi, voltage bool) {
	return every(cycle, c.NthTempHumi), every(cycle, c.NthVoltage)
}

// ABP returns the activation matching the stored session keys.
func (c *Config) ABP(adr bool) *rn2483.ABP {
	return &rn2483.ABP{DevAddr: c.DevAddr, AppSKey: c.AppSKey, NwkSKey: c.NwkSKey, ADR: adr}
}

func every(cycle uint32, nth uint8) bool {
	return nth != 0 && cycle%uint32(nth) == 0
}
