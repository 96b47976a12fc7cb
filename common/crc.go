// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package common contains functions used across multiple packages. For
// example, the 1-wire CRC8 calculation and hex nibble encoding.
package common

// CRC8 calculates the Dallas/Maxim 8-bit CRC (x⁸+x⁵+x⁴+1, LSB first, initial
// value 0) of the byte slice parameter and returns the calculated value.
//
// Appending the returned value to bytes and running CRC8 over the result
// yields 0.
func CRC8(bytes []byte) byte {
	var crc byte
	for _, val := range bytes {
		for range 8 {
			mix := (crc ^ val) & 0x01
			crc >>= 1
			if mix != 0 {
				crc ^= 0x8c
			}
			val >>= 1
		}
	}
	return crc
}

// CheckCRC8 returns true if the last byte of buf is the CRC8 of the bytes
// before it.
func CheckCRC8(buf []byte) bool {
	if len(buf) < 2 {
		return false
	}
	return CRC8(buf[:len(buf)-1]) == buf[len(buf)-1]
}

// SensirionCRC8 calculates the 8-bit CRC (x⁸+x⁵+x⁴+1, MSB first, initial
// value 0xff) that Sensirion sensors append to every 16-bit word.
func SensirionCRC8(bytes []byte) byte {
	var crc byte = 0xff
	for _, val := range bytes {
		crc ^= val
		for range 8 {
			if (crc & 0x80) == 0 {
				crc <<= 1
			} else {
				crc = (crc << 1) ^ 0x31
			}
		}
	}
	return crc
}
