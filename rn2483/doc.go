// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package rn2483 controls a Microchip RN2483 or RN2903 LoRaWAN module over
// its ASCII command interface.
//
// Every exchange is synchronous: a command is written as one CRLF
// terminated line and the driver blocks reading response lines until the
// expected token arrives or a deadline passes. Every wait has a hard upper
// bound.
//
// Datasheet
//
// https://ww1.microchip.com/downloads/en/DeviceDoc/40001784B.pdf
//
// Command reference
//
// https://ww1.microchip.com/downloads/en/DeviceDoc/40001784G.pdf
package rn2483
