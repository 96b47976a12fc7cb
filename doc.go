// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package fieldnode is a container for the drivers of a battery powered
// water temperature node: a DS18B20 on a bit-banged 1-wire line and a
// Microchip RN2483/RN2903 LoRaWAN module on a serial port.
//
// The drivers are synchronous; every blocking call has a hard upper bound
// derived from a monotonic clock.
package fieldnode
