// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package rn2483

import (
	"bytes"
	"strconv"

	"github.com/GermanBionicSystems/fieldnode/common"
	"github.com/GermanBionicSystems/fieldnode/timebase"
	"go.uber.org/zap"
)

// Send transmits payload on port, confirmed or not, and waits for the end
// of the receive windows.
//
// A downlink received in the windows is stored for Receive and the result
// is NoError. The pending downlink of a previous Send is dropped.
func (d *Dev) Send(port uint8, payload []byte, confirmed bool) Outcome {
	d.received = false
	kind := "uncnf "
	if confirmed {
		kind = "cnf "
	}
	cmd := make([]byte, 0, 16+2*len(payload))
	cmd = append(cmd, "mac tx "...)
	cmd = append(cmd, kind...)
	cmd = strconv.AppendUint(cmd, uint64(port), 10)
	cmd = append(cmd, ' ')
	cmd = common.AppendHex(cmd, payload)
	if err := d.t.WriteLine(cmd); err != nil {
		d.log.Warn("transmit failed", zap.Error(err))
		return InternalError
	}
	if err := d.expect(cmd, "ok", d.opts.Timeout); err != nil {
		return d.failed(Classify(d.t.String()))
	}

	deadline := d.clock.Now().Add(d.opts.ReceiveTimeout)
	for !timebase.Expired(d.clock, deadline) {
		if d.t.ReadLine(d.opts.CharTimeout) == 0 {
			continue
		}
		line := d.t.Line()
		switch {
		case bytes.IndexByte(line, ' ') >= 0:
			// The only multi word response is the downlink notification.
			return d.onMacRX(line)
		case bytes.Contains(line, []byte("mac_tx_ok")):
			return NoError
		default:
			return d.failed(Classify(string(line)))
		}
	}
	d.log.Warn("transmit timed out", zap.Duration("window", d.opts.ReceiveTimeout))
	return Timedout
}

// Receive copies the downlink received by the last Send into out, decoded,
// starting at byte offset. It returns the number of bytes copied.
//
// It returns 0 when no downlink is pending or offset is past its end. An odd
// trailing hex character is dropped. The downlink stays pending until
// ClearReceived or the next Send.
func (d *Dev) Receive(out []byte, offset int) int {
	if !d.received || offset < 0 {
		return 0
	}
	i := 2 * offset
	if i >= len(d.payload) {
		return 0
	}
	n := 0
	for ; n < len(out) && i+1 < len(d.payload); i += 2 {
		if d.payload[i] == 0 || d.payload[i+1] == 0 {
			break
		}
		b, ok := common.HexPair(d.payload[i], d.payload[i+1])
		if !ok {
			break
		}
		out[n] = b
		n++
	}
	return n
}

// LastPort returns the port of the pending downlink.
func (d *Dev) LastPort() (uint8, bool) {
	return d.port, d.received
}

// ClearReceived marks the pending downlink as consumed.
func (d *Dev) ClearReceived() {
	d.received = false
}

// onMacRX parses "mac_rx <port> <hex payload>".
func (d *Dev) onMacRX(line []byte) Outcome {
	fields := bytes.Fields(line)
	if len(fields) == 0 || string(fields[0]) != "mac_rx" {
		d.log.Warn("unexpected notification", zap.ByteString("line", line))
		return InternalError
	}
	d.port = 0
	if len(fields) > 1 {
		p, err := strconv.ParseUint(string(fields[1]), 10, 8)
		if err != nil {
			d.log.Warn("invalid downlink port", zap.ByteString("line", line))
			return InternalError
		}
		d.port = uint8(p)
	}
	d.payload = d.payload[:0]
	if len(fields) > 2 {
		hex := fields[2]
		if len(hex) > cap(d.payload) {
			hex = hex[:cap(d.payload)]
		}
		d.payload = append(d.payload, hex...)
	}
	d.received = true
	d.log.Debug("downlink", zap.Uint8("port", d.port), zap.ByteString("payload", d.payload))
	return NoError
}

func (d *Dev) failed(o Outcome) Outcome {
	if o == NotConnected {
		d.state = NotJoined
	}
	d.log.Warn("transmit failed", zap.Stringer("outcome", o))
	return o
}
