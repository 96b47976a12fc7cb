// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package rn2483

// Outcome is the result of a transmit attempt.
type Outcome uint8

// Possible outcomes of Send.
const (
	NoError Outcome = iota
	NoResponse
	Timedout
	PayloadSizeError
	InternalError
	Busy
	NetworkFatalError
	NotConnected
	NoAcknowledgment
	Silent
)

const outcomeName = "NoErrorNoResponseTimedoutPayloadSizeErrorInternalErrorBusyNetworkFatalErrorNotConnectedNoAcknowledgmentSilent"

var outcomeIndex = [...]uint8{0, 7, 17, 25, 41, 54, 58, 75, 87, 103, 109}

func (o Outcome) String() string {
	if o >= Outcome(len(outcomeIndex)-1) {
		return "Outcome(?)"
	}
	return outcomeName[outcomeIndex[o]:outcomeIndex[o+1]]
}

// errorTable maps the error words of the module to an Outcome.
var errorTable = map[string]Outcome{
	"invalid_param":                   InternalError,
	"not_joined":                      NotConnected,
	"no_free_ch":                      Busy,
	"silent":                          Silent,
	"frame_counter_err_rejoin_needed": NetworkFatalError,
	"busy":                            Busy,
	"mac_paused":                      InternalError,
	"invalid_data_len":                PayloadSizeError,
	"mac_err":                         NoAcknowledgment,
}

// Classify maps a response line of the module to an Outcome.
//
// Only exact matches of the known error words are recognized. Anything else,
// including the empty line, is NoResponse.
func Classify(response string) Outcome {
	if o, ok := errorTable[response]; ok {
		return o
	}
	return NoResponse
}
