// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/GermanBionicSystems/fieldnode/measurement"
)

// deviceIDs identifies an end device in The Things Stack v3 messages.
type deviceIDs struct {
	DeviceID       string `json:"device_id"`
	ApplicationIDs struct {
		ApplicationID string `json:"application_id"`
	} `json:"application_ids"`
	DevEUI  string `json:"dev_eui"`
	DevAddr string `json:"dev_addr"`
}

type rxMetadata struct {
	GatewayIDs struct {
		GatewayID string `json:"gateway_id"`
	} `json:"gateway_ids"`
	RSSI float64 `json:"rssi"`
	SNR  float64 `json:"snr"`
}

// uplink is the subset of an uplink message used here.
type uplink struct {
	EndDeviceIDs deviceIDs `json:"end_device_ids"`
	ReceivedAt   time.Time `json:"received_at"`
	Message      struct {
		FPort      uint8        `json:"f_port"`
		FCnt       uint32       `json:"f_cnt"`
		FRMPayload []byte       `json:"frm_payload"`
		RxMetadata []rxMetadata `json:"rx_metadata"`
	} `json:"uplink_message"`
}

// activation is the subset of a join accept message used here.
type activation struct {
	EndDeviceIDs deviceIDs `json:"end_device_ids"`
	ReceivedAt   time.Time `json:"received_at"`
}

func parseUplink(b []byte) (*uplink, error) {
	u := &uplink{}
	if err := json.Unmarshal(b, u); err != nil {
		return nil, errors.Wrap(err, "invalid uplink")
	}
	return u, nil
}

func parseActivation(b []byte) (*activation, error) {
	a := &activation{}
	if err := json.Unmarshal(b, a); err != nil {
		return nil, errors.Wrap(err, "invalid activation")
	}
	return a, nil
}

// measurement decodes the payload when it was sent on the measurement port.
func (u *uplink) measurement() (*measurement.Message, error) {
	if u.Message.FPort != measurement.Port {
		return nil, errors.Errorf("unexpected port %d", u.Message.FPort)
	}
	return measurement.Decode(u.Message.FRMPayload)
}

// bestRSSI returns the strongest gateway reception, or false without
// metadata.
func (u *uplink) bestRSSI() (float64, bool) {
	if len(u.Message.RxMetadata) == 0 {
		return 0, false
	}
	best := u.Message.RxMetadata[0].RSSI
	for _, m := range u.Message.RxMetadata[1:] {
		best = max(best, m.RSSI)
	}
	return best, true
}

// topicKind returns the last level of a v3 topic, like "up" or
// "activations".
func topicKind(topic string) string {
	return topic[strings.LastIndexByte(topic, '/')+1:]
}
