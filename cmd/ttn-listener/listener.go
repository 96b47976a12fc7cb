// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/hex"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// subscriptions are the v3 topics listened to, all at QoS 1.
var subscriptions = map[string]byte{
	"v3/+/devices/+/activations": 1,
	"v3/+/devices/+/up":          1,
}

// listener logs the uplinks and activations of an application.
type listener struct {
	log    *zap.Logger
	client mqtt.Client
}

func newListener(log *zap.Logger, broker, user, password, clientID string) *listener {
	l := &listener{log: log}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker).
		SetClientID(clientID).
		SetUsername(user).
		SetPassword(password).
		SetKeepAlive(20 * time.Second).
		SetCleanSession(false).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOnConnectHandler(l.connected).
		SetConnectionLostHandler(l.connectionLost)
	l.client = mqtt.NewClient(opts)
	return l
}

// run connects and listens until ctx is canceled.
func (l *listener) run(ctx context.Context) error {
	l.log.Info("connecting", zap.Strings("brokers", brokers(l.client)))
	t := l.client.Connect()
	select {
	case <-t.Done():
		if err := t.Error(); err != nil {
			return errors.Wrap(err, "connect")
		}
	case <-ctx.Done():
	}
	<-ctx.Done()
	l.log.Info("disconnecting")
	l.client.Disconnect(250)
	return nil
}

func brokers(c mqtt.Client) []string {
	r := c.OptionsReader()
	var out []string
	for _, u := range r.Servers() {
		out = append(out, u.String())
	}
	return out
}

func (l *listener) connected(c mqtt.Client) {
	l.log.Info("connected")
	t := c.SubscribeMultiple(subscriptions, l.handle)
	go func() {
		<-t.Done()
		if err := t.Error(); err != nil {
			l.log.Error("subscribe failed", zap.Error(err))
		}
	}()
}

func (l *listener) connectionLost(c mqtt.Client, err error) {
	l.log.Warn("connection lost", zap.Error(err))
}

// handle logs one message.
func (l *listener) handle(c mqtt.Client, m mqtt.Message) {
	log := l.log.With(zap.String("topic", m.Topic()))
	switch topicKind(m.Topic()) {
	case "up":
		u, err := parseUplink(m.Payload())
		if err != nil {
			log.Warn("dropped", zap.Error(err))
			return
		}
		fields := []zap.Field{
			zap.String("device", u.EndDeviceIDs.DeviceID),
			zap.String("dev_eui", u.EndDeviceIDs.DevEUI),
			zap.Uint32("f_cnt", u.Message.FCnt),
			zap.Uint8("f_port", u.Message.FPort),
			zap.String("payload", hex.EncodeToString(u.Message.FRMPayload)),
		}
		if rssi, ok := u.bestRSSI(); ok {
			fields = append(fields, zap.Float64("rssi", rssi))
		}
		msg, err := u.measurement()
		if err != nil {
			log.Info("uplink", append(fields, zap.NamedError("decode", err))...)
			return
		}
		log.Info("measurement", append(fields, zap.Stringer("measurement", msg))...)
	case "activations":
		a, err := parseActivation(m.Payload())
		if err != nil {
			log.Warn("dropped", zap.Error(err))
			return
		}
		log.Info("activation",
			zap.String("device", a.EndDeviceIDs.DeviceID),
			zap.String("dev_eui", a.EndDeviceIDs.DevEUI),
			zap.String("dev_addr", a.EndDeviceIDs.DevAddr))
	default:
		log.Debug("ignored", zap.ByteString("payload", m.Payload()))
	}
}
