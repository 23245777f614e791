package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"i4.energy/across/blelink/frame"
	"i4.energy/across/blelink/hm10"
)

// mqttClient is the part of mqtt.Client the bridge uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// sendTimeout bounds how long an MQTT request waits for the device loop.
const sendTimeout = 15 * time.Second

// Bridge relays frames between the BLE link and an MQTT broker.
//
// Topics, relative to Prefix:
//
//	message            frames received from the peer (publish)
//	event/<id>         events received from the peer (publish)
//	state              "connected" or "disconnected", retained (publish)
//	send/message       payload is sent to the peer as a Message (subscribe)
//	send/event/<id>    payload is sent to the peer as an Event (subscribe)
type Bridge struct {
	Logger *slog.Logger
	// Client must be set before the device loop starts. Without it
	// publications are dropped.
	Client mqttClient
	Prefix string

	// Device is set once the device has been created. Inbound requests
	// are dropped until then.
	Device *hm10.Device
}

func (b *Bridge) topic(parts ...string) string {
	return b.Prefix + "/" + strings.Join(parts, "/")
}

// FrameHandlers returns the handlers that publish received frames.
func (b *Bridge) FrameHandlers() frame.Handlers {
	return frame.Handlers{
		Message: func(payload []byte) {
			b.publish(b.topic("message"), false, payload)
		},
		Event: func(id uint16, payload []byte) {
			b.publish(b.topic("event", strconv.Itoa(int(id))), false, payload)
		},
	}
}

// OnConnected publishes the link state. It has the signature of
// hm10.Config.OnConnected.
func (b *Bridge) OnConnected(reconnected bool) {
	b.Logger.Info("BLE link up", "reconnected", reconnected)
	b.publish(b.topic("state"), true, []byte("connected"))
}

// OnDisconnected publishes the link state.
func (b *Bridge) OnDisconnected() {
	b.Logger.Info("BLE link down")
	b.publish(b.topic("state"), true, []byte("disconnected"))
}

// publish runs on the device loop and must not block it. The payload slice
// is only valid during the frame handler, so it is copied.
func (b *Bridge) publish(topic string, retained bool, payload []byte) {
	if b.Client == nil {
		b.Logger.Warn("MQTT publish dropped, client not set", "topic", topic)
		return
	}

	data := append([]byte(nil), payload...)
	token := b.Client.Publish(topic, 0, retained, data)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			b.Logger.Error("MQTT publish failed", "topic", topic, "error", err)
		}
	}()
}

// Subscribe subscribes to the send topics. It is meant to run from the MQTT
// on-connect handler so subscriptions survive broker reconnects.
func (b *Bridge) Subscribe() error {
	for topic, handler := range map[string]mqtt.MessageHandler{
		b.topic("send", "message"):     b.handleSendMessage,
		b.topic("send", "event", "+"): b.handleSendEvent,
	} {
		token := b.Client.Subscribe(topic, 0, handler)
		if token.Wait() && token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", topic, token.Error())
		}
		b.Logger.Info("MQTT subscribed", "topic", topic)
	}
	return nil
}

func (b *Bridge) handleSendMessage(_ mqtt.Client, msg mqtt.Message) {
	payload := msg.Payload()
	b.send(msg.Topic(), func(d *hm10.Device) error {
		return d.WriteMessage(payload)
	})
}

func (b *Bridge) handleSendEvent(_ mqtt.Client, msg mqtt.Message) {
	topic := msg.Topic()
	id, err := strconv.ParseUint(topic[strings.LastIndex(topic, "/")+1:], 10, 16)
	if err != nil {
		b.Logger.Warn("MQTT event id invalid", "topic", topic, "error", err)
		return
	}

	payload := msg.Payload()
	b.send(topic, func(d *hm10.Device) error {
		return d.WriteEvent(uint16(id), payload)
	})
}

func (b *Bridge) send(topic string, fn func(*hm10.Device) error) {
	if b.Device == nil {
		b.Logger.Warn("MQTT request dropped, device not started", "topic", topic)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := b.Device.Do(ctx, fn); err != nil {
		b.Logger.Error("MQTT request failed", "topic", topic, "error", err)
		return
	}
	b.Logger.Debug("MQTT request sent", "topic", topic)
}

// newMQTTClient builds a paho client that subscribes the bridge on every
// (re)connect.
func newMQTTClient(config *Config, bridge *Bridge, logger *slog.Logger) mqtt.Client {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.MQTTBroker)
	opts.SetClientID(config.MQTTClientID)
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetWill(bridge.topic("state"), "disconnected", 0, true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", "error", err)
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("MQTT connected", "broker", config.MQTTBroker)
		if err := bridge.Subscribe(); err != nil {
			logger.Error("MQTT subscribe failed", "error", err)
		}
	})
	return mqtt.NewClient(opts)
}
