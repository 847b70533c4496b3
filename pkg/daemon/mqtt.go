package daemon

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/trackd/trackd/pkg/events"
)

var bridge *mqttBridge

// mqttBridge republishes job events to an MQTT broker.
type mqttBridge struct {
	client mqtt.Client
	prefix string
}

var mqttTopics = map[string]string{
	events.AutoBonePhase:  "autobone/phase",
	events.AutoBoneEpoch:  "autobone/epoch",
	events.AutoBoneResult: "autobone/result",
}

func newMQTTBridge(broker, clientID, prefix string) (*mqttBridge, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(fmt.Sprintf("%s-%d", clientID, time.Now().Unix()))
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		logrus.WithField("broker", broker).Info("connected to mqtt broker")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logrus.WithError(err).WithField("broker", broker).Warn("mqtt connection lost")
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, pkgerrors.Wrapf(token.Error(), "failed to connect to mqtt broker %s", broker)
	}
	return &mqttBridge{client: client, prefix: trimPrefix(prefix)}, nil
}

func trimPrefix(prefix string) string {
	return strings.TrimSuffix(prefix, "/")
}

// Topic returns the topic an event is published on, or "" for events that
// are not bridged.
func (b *mqttBridge) Topic(name string) string {
	suffix, ok := mqttTopics[name]
	if !ok {
		return ""
	}
	if b.prefix == "" {
		return suffix
	}
	return b.prefix + "/" + suffix
}

// Publish sends payload as JSON without waiting for the broker. Epoch
// updates are best effort; phases and results are retained.
func (b *mqttBridge) Publish(name string, payload any) {
	if b == nil {
		return
	}
	topic := b.Topic(name)
	if topic == "" {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).WithField("event", name).Error("failed to marshal mqtt payload")
		return
	}

	qos, retained := byte(1), true
	if name == events.AutoBoneEpoch {
		qos, retained = 0, false
	}
	token := b.client.Publish(topic, qos, retained, data)
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			logrus.WithError(token.Error()).WithField("topic", topic).Warn("failed to publish mqtt message")
		}
	}()
}

func (b *mqttBridge) Close() {
	if b == nil {
		return
	}
	b.client.Disconnect(250)
}
