package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/grow-controller/internal/model"
)

const publishTimeout = 5 * time.Second

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTMirror republishes every reported snapshot to an MQTT topic using the
// collector payload format.
type MQTTMirror struct {
	client publisher
	topic  string
}

// ConnectMQTT connects to broker and returns a mirror publishing to topic.
func ConnectMQTT(broker, clientID, topic string) (*MQTTMirror, func(), error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, nil, fmt.Errorf("timed out connecting to MQTT broker %s", broker)
	}
	if err := token.Error(); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", broker, err)
	}

	log.Info().Str("broker", broker).Str("topic", topic).Msg("MQTT mirror connected")
	return &MQTTMirror{client: c, topic: topic}, func() { c.Disconnect(250) }, nil
}

func (m *MQTTMirror) ObserveCycle(ctx context.Context, rec model.CycleRecord) error {
	if !rec.Reported() {
		return nil
	}

	payload, err := json.Marshal(BuildPayload(rec.Snapshot))
	if err != nil {
		return fmt.Errorf("failed to marshal mqtt payload: %w", err)
	}

	token := m.client.Publish(m.topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timed out publishing to %s", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", m.topic, err)
	}
	return nil
}
