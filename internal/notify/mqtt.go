package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ukydev/cocagne-tracker/internal/config"
)

// Publisher is the part of the paho client used to publish.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes completion messages on {prefix}/{tourID}/delivered.
type MQTTSink struct {
	client  Publisher
	prefix  string
	timeout time.Duration
}

func NewMQTTSink(client Publisher, prefix string) *MQTTSink {
	return &MQTTSink{client: client, prefix: strings.TrimRight(prefix, "/"), timeout: 5 * time.Second}
}

// Topic returns the topic a message is published on.
func (s *MQTTSink) Topic(msg Message) string {
	tourID := msg.Data[DataTourID]
	if tourID == "" {
		tourID = "unknown"
	}
	return fmt.Sprintf("%s/%s/delivered", s.prefix, tourID)
}

func (s *MQTTSink) Notify(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	token := s.client.Publish(s.Topic(msg), 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.timeout):
		return errors.New("mqtt publish timed out")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}
	return nil
}

// ConnectMQTT connects a paho client to the configured broker.
func ConnectMQTT(cfg config.MQTTConfig) (mqtt.Client, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is not configured")
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, errors.New("mqtt connect timed out")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return client, nil
}
