package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"embroidery-telemetry-backend/config"
	"embroidery-telemetry-backend/internal/telemetry"
)

// Subscriber consumes telemetry from the per-device MQTT topic pattern.
// Delivery is fire-and-forget: there is no response path back to the device,
// so every failure is logged and dropped.
type Subscriber struct {
	cfg     *config.MQTTConfig
	gateway *Gateway
	client  mqtt.Client
}

// NewSubscriber creates an MQTT subscriber feeding the gateway.
func NewSubscriber(cfg *config.MQTTConfig, gateway *Gateway) *Subscriber {
	return &Subscriber{cfg: cfg, gateway: gateway}
}

// Start connects to the broker and subscribes to the telemetry topic. It
// returns once the subscription is established; message handling runs on the
// paho client's own goroutines until Stop is called.
func (s *Subscriber) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.BrokerURL).
		SetClientID(s.cfg.ClientID).
		SetAutoReconnect(true)

	opts.OnConnect = func(c mqtt.Client) {
		log.Printf("MQTT connected to %s, subscribing to %s", s.cfg.BrokerURL, s.cfg.Topic)
		token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
			s.HandleMessage(ctx, msg.Topic(), msg.Payload())
		})
		token.Wait()
		if token.Error() != nil {
			log.Printf("MQTT subscribe failed: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %v", err)
	}

	s.client = mqtt.NewClient(opts)
	token := s.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect to %s: %w", s.cfg.BrokerURL, err)
	}
	return nil
}

// HandleMessage decodes one device message and funnels it through the shared
// ingest path. Exported so tests can drive it without a broker.
func (s *Subscriber) HandleMessage(ctx context.Context, topic string, payload []byte) {
	var raw telemetry.RawPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		log.Printf("MQTT message on %s is not valid JSON: %v", topic, err)
		return
	}

	if _, err := s.gateway.Ingest(ctx, raw, SourceDeviceChannel); err != nil {
		log.Printf("MQTT ingest on %s failed: %v", topic, err)
	}
}

// Stop disconnects from the broker.
func (s *Subscriber) Stop() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}
