// Package mqttingest feeds device events published on an MQTT topic through
// the same decode, normalize and upsert path as the webhook.
package mqttingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/sakif/garmin-mcp/internal/apperror"
	"github.com/sakif/garmin-mcp/internal/service"
)

// Ingester is implemented by service.IngestService.
type Ingester interface {
	Ingest(ctx context.Context, source string, body []byte) (*service.IngestResult, error)
}

type Options struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// Subscriber owns one MQTT connection and its subscription.
type Subscriber struct {
	opts    Options
	ingest  Ingester
	logger  *slog.Logger
	client  mqtt.Client
	timeout time.Duration
}

func NewSubscriber(opts Options, ingest Ingester, logger *slog.Logger) *Subscriber {
	if opts.QoS > 1 {
		opts.QoS = 1
	}
	return &Subscriber{
		opts:    opts,
		ingest:  ingest,
		logger:  logger.With(slog.String("component", "mqtt"), slog.String("topic", opts.Topic)),
		timeout: 10 * time.Second,
	}
}

// Start connects and subscribes. The subscription is renewed on every
// reconnect since the session is clean.
func (s *Subscriber) Start() error {
	copts := mqtt.NewClientOptions()
	copts.AddBroker(s.opts.Broker)
	copts.SetClientID(s.opts.ClientID)
	if s.opts.Username != "" {
		copts.SetUsername(s.opts.Username)
	}
	if s.opts.Password != "" {
		copts.SetPassword(s.opts.Password)
	}
	copts.SetAutoReconnect(true)
	copts.SetCleanSession(true)
	copts.SetOnConnectHandler(func(c mqtt.Client) {
		if token := c.Subscribe(s.opts.Topic, s.opts.QoS, s.handleMessage); token.Wait() && token.Error() != nil {
			s.logger.Error("mqtt subscribe failed", slog.String("error", token.Error().Error()))
			return
		}
		s.logger.Info("mqtt subscribed")
	})
	copts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn("mqtt connection lost", slog.String("error", err.Error()))
	})

	s.client = mqtt.NewClient(copts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt: connecting to %s: %w", s.opts.Broker, token.Error())
	}
	return nil
}

// Stop disconnects, giving in-flight work 250ms to finish.
func (s *Subscriber) Stop() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}

// handleMessage runs on paho's callback goroutine. Failures are logged; a
// message is never redelivered on our account.
func (s *Subscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	res, err := s.ingest.Ingest(ctx, service.SourceMQTT, msg.Payload())
	switch {
	case err == nil:
		s.logger.Debug("mqtt message ingested",
			slog.Uint64("message_id", uint64(msg.MessageID())),
			slog.Int("events", res.Total),
		)
	case errors.Is(err, apperror.ErrValidation):
		s.logger.Warn("mqtt message rejected",
			slog.Uint64("message_id", uint64(msg.MessageID())),
			slog.String("error", err.Error()),
		)
	default:
		s.logger.Error("mqtt message ingest failed",
			slog.Uint64("message_id", uint64(msg.MessageID())),
			slog.String("error", err.Error()),
		)
	}
}
