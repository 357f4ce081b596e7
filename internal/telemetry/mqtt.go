// Package telemetry publishes import progress to an MQTT broker.
package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/ggeimport/ggeimport/internal/config"
	"github.com/ggeimport/ggeimport/internal/events"
	"github.com/ggeimport/ggeimport/internal/util"
)

// Topic suffixes below the configured prefix.
const (
	TopicStatus   = "import/status"
	TopicConflict = "import/conflict"
	TopicSummary  = "import/summary"
	TopicExport   = "import/export"
	TopicAdmin    = "admin"
)

const publishTimeout = 5 * time.Second

// topics maps the forwarded events to their topic.
var topics = map[events.EventType]string{
	events.EventPhaseChanged:   TopicStatus,
	events.EventLoginConfirmed: TopicStatus,
	events.EventDrainComplete:  TopicStatus,
	events.EventConflict:       TopicConflict,
	events.EventImportFinished: TopicSummary,
	events.EventExportWritten:  TopicExport,
}

// MQTTHandler forwards import events from the EventBus to the broker.
type MQTTHandler struct {
	mu sync.Mutex

	cfg      config.MQTTConfig
	eventBus *events.EventBus
	client   mqtt.Client
	logger   zerolog.Logger
	pending  sync.WaitGroup

	// Metadata included in every message
	metadata map[string]interface{}
}

// NewMQTTHandler creates a handler for the configured broker.
func NewMQTTHandler(cfg config.MQTTConfig, eventBus *events.EventBus) (*MQTTHandler, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("MQTT is disabled")
	}

	hostInfo := util.DescribeHost()

	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.BrokerURL, cfg.Port))

	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("%s-%s", util.AppName, hostInfo.Hostname))
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)

	if cfg.UseTLS {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
		if cfg.CertFile != "" && cfg.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load MQTT TLS certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
		opts.SetTLSConfig(tlsConfig)
	}

	h := newMQTTHandler(nil, cfg, eventBus, hostInfo)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		h.logger.Info().Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		h.logger.Warn().Err(err).Msg("MQTT connection lost")
	})

	h.client = mqtt.NewClient(opts)
	return h, nil
}

func newMQTTHandler(client mqtt.Client, cfg config.MQTTConfig, eventBus *events.EventBus, hostInfo util.HostInfo) *MQTTHandler {
	return &MQTTHandler{
		cfg:      cfg,
		eventBus: eventBus,
		client:   client,
		logger:   util.ComponentLogger("mqtt"),
		metadata: map[string]interface{}{
			"app":       util.AppName,
			"hostname":  hostInfo.Hostname,
			"os":        hostInfo.OS,
			"arch":      hostInfo.Arch,
			"cpu_cores": hostInfo.CPUCores,
			"memory_mb": hostInfo.MemoryMB,
		},
	}
}

// Start connects to the broker and subscribes to the EventBus. It returns
// once connected; call Stop to disconnect.
func (h *MQTTHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("broker", h.cfg.BrokerURL).
		Int("port", h.cfg.Port).
		Msg("connecting to MQTT broker")

	token := h.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT connect failed: %w", err)
	}

	h.eventBus.Subscribe(events.EventAny, "mqtt.forward", h.onEvent)
	return nil
}

// Stop publishes a shutdown notice, waits for outstanding publishes and
// disconnects.
func (h *MQTTHandler) Stop() {
	h.eventBus.Unsubscribe(events.EventAny, "mqtt.forward")
	h.PublishShutdown()
	h.pending.Wait()
	h.client.Disconnect(1000)
	h.logger.Info().Msg("MQTT disconnected")
}

func (h *MQTTHandler) onEvent(_ context.Context, event events.Event) error {
	topic, ok := topics[event.Type]
	if !ok {
		return nil
	}
	h.publish(topic, map[string]interface{}{
		"event":   event.Type,
		"source":  event.Source,
		"payload": event.Payload,
	})
	return nil
}

// publish sends a JSON message to a topic below the configured prefix.
func (h *MQTTHandler) publish(topic string, payload interface{}) {
	if !h.client.IsConnected() {
		return
	}

	data, err := json.Marshal(h.buildMessage(payload))
	if err != nil {
		h.logger.Warn().Err(err).Str("topic", topic).Msg("failed to marshal MQTT message")
		return
	}

	if h.cfg.TopicPrefix != "" {
		topic = h.cfg.TopicPrefix + "/" + topic
	}

	h.mu.Lock()
	token := h.client.Publish(topic, 1, false, data)
	h.mu.Unlock()

	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		if !token.WaitTimeout(publishTimeout) {
			h.logger.Warn().Str("topic", topic).Msg("MQTT publish timed out")
			return
		}
		if token.Error() != nil {
			h.logger.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

// buildMessage combines metadata with the event payload.
func (h *MQTTHandler) buildMessage(payload interface{}) map[string]interface{} {
	msg := make(map[string]interface{}, len(h.metadata)+2)
	for k, v := range h.metadata {
		msg[k] = v
	}
	msg["payload"] = payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return msg
}

// PublishShutdown tells subscribers the importer is going away.
func (h *MQTTHandler) PublishShutdown() {
	h.publish(TopicAdmin, map[string]interface{}{
		"event": events.EventShutdown,
	})
}
