package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/models"
	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/mqttclient"
)

// MQTTConsumer feeds radar samples from the broker into the same pipeline
// the HTTP webhook uses. Topic layout: radar/{core_id}/data.
type MQTTConsumer struct {
	mqttClient *mqttclient.Client
	pipeline   *Pipeline
	topic      string
	logger     *zap.Logger
}

// NewMQTTConsumer creates the radar consumer
func NewMQTTConsumer(mqttClient *mqttclient.Client, pipeline *Pipeline, topic string, logger *zap.Logger) *MQTTConsumer {
	return &MQTTConsumer{
		mqttClient: mqttClient,
		pipeline:   pipeline,
		topic:      topic,
		logger:     logger,
	}
}

// Start subscribes and blocks until the context is cancelled.
func (c *MQTTConsumer) Start(ctx context.Context) error {
	if err := c.mqttClient.Subscribe(c.topic, 1, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to radar topic: %w", err)
	}

	c.logger.Info("MQTT consumer started", zap.String("topic", c.topic))

	<-ctx.Done()
	return nil
}

// Stop unsubscribes from the radar topic.
func (c *MQTTConsumer) Stop() {
	if err := c.mqttClient.Unsubscribe(c.topic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}
	c.logger.Info("MQTT consumer stopped")
}

func (c *MQTTConsumer) handleMessage(topic string, payload []byte) error {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		c.logger.Error("Invalid radar topic format", zap.String("topic", topic))
		return fmt.Errorf("invalid topic format: %s", topic)
	}
	coreID := parts[1]

	var sample struct {
		MovementFast float64 `json:"fast"`
		MovementSlow float64 `json:"slow"`
		Amplitude    float64 `json:"amplitude"`
	}
	if err := json.Unmarshal(payload, &sample); err != nil {
		c.logger.Error("Failed to unmarshal radar message",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	err := c.pipeline.IngestRadarSample(context.Background(), coreID, models.RadarSample{
		MovementFast: sample.MovementFast,
		MovementSlow: sample.MovementSlow,
		Amplitude:    sample.Amplitude,
	})
	if err != nil {
		c.logger.Error("Failed to ingest radar sample",
			zap.String("core_id", coreID),
			zap.Error(err),
		)
		return err
	}

	return nil
}
