package ingress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/models"
)

// Dependencies, narrowed to what the ingress path needs.

type locationResolver interface {
	GetLocationByCoreID(ctx context.Context, coreID string) (*models.Location, error)
}

type telemetryAppender interface {
	AppendDoorSample(ctx context.Context, locationID string, sample models.DoorSample) error
	AppendRadarSample(ctx context.Context, locationID string, sample models.RadarSample) error
}

type stateEvaluator interface {
	Evaluate(ctx context.Context, location *models.Location) error
}

type alertHandler interface {
	HandleAlert(ctx context.Context, location *models.Location, reason models.AlertReason, rawMetadata []byte) error
}

type lowBatteryNotifier interface {
	SendLowBatteryAlert(ctx context.Context, location *models.Location) error
}

type vitalLogger interface {
	LogSensorsVital(ctx context.Context, vital *models.SensorsVital) error
}

// Pipeline is the transport-independent ingress path: resolve the device,
// gate on the sending-alerts flags, append telemetry, and drive the state
// machine or session manager. Both the HTTP webhooks and the MQTT consumer
// feed it.
type Pipeline struct {
	locations  locationResolver
	store      telemetryAppender
	machine    stateEvaluator
	alerts     alertHandler
	lowBattery lowBatteryNotifier
	vitals     vitalLogger
	logger     *zap.Logger

	// Serializes state machine evaluation per location: each evaluation
	// both reads and appends that location's transition history.
	locks sync.Map
}

// NewPipeline creates an ingress pipeline
func NewPipeline(
	locations locationResolver,
	store telemetryAppender,
	machine stateEvaluator,
	alerts alertHandler,
	lowBattery lowBatteryNotifier,
	vitals vitalLogger,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		locations:  locations,
		store:      store,
		machine:    machine,
		alerts:     alerts,
		lowBattery: lowBattery,
		vitals:     vitals,
		logger:     logger,
	}
}

// resolveSendingLocation maps a device core id to a location that is allowed
// to generate alerts. A nil location with nil error means the event must be
// ignored (unknown device or gated off); the reason is already logged.
func (p *Pipeline) resolveSendingLocation(ctx context.Context, coreID string) (*models.Location, error) {
	location, err := p.locations.GetLocationByCoreID(ctx, coreID)
	if err != nil {
		return nil, err
	}
	if location == nil {
		p.logger.Error("No location matches core id", zap.String("core_id", coreID))
		return nil, nil
	}
	if !location.IsActive || !location.IsSendingAlerts || location.Client == nil || !location.Client.IsActive || !location.Client.IsSendingAlerts {
		p.logger.Debug("Location is not sending alerts, ignoring event",
			zap.String("location_id", location.LocationID),
		)
		return nil, nil
	}
	return location, nil
}

// HandleSensorEvent processes a firmware-classified alert. Only locations
// running the firmware state machine send these.
func (p *Pipeline) HandleSensorEvent(ctx context.Context, coreID string, eventKind string, rawData []byte) error {
	var reason models.AlertReason
	switch eventKind {
	case string(models.AlertReasonDuration):
		reason = models.AlertReasonDuration
	case string(models.AlertReasonStillness):
		reason = models.AlertReasonStillness
	default:
		return fmt.Errorf("invalid sensor event kind: %q", eventKind)
	}

	location, err := p.resolveSendingLocation(ctx, coreID)
	if err != nil || location == nil {
		return err
	}

	return p.alerts.HandleAlert(ctx, location, reason, rawData)
}

// IngestDoorEvent appends a door event and re-evaluates the location's state
// machine. A low battery flag triggers the battery notice on the side.
func (p *Pipeline) IngestDoorEvent(ctx context.Context, coreID string, sample models.DoorSample) error {
	location, err := p.resolveSendingLocation(ctx, coreID)
	if err != nil || location == nil {
		return err
	}

	if err := p.store.AppendDoorSample(ctx, location.LocationID, sample); err != nil {
		return err
	}

	if sample.LowBattery {
		if err := p.lowBattery.SendLowBatteryAlert(ctx, location); err != nil {
			p.logger.Error("Failed to send low battery alert",
				zap.String("location_id", location.LocationID),
				zap.Error(err),
			)
		}
	}

	return p.evaluate(ctx, location)
}

// IngestRadarSample appends a radar reading and re-evaluates the location's
// state machine.
func (p *Pipeline) IngestRadarSample(ctx context.Context, coreID string, sample models.RadarSample) error {
	location, err := p.resolveSendingLocation(ctx, coreID)
	if err != nil || location == nil {
		return err
	}

	if err := p.store.AppendRadarSample(ctx, location.LocationID, sample); err != nil {
		return err
	}

	return p.evaluate(ctx, location)
}

// HeartbeatMessage is the decoded firmware heartbeat payload.
type HeartbeatMessage struct {
	DoorMissedMessages   int    `json:"doorMissedMsg"`
	DoorLowBattery       bool   `json:"doorLowBatt"`
	DoorLastHeartbeatMs  int64  `json:"doorLastHeartbeat"`
	ResetReason          string `json:"resetReason"`
	StateTransitionsJSON string `json:"-"`
}

// IngestHeartbeat records a firmware heartbeat report. Heartbeats are
// accepted even for locations gated off from alerting so the vitals sweep
// still sees the device.
func (p *Pipeline) IngestHeartbeat(ctx context.Context, coreID string, msg HeartbeatMessage) error {
	location, err := p.locations.GetLocationByCoreID(ctx, coreID)
	if err != nil {
		return err
	}
	if location == nil {
		p.logger.Error("No location matches core id", zap.String("core_id", coreID))
		return nil
	}

	now := time.Now()
	vital := &models.SensorsVital{
		LocationID:              location.LocationID,
		MissedDoorMessages:      msg.DoorMissedMessages,
		DoorLowBattery:          msg.DoorLowBattery,
		DoorLastSeenAt:          now.Add(-time.Duration(msg.DoorLastHeartbeatMs) * time.Millisecond),
		ResetReason:             msg.ResetReason,
		StateTransitionsPayload: msg.StateTransitionsJSON,
	}
	if vital.StateTransitionsPayload == "" {
		vital.StateTransitionsPayload = "[]"
	}

	if msg.DoorLowBattery {
		if err := p.lowBattery.SendLowBatteryAlert(ctx, location); err != nil {
			p.logger.Error("Failed to send low battery alert",
				zap.String("location_id", location.LocationID),
				zap.Error(err),
			)
		}
	}

	return p.vitals.LogSensorsVital(ctx, vital)
}

// evaluate runs the server-side state machine under the per-location lock.
// Firmware state machine locations skip evaluation entirely.
func (p *Pipeline) evaluate(ctx context.Context, location *models.Location) error {
	if location.UsesFirmwareStateMachine {
		return nil
	}

	muAny, _ := p.locks.LoadOrStore(location.LocationID, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	return p.machine.Evaluate(ctx, location)
}
