package evaluator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/models"
	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/telemetry"
)

// AlertHandler receives alerts raised by the state machine. Server-side
// alerts carry no device metadata, so rawMetadata is nil here.
type AlertHandler interface {
	HandleAlert(ctx context.Context, location *models.Location, reason models.AlertReason, rawMetadata []byte) error
}

// StateMachine is the per-location occupancy state machine. It holds no
// in-memory state: the current state is re-derived from the latest recorded
// transition on every evaluation, so any instance can drive any location and
// a crash loses nothing.
//
// Every evaluation appends exactly one transition record, including
// self-transitions. The timer checks therefore reference the state that was
// *left*: once the machine moves on, that state stops being appended and
// eventually falls out of the inspected window.
type StateMachine struct {
	store      *telemetry.Store
	thresholds *ThresholdEvaluator
	alerts     AlertHandler
	logger     *zap.Logger
}

// NewStateMachine creates a state machine evaluator
func NewStateMachine(store *telemetry.Store, thresholds *ThresholdEvaluator, alerts AlertHandler, logger *zap.Logger) *StateMachine {
	return &StateMachine{
		store:      store,
		thresholds: thresholds,
		alerts:     alerts,
		logger:     logger,
	}
}

// Evaluate advances the state machine for one location by one step. Any
// error evaluating inputs abandons the evaluation with no transition
// recorded; the next telemetry event re-evaluates from the same state.
func (sm *StateMachine) Evaluate(ctx context.Context, location *models.Location) error {
	door, err := sm.store.LatestDoorSample(ctx, location.LocationID)
	if err != nil {
		return fmt.Errorf("state machine evaluation for %s: %w", location.LocationID, err)
	}
	if door == nil {
		return fmt.Errorf("state machine evaluation for %s: no door telemetry", location.LocationID)
	}

	latest, err := sm.store.LatestState(ctx, location.LocationID)
	if err != nil {
		return fmt.Errorf("state machine evaluation for %s: %w", location.LocationID, err)
	}

	state := models.StateIdle
	known := false
	if latest != nil {
		state, known = models.ParseOccupancyState(latest.State)
	}
	if latest == nil || !known {
		// Missing or unrecognized history resets to IDLE
		return sm.record(ctx, location, models.StateIdle)
	}

	movementOver, err := sm.thresholds.MovementAverageOverThreshold(ctx, location.LocationID, location.RadarKind, location.MovementThreshold)
	if err != nil {
		return fmt.Errorf("state machine evaluation for %s: %w", location.LocationID, err)
	}

	next, err := sm.nextState(ctx, location, state, door.Signal, movementOver)
	if err != nil {
		return fmt.Errorf("state machine evaluation for %s: %w", location.LocationID, err)
	}
	return sm.record(ctx, location, next)
}

// nextState applies the transition table. Conditions are checked in order;
// first match wins. Raising an alert happens before the IDLE transition is
// recorded.
func (sm *StateMachine) nextState(ctx context.Context, location *models.Location, state models.OccupancyState, door models.DoorSignal, movementOver bool) (models.OccupancyState, error) {
	switch state {
	case models.StateIdle:
		if door == models.DoorClosed && movementOver {
			return models.StateInitialTimer, nil
		}
		return models.StateIdle, nil

	case models.StateInitialTimer:
		if door == models.DoorOpen || !movementOver {
			return models.StateIdle, nil
		}
		exceeded, err := sm.thresholds.TimerExceeded(ctx, location.LocationID, location.InitialTimer, models.StateIdle)
		if err != nil {
			return state, err
		}
		if exceeded {
			return models.StateDurationTimer, nil
		}
		return models.StateInitialTimer, nil

	case models.StateDurationTimer:
		if door == models.DoorOpen {
			return models.StateIdle, nil
		}
		if !movementOver {
			return models.StateStillnessTimer, nil
		}
		exceeded, err := sm.thresholds.TimerExceeded(ctx, location.LocationID, location.InitialTimer+location.DurationTimer, models.StateIdle)
		if err != nil {
			return state, err
		}
		if exceeded {
			sm.raiseAlert(ctx, location, models.AlertReasonDuration)
			return models.StateIdle, nil
		}
		return models.StateDurationTimer, nil

	case models.StateStillnessTimer:
		if door == models.DoorOpen {
			return models.StateIdle, nil
		}
		if movementOver {
			return models.StateDurationTimer, nil
		}
		stillnessExceeded, err := sm.thresholds.TimerExceeded(ctx, location.LocationID, location.StillnessTimer, models.StateDurationTimer)
		if err != nil {
			return state, err
		}
		if stillnessExceeded {
			sm.raiseAlert(ctx, location, models.AlertReasonStillness)
			return models.StateIdle, nil
		}
		durationExceeded, err := sm.thresholds.TimerExceeded(ctx, location.LocationID, location.InitialTimer+location.DurationTimer, models.StateIdle)
		if err != nil {
			return state, err
		}
		if durationExceeded {
			sm.raiseAlert(ctx, location, models.AlertReasonDuration)
			return models.StateIdle, nil
		}
		return models.StateStillnessTimer, nil

	default:
		return models.StateIdle, nil
	}
}

// raiseAlert hands off to the session manager synchronously. A failed
// hand-off is logged and the transition still proceeds; the session manager
// never retries on its own.
func (sm *StateMachine) raiseAlert(ctx context.Context, location *models.Location, reason models.AlertReason) {
	if err := sm.alerts.HandleAlert(ctx, location, reason, nil); err != nil {
		sm.logger.Error("Failed to hand alert to session manager",
			zap.String("location_id", location.LocationID),
			zap.String("alert_reason", string(reason)),
			zap.Error(err),
		)
	}
}

func (sm *StateMachine) record(ctx context.Context, location *models.Location, next models.OccupancyState) error {
	if err := sm.store.AppendStateTransition(ctx, location.LocationID, next); err != nil {
		return fmt.Errorf("state machine evaluation for %s: %w", location.LocationID, err)
	}
	return nil
}
