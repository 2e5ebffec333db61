package evaluator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/models"
	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/telemetry"
)

// ThresholdEvaluator holds the pure threshold checks the state machine runs
// against a location's telemetry window.
type ThresholdEvaluator struct {
	store           *telemetry.Store
	radarWindowSize int64
	logger          *zap.Logger
}

// NewThresholdEvaluator creates a threshold evaluator
func NewThresholdEvaluator(store *telemetry.Store, radarWindowSize int, logger *zap.Logger) *ThresholdEvaluator {
	return &ThresholdEvaluator{
		store:           store,
		radarWindowSize: int64(radarWindowSize),
		logger:          logger,
	}
}

// MovementAverageOverThreshold reports whether any radar channel's mean over
// the most recent sample window exceeds the threshold. An empty window is
// false: absence of data is not evidence of movement. Short windows are
// averaged over however many samples exist.
func (e *ThresholdEvaluator) MovementAverageOverThreshold(ctx context.Context, locationID string, kind models.RadarKind, threshold float64) (bool, error) {
	samples, err := e.store.RadarWindow(ctx, locationID, e.radarWindowSize)
	if err != nil {
		return false, fmt.Errorf("movementAverageOverThreshold: %w", err)
	}
	if len(samples) == 0 {
		return false, nil
	}

	sums := make([]float64, len(kind.Channels(samples[0])))
	for _, sample := range samples {
		for i, v := range kind.Channels(sample) {
			sums[i] += v
		}
	}

	for _, sum := range sums {
		if sum/float64(len(samples)) > threshold {
			return true, nil
		}
	}
	return false, nil
}

// TimerExceeded reports whether the location has remained continuously
// outside target for at least d: true iff target appears nowhere in the
// recorded state window [now-d, now]. A location with no state history at
// all returns false, so freshly provisioned locations never alert spuriously.
func (e *ThresholdEvaluator) TimerExceeded(ctx context.Context, locationID string, d time.Duration, target models.OccupancyState) (bool, error) {
	now, err := e.store.Now(ctx)
	if err != nil {
		return false, fmt.Errorf("timerExceeded: %w", err)
	}

	entries, err := e.store.StatesSince(ctx, locationID, now.Add(-d))
	if err != nil {
		return false, fmt.Errorf("timerExceeded: %w", err)
	}
	if len(entries) == 0 {
		return false, nil
	}

	for _, entry := range entries {
		if entry.State == string(target) {
			return false, nil
		}
	}
	return true, nil
}
