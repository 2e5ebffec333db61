package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/models"
)

// SensorsVitalRepository persists firmware heartbeat reports. The heartbeat
// sweep reads the most recent row per location to decide disconnection.
type SensorsVitalRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSensorsVitalRepository creates a sensors vital repository
func NewSensorsVitalRepository(db *sql.DB, logger *zap.Logger) *SensorsVitalRepository {
	return &SensorsVitalRepository{
		db:     db,
		logger: logger,
	}
}

// LogSensorsVital appends one heartbeat report for a location
func (r *SensorsVitalRepository) LogSensorsVital(ctx context.Context, vital *models.SensorsVital) error {
	query := `
		INSERT INTO sensors_vitals (locationid, missed_door_messages, door_low_battery, door_last_seen_at, reset_reason, state_transitions)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		vital.LocationID,
		vital.MissedDoorMessages,
		vital.DoorLowBattery,
		vital.DoorLastSeenAt,
		vital.ResetReason,
		vital.StateTransitionsPayload,
	).Scan(&vital.ID, &vital.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to log sensors vital: %w", err)
	}
	return nil
}

// GetMostRecentSensorsVital returns the latest heartbeat report for a
// location, or nil when the device has never reported.
func (r *SensorsVitalRepository) GetMostRecentSensorsVital(ctx context.Context, locationID string) (*models.SensorsVital, error) {
	query := `
		SELECT id, locationid, missed_door_messages, door_low_battery, door_last_seen_at, reset_reason, state_transitions, created_at
		FROM sensors_vitals
		WHERE locationid = $1
		ORDER BY created_at DESC
		LIMIT 1`

	var vital models.SensorsVital
	err := r.db.QueryRowContext(ctx, query, locationID).Scan(
		&vital.ID,
		&vital.LocationID,
		&vital.MissedDoorMessages,
		&vital.DoorLowBattery,
		&vital.DoorLastSeenAt,
		&vital.ResetReason,
		&vital.StateTransitionsPayload,
		&vital.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get most recent sensors vital: %w", err)
	}
	return &vital, nil
}
