package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/models"
)

// LocationRepository reads location records and maintains the per-location
// vitals markers. Locations themselves are managed by the external dashboard.
type LocationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewLocationRepository creates a location repository
func NewLocationRepository(db *sql.DB, logger *zap.Logger) *LocationRepository {
	return &LocationRepository{
		db:     db,
		logger: logger,
	}
}

// Every read joins the owning client: the core needs the client gating flags
// and contact numbers on every telemetry event and every sweep.
const locationSelect = `
	SELECT
		l.locationid, l.display_name, l.client_id, l.radar_core_id, l.phone_number,
		l.radar_kind, l.movement_threshold, l.initial_timer_seconds,
		l.duration_timer_seconds, l.stillness_timer_seconds, l.is_active,
		l.is_sending_alerts, l.uses_firmware_state_machine, l.sent_vitals_alert_at,
		l.sent_low_battery_alert_at, l.created_at, l.updated_at,
		c.id, c.display_name, c.language, c.responder_phone_numbers,
		c.fallback_phone_numbers, c.heartbeat_phone_numbers, c.from_phone_number,
		c.reminder_timeout_seconds, c.fallback_timeout_seconds, c.is_active,
		c.is_sending_alerts, c.is_sending_vitals, c.created_at, c.updated_at
	FROM locations l
	JOIN clients c ON l.client_id = c.id`

// GetLocationByCoreID resolves an inbound webhook's device id to a location.
// Returns nil when no location matches.
func (r *LocationRepository) GetLocationByCoreID(ctx context.Context, coreID string) (*models.Location, error) {
	query := locationSelect + `
	WHERE l.radar_core_id = $1`

	row := r.db.QueryRowContext(ctx, query, coreID)
	location, err := scanLocation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get location by core id: %w", err)
	}
	return location, nil
}

// GetActiveServerStateMachineLocations returns active locations driven by the
// server-side state machine.
func (r *LocationRepository) GetActiveServerStateMachineLocations(ctx context.Context) ([]models.Location, error) {
	return r.queryLocations(ctx, locationSelect+`
	WHERE l.is_active = true AND c.is_active = true AND l.uses_firmware_state_machine = false
	ORDER BY l.locationid`)
}

// GetActiveFirmwareStateMachineLocations returns active locations whose
// device classifies alerts itself; only the heartbeat path applies to them.
func (r *LocationRepository) GetActiveFirmwareStateMachineLocations(ctx context.Context) ([]models.Location, error) {
	return r.queryLocations(ctx, locationSelect+`
	WHERE l.is_active = true AND c.is_active = true AND l.uses_firmware_state_machine = true
	ORDER BY l.locationid`)
}

// GetLocationsForClient returns all locations owned by one client
func (r *LocationRepository) GetLocationsForClient(ctx context.Context, clientID string) ([]models.Location, error) {
	query := locationSelect + `
	WHERE l.client_id = $1
	ORDER BY l.locationid`

	rows, err := r.db.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()
	return collectLocations(rows)
}

func (r *LocationRepository) queryLocations(ctx context.Context, query string) ([]models.Location, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()
	return collectLocations(rows)
}

// UpdateSentVitalsAlert sets or clears the outstanding disconnection alert
// marker for a location.
func (r *LocationRepository) UpdateSentVitalsAlert(ctx context.Context, locationID string, sent bool) error {
	var query string
	if sent {
		query = `UPDATE locations SET sent_vitals_alert_at = NOW(), updated_at = NOW() WHERE locationid = $1`
	} else {
		query = `UPDATE locations SET sent_vitals_alert_at = NULL, updated_at = NOW() WHERE locationid = $1`
	}

	if _, err := r.db.ExecContext(ctx, query, locationID); err != nil {
		return fmt.Errorf("failed to update sent vitals alert: %w", err)
	}
	return nil
}

// UpdateLowBatteryAlertTime stamps the last low battery alert for a location
func (r *LocationRepository) UpdateLowBatteryAlertTime(ctx context.Context, locationID string) error {
	query := `UPDATE locations SET sent_low_battery_alert_at = NOW(), updated_at = NOW() WHERE locationid = $1`

	if _, err := r.db.ExecContext(ctx, query, locationID); err != nil {
		return fmt.Errorf("failed to update low battery alert time: %w", err)
	}
	return nil
}

func collectLocations(rows *sql.Rows) ([]models.Location, error) {
	var locations []models.Location
	for rows.Next() {
		location, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		locations = append(locations, *location)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate locations: %w", err)
	}
	return locations, nil
}

func scanLocation(row rowScanner) (*models.Location, error) {
	var location models.Location
	var client models.Client
	var initialSeconds, durationSeconds, stillnessSeconds int64
	var reminderTimeoutSeconds, fallbackTimeoutSeconds int64
	var sentVitalsAlertAt, sentLowBatteryAlertAt sql.NullTime

	err := row.Scan(
		&location.LocationID,
		&location.DisplayName,
		&location.ClientID,
		&location.RadarCoreID,
		&location.PhoneNumber,
		&location.RadarKind,
		&location.MovementThreshold,
		&initialSeconds,
		&durationSeconds,
		&stillnessSeconds,
		&location.IsActive,
		&location.IsSendingAlerts,
		&location.UsesFirmwareStateMachine,
		&sentVitalsAlertAt,
		&sentLowBatteryAlertAt,
		&location.CreatedAt,
		&location.UpdatedAt,
		&client.ID,
		&client.DisplayName,
		&client.Language,
		pq.Array(&client.ResponderPhoneNumbers),
		pq.Array(&client.FallbackPhoneNumbers),
		pq.Array(&client.HeartbeatPhoneNumbers),
		&client.FromPhoneNumber,
		&reminderTimeoutSeconds,
		&fallbackTimeoutSeconds,
		&client.IsActive,
		&client.IsSendingAlerts,
		&client.IsSendingVitals,
		&client.CreatedAt,
		&client.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	location.InitialTimer = time.Duration(initialSeconds) * time.Second
	location.DurationTimer = time.Duration(durationSeconds) * time.Second
	location.StillnessTimer = time.Duration(stillnessSeconds) * time.Second
	if sentVitalsAlertAt.Valid {
		t := sentVitalsAlertAt.Time
		location.SentVitalsAlertAt = &t
	}
	if sentLowBatteryAlertAt.Valid {
		t := sentLowBatteryAlertAt.Time
		location.SentLowBatteryAlertAt = &t
	}

	client.ReminderTimeout = time.Duration(reminderTimeoutSeconds) * time.Second
	client.FallbackTimeout = time.Duration(fallbackTimeoutSeconds) * time.Second
	location.Client = &client
	return &location, nil
}
