package vitals

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/alerting"
	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/config"
	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/models"
	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/tracking"
)

// Narrow views of the repositories and the telemetry store. The sweeps only
// need these, and tests fake them.

type locationStore interface {
	GetActiveServerStateMachineLocations(ctx context.Context) ([]models.Location, error)
	GetActiveFirmwareStateMachineLocations(ctx context.Context) ([]models.Location, error)
	GetLocationsForClient(ctx context.Context, clientID string) ([]models.Location, error)
	UpdateSentVitalsAlert(ctx context.Context, locationID string, sent bool) error
	UpdateLowBatteryAlertTime(ctx context.Context, locationID string) error
}

type clientStore interface {
	GetClientsSendingAlerts(ctx context.Context) ([]models.Client, error)
}

type sessionStore interface {
	CountStillnessSessionsSince(ctx context.Context, locationID string, since time.Time) (int, error)
}

type vitalStore interface {
	GetMostRecentSensorsVital(ctx context.Context, locationID string) (*models.SensorsVital, error)
}

type telemetryReader interface {
	LatestDoorSample(ctx context.Context, locationID string) (*models.DoorSample, error)
	LatestRadarSample(ctx context.Context, locationID string) (*models.RadarSample, error)
	Now(ctx context.Context) (time.Time, error)
}

type singleAlerter interface {
	SendSingleAlert(ctx context.Context, toPhoneNumber string, fromPhoneNumber string, message string) error
}

// Monitor runs the periodic vitals sweeps: heartbeat/disconnect detection,
// low battery notices and alert-frequency anomaly detection. Each location is
// evaluated independently; one stuck location never blocks the sweep.
type Monitor struct {
	cfg       *config.Config
	locations locationStore
	clients   clientStore
	sessions  sessionStore
	vitals    vitalStore
	store     telemetryReader
	alerter   singleAlerter
	tracker   tracking.Tracker
	logger    *zap.Logger

	// wall clock for cool-down comparisons, overridable in tests
	now func() time.Time
}

// NewMonitor creates a vitals monitor
func NewMonitor(
	cfg *config.Config,
	locations locationStore,
	clients clientStore,
	sessions sessionStore,
	vitals vitalStore,
	store telemetryReader,
	alerter singleAlerter,
	tracker tracking.Tracker,
	logger *zap.Logger,
) *Monitor {
	return &Monitor{
		cfg:       cfg,
		locations: locations,
		clients:   clients,
		sessions:  sessions,
		vitals:    vitals,
		store:     store,
		alerter:   alerter,
		tracker:   tracker,
		logger:    logger,
		now:       time.Now,
	}
}

// CheckHeartbeat sweeps every active location for silent sensors. Server
// state machine locations are judged by their telemetry stream timestamps;
// firmware state machine locations by their most recent heartbeat report.
func (m *Monitor) CheckHeartbeat(ctx context.Context) {
	serverLocations, err := m.locations.GetActiveServerStateMachineLocations(ctx)
	if err != nil {
		m.logger.Error("Failed to list server state machine locations", zap.Error(err))
	} else {
		for i := range serverLocations {
			location := &serverLocations[i]
			if err := m.checkServerLocationHeartbeat(ctx, location); err != nil {
				m.logger.Error("Error checking heartbeat",
					zap.String("location_id", location.LocationID),
					zap.Error(err),
				)
			}
		}
	}

	firmwareLocations, err := m.locations.GetActiveFirmwareStateMachineLocations(ctx)
	if err != nil {
		m.logger.Error("Failed to list firmware state machine locations", zap.Error(err))
		return
	}
	for i := range firmwareLocations {
		location := &firmwareLocations[i]
		if err := m.checkFirmwareLocationHeartbeat(ctx, location); err != nil {
			m.logger.Error("Error checking heartbeat",
				zap.String("location_id", location.LocationID),
				zap.Error(err),
			)
		}
	}
}

func (m *Monitor) checkServerLocationHeartbeat(ctx context.Context, location *models.Location) error {
	radar, err := m.store.LatestRadarSample(ctx, location.LocationID)
	if err != nil {
		return err
	}
	door, err := m.store.LatestDoorSample(ctx, location.LocationID)
	if err != nil {
		return err
	}
	if radar == nil || door == nil {
		return fmt.Errorf("no telemetry yet for %s", location.LocationID)
	}

	now, err := m.store.Now(ctx)
	if err != nil {
		return err
	}

	radarExceeded := now.Sub(radar.Timestamp) > m.cfg.Vitals.RadarThreshold
	doorExceeded := now.Sub(door.Timestamp) > m.cfg.Vitals.DoorThreshold

	return m.applyHeartbeatState(ctx, location, doorExceeded, radarExceeded, "")
}

func (m *Monitor) checkFirmwareLocationHeartbeat(ctx context.Context, location *models.Location) error {
	vital, err := m.vitals.GetMostRecentSensorsVital(ctx, location.LocationID)
	if err != nil {
		return err
	}
	if vital == nil {
		// Device has never reported; nothing to judge against
		return nil
	}

	now := m.now()
	radarExceeded := now.Sub(vital.CreatedAt) > m.cfg.Vitals.RadarThreshold
	doorExceeded := now.Sub(vital.DoorLastSeenAt) > m.cfg.Vitals.DoorThreshold

	return m.applyHeartbeatState(ctx, location, doorExceeded, radarExceeded, vital.ResetReason)
}

// applyHeartbeatState is the three-way disconnection logic: first breach
// alerts and marks, a breach inside the cool-down is silent, past the
// cool-down it reminds, and recovery clears the marker with a reconnection
// notice.
func (m *Monitor) applyHeartbeatState(ctx context.Context, location *models.Location, doorExceeded bool, radarExceeded bool, resetReason string) error {
	if doorExceeded || radarExceeded {
		if location.SentVitalsAlertAt == nil {
			if doorExceeded {
				m.tracker.LogError(fmt.Sprintf("Door sensor down at %s", location.LocationID))
			}
			if radarExceeded {
				m.tracker.LogError(fmt.Sprintf("Radar sensor down at %s", location.LocationID))
			}
			if err := m.locations.UpdateSentVitalsAlert(ctx, location.LocationID, true); err != nil {
				return err
			}
			m.sendVitalsMessage(ctx, location, alerting.DisconnectionMessage(location.DisplayName, location.LocationID))
			return nil
		}

		if m.now().Sub(*location.SentVitalsAlertAt) > m.cfg.Vitals.SubsequentAlertThreshold {
			if err := m.locations.UpdateSentVitalsAlert(ctx, location.LocationID, true); err != nil {
				return err
			}
			m.sendVitalsMessage(ctx, location, alerting.DisconnectionReminderMessage(location.DisplayName, location.LocationID))
		}
		return nil
	}

	if location.SentVitalsAlertAt != nil {
		if resetReason != "" {
			m.tracker.LogError(fmt.Sprintf("%s reconnected after reason: %s", location.LocationID, resetReason))
		} else {
			m.tracker.LogError(fmt.Sprintf("%s reconnected", location.LocationID))
		}
		if err := m.locations.UpdateSentVitalsAlert(ctx, location.LocationID, false); err != nil {
			return err
		}
		m.sendVitalsMessage(ctx, location, alerting.ReconnectionMessage(location.DisplayName, location.LocationID, resetReason))
	}
	return nil
}

// CheckForInternalProblems flags locations producing an anomalous number of
// stillness sessions, which points at a sensor stuck oscillating. Genuine
// duration alerts are deliberately excluded from the count.
func (m *Monitor) CheckForInternalProblems(ctx context.Context) {
	clients, err := m.clients.GetClientsSendingAlerts(ctx)
	if err != nil {
		m.logger.Error("Failed to list clients for internal problems sweep", zap.Error(err))
		return
	}

	since := m.now().Add(-m.cfg.Vitals.AlertCheckWindow)

	for i := range clients {
		client := &clients[i]
		locations, err := m.locations.GetLocationsForClient(ctx, client.ID)
		if err != nil {
			m.logger.Error("Failed to list locations for client",
				zap.String("client_id", client.ID),
				zap.Error(err),
			)
			continue
		}

		for j := range locations {
			location := &locations[j]
			if !location.IsActive || !location.IsSendingAlerts {
				continue
			}

			count, err := m.sessions.CountStillnessSessionsSince(ctx, location.LocationID, since)
			if err != nil {
				m.logger.Error("Failed to count stillness sessions",
					zap.String("location_id", location.LocationID),
					zap.Error(err),
				)
				continue
			}

			// One aggregate warning per location, not one per session
			if count > m.cfg.Vitals.MaxStillnessAlerts {
				m.tracker.LogWarning(fmt.Sprintf(
					"Sensor at %s has generated %d stillness alerts in the last %s, exceeding the maximum of %d; it may be malfunctioning",
					location.LocationID, count, m.cfg.Vitals.AlertCheckWindow, m.cfg.Vitals.MaxStillnessAlerts))
			}
		}
	}
}

// SendLowBatteryAlert notifies the client that a door sensor battery needs
// replacing, at most once per cool-down period per location.
func (m *Monitor) SendLowBatteryAlert(ctx context.Context, location *models.Location) error {
	if !location.IsActive || location.Client == nil || !location.Client.IsActive || !location.Client.IsSendingVitals {
		return nil
	}

	now := m.now()
	if location.SentLowBatteryAlertAt != nil && now.Sub(*location.SentLowBatteryAlertAt) < m.cfg.Vitals.LowBatteryAlertTimeout {
		return nil
	}

	m.tracker.LogWarning(fmt.Sprintf("Received a low battery alert for %s", location.LocationID))
	m.sendVitalsMessage(ctx, location, alerting.LowBatteryMessage(location.DisplayName))

	if err := m.locations.UpdateLowBatteryAlertTime(ctx, location.LocationID); err != nil {
		return fmt.Errorf("sendLowBatteryAlert: %w", err)
	}

	ts := now
	location.SentLowBatteryAlertAt = &ts
	return nil
}

// sendVitalsMessage fans a single operational message out to the client's
// responder and heartbeat recipients. Send failures are logged and do not
// abort the sweep.
func (m *Monitor) sendVitalsMessage(ctx context.Context, location *models.Location, message string) {
	client := location.Client
	if client == nil || !client.IsSendingVitals {
		return
	}

	recipients := make([]string, 0, len(client.ResponderPhoneNumbers)+len(client.HeartbeatPhoneNumbers))
	recipients = append(recipients, client.ResponderPhoneNumbers...)
	recipients = append(recipients, client.HeartbeatPhoneNumbers...)

	for _, to := range recipients {
		if err := m.alerter.SendSingleAlert(ctx, to, client.FromPhoneNumber, message); err != nil {
			m.logger.Error("Failed to send vitals message",
				zap.String("location_id", location.LocationID),
				zap.String("to", to),
				zap.Error(err),
			)
		}
	}
}
