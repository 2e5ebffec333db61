package models

import "time"

// Location is a single deployed sensor installation (door contact + radar)
// tied to one client. Created and edited through the dashboard; the core
// reads it on every telemetry event and every vitals sweep.
type Location struct {
	LocationID  string
	DisplayName string
	ClientID    string
	// Particle device id, resolved from inbound webhooks
	RadarCoreID string
	PhoneNumber string
	RadarKind   RadarKind

	MovementThreshold float64
	InitialTimer      time.Duration
	DurationTimer     time.Duration
	StillnessTimer    time.Duration

	IsActive        bool
	IsSendingAlerts bool
	// When true the device classifies alerts itself and only the heartbeat
	// path applies; the server-side state machine is skipped entirely
	UsesFirmwareStateMachine bool

	// Vitals markers, nil when no alert is outstanding / none sent yet
	SentVitalsAlertAt     *time.Time
	SentLowBatteryAlertAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	// Owning client, populated by the repository on reads
	Client *Client
}
