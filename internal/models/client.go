package models

import "time"

// Client is the organization responsible for one or more locations. Created
// and edited through the dashboard; read-only for this service.
type Client struct {
	ID                    string
	DisplayName           string
	Language              string
	ResponderPhoneNumbers []string
	FallbackPhoneNumbers  []string
	HeartbeatPhoneNumbers []string
	FromPhoneNumber       string
	ReminderTimeout       time.Duration
	FallbackTimeout       time.Duration
	IsActive              bool
	// Gates whether the core may raise alert sessions for any of this
	// client's locations
	IsSendingAlerts bool
	// Gates disconnection/low-battery notices
	IsSendingVitals bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
