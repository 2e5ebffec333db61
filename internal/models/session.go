package models

import "time"

// Session is a persisted alert incident, from first alert to responder
// resolution. At most one non-completed session exists per location.
type Session struct {
	ID               string
	LocationID       string
	Status           SessionStatus
	AlertReason      AlertReason
	NumberOfAlerts   int
	IsResettable     bool
	IncidentCategory string
	Notes            string
	RespondedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
