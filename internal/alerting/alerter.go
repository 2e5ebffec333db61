package alerting

import (
	"context"
	"time"

	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/models"
)

// StartSessionParams is everything the alerter needs to open a responder
// conversation for a new session.
type StartSessionParams struct {
	SessionID               string             `json:"sessionId"`
	ToPhoneNumbers          []string           `json:"toPhoneNumbers"`
	FromPhoneNumber         string             `json:"fromPhoneNumber"`
	DeviceDisplayName       string             `json:"deviceName"`
	AlertReason             models.AlertReason `json:"alertReason"`
	Language                string             `json:"language"`
	Message                 string             `json:"message"`
	ReminderTimeout         time.Duration      `json:"-"`
	ReminderTimeoutMillis   int64              `json:"reminderTimeoutMillis"`
	ReminderMessage         string             `json:"reminderMessage"`
	FallbackTimeout         time.Duration      `json:"-"`
	FallbackTimeoutMillis   int64              `json:"fallbackTimeoutMillis"`
	FallbackMessage         string             `json:"fallbackMessage"`
	FallbackToPhoneNumbers  []string           `json:"fallbackToPhoneNumbers"`
	FallbackFromPhoneNumber string             `json:"fallbackFromPhoneNumber"`
}

// Alerter is the external human-facing conversation capability. The SMS
// delivery engine behind it is out of scope; this service only drives it.
type Alerter interface {
	StartSession(ctx context.Context, params StartSessionParams) error
	SendSessionUpdate(ctx context.Context, sessionID string, toPhoneNumbers []string, fromPhoneNumber string, message string) error
	SendSingleAlert(ctx context.Context, toPhoneNumber string, fromPhoneNumber string, message string) error
}
