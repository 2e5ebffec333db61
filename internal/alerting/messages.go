package alerting

import (
	"fmt"

	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/models"
)

// Message templates. Localized templating lives in the alert gateway; the
// client language is passed through alongside these English defaults.

// AlertReasonDisplayName renders an alert reason for responder messages
func AlertReasonDisplayName(reason models.AlertReason) string {
	switch reason {
	case models.AlertReasonDuration:
		return "Duration"
	case models.AlertReasonStillness:
		return "Stillness"
	default:
		return string(reason)
	}
}

func alertStartMessage(reason models.AlertReason, deviceDisplayName string, isResettable bool) string {
	base := fmt.Sprintf("This is a %s alert. Please check on %s. Please respond with 'ok' once you have checked on it.",
		AlertReasonDisplayName(reason), deviceDisplayName)
	if isResettable {
		return base + " Respond with 'reset' if you would like to reset the sensor."
	}
	return base
}

func alertAdditionalMessage(reason models.AlertReason, deviceDisplayName string, isResettable bool) string {
	base := fmt.Sprintf("An additional %s alert was generated at %s.",
		AlertReasonDisplayName(reason), deviceDisplayName)
	if isResettable {
		return base + " Respond with 'reset' if you would like to reset the sensor."
	}
	return base
}

func alertReminderMessage(deviceDisplayName string) string {
	return fmt.Sprintf("This is a reminder to check on %s. Please respond with 'ok' once you have checked on it.", deviceDisplayName)
}

func alertFallbackMessage(deviceDisplayName string) string {
	return fmt.Sprintf("An alert at %s has not been responded to. Please check on it.", deviceDisplayName)
}

// DisconnectionMessage is sent when a location's sensors stop reporting
func DisconnectionMessage(displayName string, locationID string) string {
	return fmt.Sprintf("The sensor at %s (%s) has disconnected. Please press the reset buttons on either side of the sensor box. "+
		"If you do not receive a reconnection message shortly afterwards, contact your network administrator.",
		displayName, locationID)
}

// DisconnectionReminderMessage is the cool-down reminder for a still-down location
func DisconnectionReminderMessage(displayName string, locationID string) string {
	return fmt.Sprintf("The sensor at %s (%s) is still disconnected. Please press the reset buttons on either side of the sensor box. "+
		"If you do not receive a reconnection message shortly afterwards, contact your network administrator.",
		displayName, locationID)
}

// ReconnectionMessage is sent once a down location reports again. Firmware
// devices self-report why they reset; that reason is included when present.
func ReconnectionMessage(displayName string, locationID string, resetReason string) string {
	if resetReason != "" {
		return fmt.Sprintf("The sensor at %s (%s) has been reconnected after a reset (reason: %s).", displayName, locationID, resetReason)
	}
	return fmt.Sprintf("The sensor at %s (%s) has been reconnected.", displayName, locationID)
}

// LowBatteryMessage is sent when the door sensor reports a low battery
func LowBatteryMessage(displayName string) string {
	return fmt.Sprintf("The battery for the %s door sensor is low, and needs replacing.", displayName)
}
