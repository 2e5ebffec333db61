package models

import (
	"encoding/json"
	"fmt"
)

// AlertMetadata is the device-supplied payload attached to a firmware alert.
// Only the published-alert count is consumed server-side; it drives the
// session resettable flag.
type AlertMetadata struct {
	NumberOfAlertsPublished int `json:"numberOfAlertsPublished"`
}

// ParseAlertMetadata decodes raw alert metadata. Callers are expected to
// match on the error and fall back to a non-resettable session; a malformed
// payload must never fail the alert itself.
func ParseAlertMetadata(raw []byte) (*AlertMetadata, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty alert metadata")
	}

	var metadata AlertMetadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alert metadata: %w", err)
	}

	return &metadata, nil
}
