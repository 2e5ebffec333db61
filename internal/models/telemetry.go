package models

import "time"

// DoorSample is one reported contact sensor event.
type DoorSample struct {
	Signal     DoorSignal
	LowBattery bool
	Tampered   bool
	Timestamp  time.Time
}

// RadarSample is one reported radar reading. Which fields are meaningful
// depends on the location's RadarKind: the dual kind fills MovementFast and
// MovementSlow, the mono kind fills Amplitude.
type RadarSample struct {
	MovementFast float64
	MovementSlow float64
	Amplitude    float64
	Timestamp    time.Time
}

// StateEntry is one recorded state machine evaluation. Every evaluation
// appends one, including self-transitions.
type StateEntry struct {
	State     string
	Timestamp time.Time
}

// SensorsVital is one firmware heartbeat report, persisted for the vitals
// sweep over firmware-state-machine locations.
type SensorsVital struct {
	ID                      int64
	LocationID              string
	MissedDoorMessages      int
	DoorLowBattery          bool
	DoorLastSeenAt          time.Time
	ResetReason             string
	StateTransitionsPayload string
	CreatedAt               time.Time
}
