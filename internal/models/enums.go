package models

// OccupancyState is the server-side state machine state for a location.
type OccupancyState string

const (
	StateIdle           OccupancyState = "IDLE"
	StateInitialTimer   OccupancyState = "INITIAL_TIMER"
	StateDurationTimer  OccupancyState = "DURATION_TIMER"
	StateStillnessTimer OccupancyState = "STILLNESS_TIMER"
)

// ParseOccupancyState maps a stored state string back to its enum value.
// Anything unrecognized is returned as-is with ok=false so the state machine
// can fall back to IDLE.
func ParseOccupancyState(s string) (OccupancyState, bool) {
	switch OccupancyState(s) {
	case StateIdle, StateInitialTimer, StateDurationTimer, StateStillnessTimer:
		return OccupancyState(s), true
	default:
		return OccupancyState(s), false
	}
}

// AlertReason is why an alert session was raised.
type AlertReason string

const (
	AlertReasonDuration  AlertReason = "DURATION"
	AlertReasonStillness AlertReason = "STILLNESS"
)

// SessionStatus is the lifecycle state of an alert session. Everything other
// than Completed counts as active.
type SessionStatus string

const (
	SessionStatusStarted            SessionStatus = "STARTED"
	SessionStatusWaitingForReply    SessionStatus = "WAITING_FOR_REPLY"
	SessionStatusResponding         SessionStatus = "RESPONDING"
	SessionStatusWaitingForCategory SessionStatus = "WAITING_FOR_CATEGORY"
	SessionStatusCompleted          SessionStatus = "COMPLETED"
)

// DoorSignal is the reported contact sensor state.
type DoorSignal string

const (
	DoorOpen   DoorSignal = "OPEN"
	DoorClosed DoorSignal = "CLOSED"
)

// RadarKind selects which radar technology a location runs. The two kinds
// report different channels; everything downstream goes through Channels so
// the evaluators stay kind-agnostic.
type RadarKind string

const (
	// RadarKindDual reports two independent movement channels (fast and slow).
	RadarKindDual RadarKind = "dual_channel"
	// RadarKindMono reports a single signed amplitude channel.
	RadarKindMono RadarKind = "single_channel"
)

// Channels extracts the per-kind movement channels from a sample. The mono
// kind reports a signed amplitude, so it is folded to its magnitude here.
func (k RadarKind) Channels(s RadarSample) []float64 {
	switch k {
	case RadarKindMono:
		a := s.Amplitude
		if a < 0 {
			a = -a
		}
		return []float64{a}
	default:
		return []float64{s.MovementFast, s.MovementSlow}
	}
}
