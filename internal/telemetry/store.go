package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/models"
)

// Stream retention, MAXLEN ~ so Redis trims in whole macro nodes. Door events
// are sparse; radar and state entries arrive continuously.
const (
	doorStreamMaxLen  = 10000
	radarStreamMaxLen = 604800
	stateStreamMaxLen = 604800
)

// Store is the telemetry store: append-only per-location time-ordered logs
// for door events, radar samples and state machine transitions, backed by
// Redis Streams.
type Store struct {
	client *redis.Client
	logger *zap.Logger
}

// NewStore creates a telemetry store
func NewStore(client *redis.Client, logger *zap.Logger) *Store {
	return &Store{
		client: client,
		logger: logger,
	}
}

func doorStreamKey(locationID string) string {
	return "door:" + locationID
}

func radarStreamKey(locationID string) string {
	return "radar:" + locationID
}

func stateStreamKey(locationID string) string {
	return "state:" + locationID
}

// Now returns the Redis server time. All window math uses this single clock
// so entry ids and range bounds never disagree.
func (s *Store) Now(ctx context.Context) (time.Time, error) {
	t, err := s.client.Time(ctx).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read redis time: %w", err)
	}
	return t, nil
}

// AppendDoorSample appends a door event to the location's door stream
func (s *Store) AppendDoorSample(ctx context.Context, locationID string, sample models.DoorSample) error {
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: doorStreamKey(locationID),
		MaxLen: doorStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"signal":      string(sample.Signal),
			"low_battery": strconv.FormatBool(sample.LowBattery),
			"tampered":    strconv.FormatBool(sample.Tampered),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to append door sample: %w", err)
	}
	return nil
}

// AppendRadarSample appends a radar reading to the location's radar stream
func (s *Store) AppendRadarSample(ctx context.Context, locationID string, sample models.RadarSample) error {
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: radarStreamKey(locationID),
		MaxLen: radarStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"fast":      strconv.FormatFloat(sample.MovementFast, 'f', -1, 64),
			"slow":      strconv.FormatFloat(sample.MovementSlow, 'f', -1, 64),
			"amplitude": strconv.FormatFloat(sample.Amplitude, 'f', -1, 64),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to append radar sample: %w", err)
	}
	return nil
}

// AppendStateTransition records one state machine evaluation result. Called
// for every evaluation, including self-transitions; TimerExceeded depends on
// this.
func (s *Store) AppendStateTransition(ctx context.Context, locationID string, state models.OccupancyState) error {
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stateStreamKey(locationID),
		MaxLen: stateStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"state": string(state),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to append state transition: %w", err)
	}

	s.logger.Debug("State transition recorded",
		zap.String("location_id", locationID),
		zap.String("state", string(state)),
	)
	return nil
}

// LatestDoorSample returns the most recent door event, or nil when the
// location has no door telemetry at all.
func (s *Store) LatestDoorSample(ctx context.Context, locationID string) (*models.DoorSample, error) {
	msgs, err := s.client.XRevRangeN(ctx, doorStreamKey(locationID), "+", "-", 1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read door stream: %w", err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	sample := parseDoorSample(msgs[0])
	return &sample, nil
}

// LatestRadarSample returns the most recent radar reading, or nil when the
// location has no radar telemetry at all.
func (s *Store) LatestRadarSample(ctx context.Context, locationID string) (*models.RadarSample, error) {
	msgs, err := s.client.XRevRangeN(ctx, radarStreamKey(locationID), "+", "-", 1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read radar stream: %w", err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	sample := parseRadarSample(msgs[0])
	return &sample, nil
}

// RadarWindow returns the most recent count radar readings, newest first.
// Short windows return however many samples exist.
func (s *Store) RadarWindow(ctx context.Context, locationID string, count int64) ([]models.RadarSample, error) {
	msgs, err := s.client.XRevRangeN(ctx, radarStreamKey(locationID), "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read radar window: %w", err)
	}

	samples := make([]models.RadarSample, 0, len(msgs))
	for _, msg := range msgs {
		samples = append(samples, parseRadarSample(msg))
	}
	return samples, nil
}

// LatestState returns the most recent recorded state machine entry, or nil
// when the location has no state history.
func (s *Store) LatestState(ctx context.Context, locationID string) (*models.StateEntry, error) {
	msgs, err := s.client.XRevRangeN(ctx, stateStreamKey(locationID), "+", "-", 1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read state stream: %w", err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	entry := parseStateEntry(msgs[0])
	return &entry, nil
}

// StatesSince returns all recorded state entries in [since, now], newest
// first. An empty slice means no history in the window.
func (s *Store) StatesSince(ctx context.Context, locationID string, since time.Time) ([]models.StateEntry, error) {
	start := strconv.FormatInt(since.UnixMilli(), 10)
	msgs, err := s.client.XRevRange(ctx, stateStreamKey(locationID), "+", start).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read state window: %w", err)
	}

	entries := make([]models.StateEntry, 0, len(msgs))
	for _, msg := range msgs {
		entries = append(entries, parseStateEntry(msg))
	}
	return entries, nil
}

func parseDoorSample(msg redis.XMessage) models.DoorSample {
	return models.DoorSample{
		Signal:     models.DoorSignal(stringValue(msg, "signal")),
		LowBattery: stringValue(msg, "low_battery") == "true",
		Tampered:   stringValue(msg, "tampered") == "true",
		Timestamp:  timeFromStreamID(msg.ID),
	}
}

func parseRadarSample(msg redis.XMessage) models.RadarSample {
	return models.RadarSample{
		MovementFast: floatValue(msg, "fast"),
		MovementSlow: floatValue(msg, "slow"),
		Amplitude:    floatValue(msg, "amplitude"),
		Timestamp:    timeFromStreamID(msg.ID),
	}
}

func parseStateEntry(msg redis.XMessage) models.StateEntry {
	return models.StateEntry{
		State:     stringValue(msg, "state"),
		Timestamp: timeFromStreamID(msg.ID),
	}
}

func stringValue(msg redis.XMessage, key string) string {
	if v, ok := msg.Values[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func floatValue(msg redis.XMessage, key string) float64 {
	f, _ := strconv.ParseFloat(stringValue(msg, key), 64)
	return f
}

// timeFromStreamID extracts the millisecond timestamp from a stream entry id
// ("<ms>-<seq>").
func timeFromStreamID(id string) time.Time {
	msPart := id
	if idx := strings.IndexByte(id, '-'); idx >= 0 {
		msPart = id[:idx]
	}
	ms, err := strconv.ParseInt(msPart, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
