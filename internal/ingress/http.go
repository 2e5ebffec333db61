package ingress

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/models"
)

// HTTPHandler exposes the device cloud webhook endpoints. Every endpoint
// answers 200 regardless of outcome: the device cloud throttles webhooks
// that return errors, and a throttled webhook means lost telemetry.
type HTTPHandler struct {
	pipeline *Pipeline
	apiKey   string
	logger   *zap.Logger
}

// NewHTTPHandler creates the webhook handler
func NewHTTPHandler(pipeline *Pipeline, apiKey string, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{
		pipeline: pipeline,
		apiKey:   apiKey,
		logger:   logger,
	}
}

// Register mounts the webhook routes on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/sensor-event", h.HandleSensorEvent)
	mux.HandleFunc("/api/door", h.HandleDoorEvent)
	mux.HandleFunc("/api/radar", h.HandleRadarSample)
	mux.HandleFunc("/api/heartbeat", h.HandleHeartbeat)
	mux.HandleFunc("/healthz", h.HandleHealth)
}

// webhookEnvelope is the common device cloud webhook shape. Data arrives as
// a JSON document whose fields depend on the event type.
type webhookEnvelope struct {
	CoreID string          `json:"coreid"`
	Event  string          `json:"event"`
	APIKey string          `json:"api_key"`
	Data   json.RawMessage `json:"data"`
}

// decode reads the envelope and checks the shared API key. It writes the 200
// response itself on failure and returns false.
func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request) (*webhookEnvelope, bool) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return nil, false
	}

	var envelope webhookEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		h.logger.Error("Bad webhook request body", zap.String("path", r.URL.Path), zap.Error(err))
		h.respondOK(w)
		return nil, false
	}
	if envelope.CoreID == "" {
		h.logger.Error("Webhook request missing core id", zap.String("path", r.URL.Path))
		h.respondOK(w)
		return nil, false
	}
	if envelope.APIKey != h.apiKey {
		h.logger.Error("Webhook request with bad API key",
			zap.String("path", r.URL.Path),
			zap.String("core_id", envelope.CoreID),
		)
		h.respondOK(w)
		return nil, false
	}
	return &envelope, true
}

func (h *HTTPHandler) respondOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"OK"}`))
}

// HandleSensorEvent receives firmware-classified DURATION and STILLNESS
// alerts. The data document is forwarded to the session manager unparsed.
func (h *HTTPHandler) HandleSensorEvent(w http.ResponseWriter, r *http.Request) {
	envelope, ok := h.decode(w, r)
	if !ok {
		return
	}

	if err := h.pipeline.HandleSensorEvent(r.Context(), envelope.CoreID, envelope.Event, envelope.Data); err != nil {
		h.logger.Error("Failed to handle sensor event",
			zap.String("core_id", envelope.CoreID),
			zap.String("event", envelope.Event),
			zap.Error(err),
		)
	}
	h.respondOK(w)
}

type doorPayload struct {
	Signal     string `json:"signal"`
	LowBattery bool   `json:"lowBattery"`
	Tampered   bool   `json:"tampered"`
}

// HandleDoorEvent receives door contact open/close events.
func (h *HTTPHandler) HandleDoorEvent(w http.ResponseWriter, r *http.Request) {
	envelope, ok := h.decode(w, r)
	if !ok {
		return
	}

	var payload doorPayload
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		h.logger.Error("Bad door payload", zap.String("core_id", envelope.CoreID), zap.Error(err))
		h.respondOK(w)
		return
	}

	var signal models.DoorSignal
	switch payload.Signal {
	case "open", "OPEN":
		signal = models.DoorOpen
	case "closed", "CLOSED":
		signal = models.DoorClosed
	default:
		h.logger.Error("Unrecognized door signal",
			zap.String("core_id", envelope.CoreID),
			zap.String("signal", payload.Signal),
		)
		h.respondOK(w)
		return
	}

	sample := models.DoorSample{
		Signal:     signal,
		LowBattery: payload.LowBattery,
		Tampered:   payload.Tampered,
	}
	if err := h.pipeline.IngestDoorEvent(r.Context(), envelope.CoreID, sample); err != nil {
		h.logger.Error("Failed to ingest door event",
			zap.String("core_id", envelope.CoreID),
			zap.Error(err),
		)
	}
	h.respondOK(w)
}

type radarPayload struct {
	MovementFast float64 `json:"fast"`
	MovementSlow float64 `json:"slow"`
	Amplitude    float64 `json:"amplitude"`
}

// HandleRadarSample receives motion radar readings.
func (h *HTTPHandler) HandleRadarSample(w http.ResponseWriter, r *http.Request) {
	envelope, ok := h.decode(w, r)
	if !ok {
		return
	}

	var payload radarPayload
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		h.logger.Error("Bad radar payload", zap.String("core_id", envelope.CoreID), zap.Error(err))
		h.respondOK(w)
		return
	}

	sample := models.RadarSample{
		MovementFast: payload.MovementFast,
		MovementSlow: payload.MovementSlow,
		Amplitude:    payload.Amplitude,
	}
	if err := h.pipeline.IngestRadarSample(r.Context(), envelope.CoreID, sample); err != nil {
		h.logger.Error("Failed to ingest radar sample",
			zap.String("core_id", envelope.CoreID),
			zap.Error(err),
		)
	}
	h.respondOK(w)
}

type heartbeatPayload struct {
	DoorMissedMessages  int             `json:"doorMissedMsg"`
	DoorLowBattery      bool            `json:"doorLowBatt"`
	DoorLastHeartbeatMs int64           `json:"doorLastHeartbeat"`
	ResetReason         string          `json:"resetReason"`
	States              json.RawMessage `json:"states"`
}

// HandleHeartbeat receives the periodic firmware vitals report.
func (h *HTTPHandler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	envelope, ok := h.decode(w, r)
	if !ok {
		return
	}

	var payload heartbeatPayload
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		h.logger.Error("Bad heartbeat payload", zap.String("core_id", envelope.CoreID), zap.Error(err))
		h.respondOK(w)
		return
	}

	msg := HeartbeatMessage{
		DoorMissedMessages:  payload.DoorMissedMessages,
		DoorLowBattery:      payload.DoorLowBattery,
		DoorLastHeartbeatMs: payload.DoorLastHeartbeatMs,
		ResetReason:         payload.ResetReason,
	}
	if len(payload.States) > 0 {
		msg.StateTransitionsJSON = string(payload.States)
	}

	if err := h.pipeline.IngestHeartbeat(r.Context(), envelope.CoreID, msg); err != nil {
		h.logger.Error("Failed to ingest heartbeat",
			zap.String("core_id", envelope.CoreID),
			zap.Error(err),
		)
	}
	h.respondOK(w)
}

// HandleHealth reports process liveness.
func (h *HTTPHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","time":"` + strconv.FormatInt(time.Now().Unix(), 10) + `"}`))
}
