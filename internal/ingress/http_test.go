package ingress

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/models"
)

func setupHTTPHandler(t *testing.T) (*pipelineFixture, *HTTPHandler) {
	t.Helper()

	f := setupPipeline(t)
	return f, NewHTTPHandler(f.pipeline, "webhook-key", zap.NewNop())
}

func postWebhook(t *testing.T, handler http.HandlerFunc, body map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestHandleRadarSample_OK(t *testing.T) {
	f, handler := setupHTTPHandler(t)
	f.resolver.locations["core-abc"] = sendingLocation("core-abc")

	rec := postWebhook(t, handler.HandleRadarSample, map[string]interface{}{
		"coreid":  "core-abc",
		"api_key": "webhook-key",
		"data":    map[string]interface{}{"fast": 61.5, "slow": 3.2},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.store.radarSamples, 1)
	assert.Equal(t, 61.5, f.store.radarSamples[0].MovementFast)
}

func TestWebhook_BadAPIKeyStillReturns200(t *testing.T) {
	f, handler := setupHTTPHandler(t)
	f.resolver.locations["core-abc"] = sendingLocation("core-abc")

	rec := postWebhook(t, handler.HandleRadarSample, map[string]interface{}{
		"coreid":  "core-abc",
		"api_key": "wrong-key",
		"data":    map[string]interface{}{"fast": 61.5},
	})

	// The device cloud throttles webhooks that error; never let it see one
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.store.radarSamples)
}

func TestWebhook_MalformedBodyReturns200(t *testing.T) {
	_, handler := setupHTTPHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	handler.HandleRadarSample(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhook_GetMethodRejected(t *testing.T) {
	_, handler := setupHTTPHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.HandleRadarSample(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleDoorEvent_SignalParsing(t *testing.T) {
	f, handler := setupHTTPHandler(t)
	f.resolver.locations["core-abc"] = sendingLocation("core-abc")

	rec := postWebhook(t, handler.HandleDoorEvent, map[string]interface{}{
		"coreid":  "core-abc",
		"api_key": "webhook-key",
		"data":    map[string]interface{}{"signal": "closed", "lowBattery": true},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.store.doorSamples, 1)
	assert.Equal(t, models.DoorClosed, f.store.doorSamples[0].Signal)
	assert.True(t, f.store.doorSamples[0].LowBattery)
	assert.Equal(t, []string{"loc-1"}, f.lowBattery.notified)
}

func TestHandleDoorEvent_UnknownSignalDropped(t *testing.T) {
	f, handler := setupHTTPHandler(t)
	f.resolver.locations["core-abc"] = sendingLocation("core-abc")

	rec := postWebhook(t, handler.HandleDoorEvent, map[string]interface{}{
		"coreid":  "core-abc",
		"api_key": "webhook-key",
		"data":    map[string]interface{}{"signal": "ajar"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.store.doorSamples)
}

func TestHandleSensorEvent_FirmwareAlert(t *testing.T) {
	f, handler := setupHTTPHandler(t)
	f.resolver.locations["core-abc"] = sendingLocation("core-abc")

	rec := postWebhook(t, handler.HandleSensorEvent, map[string]interface{}{
		"coreid":  "core-abc",
		"event":   "DURATION",
		"api_key": "webhook-key",
		"data":    map[string]interface{}{"numberOfAlertsPublished": 1},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []models.AlertReason{models.AlertReasonDuration}, f.alerts.reasons)
}

func TestHandleHeartbeat(t *testing.T) {
	f, handler := setupHTTPHandler(t)
	f.resolver.locations["core-abc"] = sendingLocation("core-abc")

	rec := postWebhook(t, handler.HandleHeartbeat, map[string]interface{}{
		"coreid":  "core-abc",
		"api_key": "webhook-key",
		"data": map[string]interface{}{
			"doorMissedMsg":     3,
			"doorLowBatt":       false,
			"doorLastHeartbeat": 12000,
			"resetReason":       "NONE",
			"states":            []interface{}{},
		},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.vitals.logged, 1)
	assert.Equal(t, 3, f.vitals.logged[0].MissedDoorMessages)
	assert.Equal(t, "NONE", f.vitals.logged[0].ResetReason)
}
