package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/config"
	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/models"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *GatewayAlerter {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewGatewayAlerter(&config.AlerterConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	}, zap.NewNop())
}

func TestStartSession_SendsExpectedRequest(t *testing.T) {
	var gotPath, gotAPIKey string
	var gotBody map[string]interface{}

	gateway := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("X-API-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	})

	err := gateway.StartSession(context.Background(), StartSessionParams{
		SessionID:         "sess-1",
		ToPhoneNumbers:    []string{"+15552223333"},
		FromPhoneNumber:   "+15550001111",
		DeviceDisplayName: "Unit 203 Bathroom",
		AlertReason:       models.AlertReasonStillness,
		Language:          "en",
		Message:           "This is a Stillness alert.",
		ReminderTimeout:   2 * time.Minute,
		FallbackTimeout:   5 * time.Minute,
	})
	require.NoError(t, err)

	assert.Equal(t, "/api/alert/start", gotPath)
	assert.Equal(t, "test-key", gotAPIKey)
	assert.Equal(t, "sess-1", gotBody["sessionId"])
	assert.Equal(t, "STILLNESS", gotBody["alertReason"])
	assert.Equal(t, float64(120000), gotBody["reminderTimeoutMillis"])
	assert.Equal(t, float64(300000), gotBody["fallbackTimeoutMillis"])
}

func TestStartSession_GatewayErrorSurfaces(t *testing.T) {
	gateway := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := gateway.StartSession(context.Background(), StartSessionParams{SessionID: "sess-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
}

func TestSendSessionUpdate(t *testing.T) {
	var gotPath string
	var gotBody sessionUpdateRequest

	gateway := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	})

	err := gateway.SendSessionUpdate(context.Background(), "sess-1", []string{"+15552223333"}, "+15550001111", "An additional alert")
	require.NoError(t, err)

	assert.Equal(t, "/api/alert/update", gotPath)
	assert.Equal(t, "sess-1", gotBody.SessionID)
	assert.Equal(t, "An additional alert", gotBody.Message)
}

func TestSendSingleAlert(t *testing.T) {
	var gotPath string
	var gotBody singleAlertRequest

	gateway := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	})

	err := gateway.SendSingleAlert(context.Background(), "+15558889999", "+15550001111", "The battery is low")
	require.NoError(t, err)

	assert.Equal(t, "/api/alert/single", gotPath)
	assert.Equal(t, "+15558889999", gotBody.ToPhoneNumber)
	assert.Equal(t, "The battery is low", gotBody.Message)
}
