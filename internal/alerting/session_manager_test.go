package alerting

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/config"
	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/models"
	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/repository"
)

type fakeAlerter struct {
	started        []StartSessionParams
	updateMessages []string
	singleMessages []string
	startErr       error
}

func (f *fakeAlerter) StartSession(ctx context.Context, params StartSessionParams) error {
	f.started = append(f.started, params)
	return f.startErr
}

func (f *fakeAlerter) SendSessionUpdate(ctx context.Context, sessionID string, toPhoneNumbers []string, fromPhoneNumber string, message string) error {
	f.updateMessages = append(f.updateMessages, message)
	return nil
}

func (f *fakeAlerter) SendSingleAlert(ctx context.Context, toPhoneNumber string, fromPhoneNumber string, message string) error {
	f.singleMessages = append(f.singleMessages, message)
	return nil
}

func setupSessionManager(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *SessionManager, *fakeAlerter) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{}
	cfg.Sensor.SessionResetThreshold = 2 * time.Hour
	cfg.Sensor.AlertsToAcceptReset = 3

	alerter := &fakeAlerter{}
	manager := NewSessionManager(cfg, repository.NewSessionRepository(db, zap.NewNop()), alerter, zap.NewNop())
	return db, mock, manager, alerter
}

func alertTestLocation() *models.Location {
	return &models.Location{
		LocationID:      "loc-1",
		DisplayName:     "Unit 203 Bathroom",
		PhoneNumber:     "+15550001111",
		IsActive:        true,
		IsSendingAlerts: true,
		Client: &models.Client{
			ID:                    "client-1",
			DisplayName:           "Example Housing",
			Language:              "en",
			ResponderPhoneNumbers: []string{"+15552223333"},
			FallbackPhoneNumbers:  []string{"+15554445555"},
			FromPhoneNumber:       "+15556667777",
			ReminderTimeout:       2 * time.Minute,
			FallbackTimeout:       5 * time.Minute,
			IsActive:              true,
			IsSendingAlerts:       true,
			IsSendingVitals:       true,
		},
	}
}

var sessionRowColumns = []string{
	"id", "location_id", "status", "alert_reason", "number_of_alerts", "is_resettable",
	"incident_category", "notes", "responded_at", "created_at", "updated_at",
}

func expectAlertTxPrelude(mock sqlmock.Sqlmock, sessionRows *sqlmock.Rows, now time.Time) {
	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs("loc-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM sessions").
		WithArgs("loc-1", "COMPLETED").
		WillReturnRows(sessionRows)
	mock.ExpectQuery("SELECT NOW").
		WillReturnRows(sqlmock.NewRows([]string{"now"}).AddRow(now))
}

func TestHandleAlert_StartsNewSession(t *testing.T) {
	_, mock, manager, alerter := setupSessionManager(t)
	now := time.Now()

	expectAlertTxPrelude(mock, sqlmock.NewRows(sessionRowColumns), now)
	mock.ExpectQuery("INSERT INTO sessions").
		WithArgs(sqlmock.AnyArg(), "loc-1", "STARTED", "STILLNESS", 1, false, "", "").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectCommit()

	err := manager.HandleAlert(context.Background(), alertTestLocation(), models.AlertReasonStillness, nil)
	require.NoError(t, err)

	require.Len(t, alerter.started, 1)
	assert.NotEmpty(t, alerter.started[0].SessionID)
	assert.Equal(t, models.AlertReasonStillness, alerter.started[0].AlertReason)
	assert.Equal(t, []string{"+15552223333"}, alerter.started[0].ToPhoneNumbers)
	assert.Contains(t, alerter.started[0].Message, "Unit 203 Bathroom")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleAlert_FoldsIntoRecentSession(t *testing.T) {
	_, mock, manager, alerter := setupSessionManager(t)
	now := time.Now()

	rows := sqlmock.NewRows(sessionRowColumns).
		AddRow("sess-1", "loc-1", "STARTED", "DURATION", 2, false, "", "", nil, now.Add(-time.Hour), now.Add(-10*time.Minute))
	expectAlertTxPrelude(mock, rows, now)
	mock.ExpectQuery("UPDATE sessions").
		WithArgs("sess-1", "STARTED", "DURATION", 3, false, "", "", nil).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectCommit()

	err := manager.HandleAlert(context.Background(), alertTestLocation(), models.AlertReasonStillness, nil)
	require.NoError(t, err)

	assert.Empty(t, alerter.started)
	require.Len(t, alerter.updateMessages, 1)
	assert.Contains(t, alerter.updateMessages[0], "Unit 203 Bathroom")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleAlert_StaleSessionClosedThenNewStarted(t *testing.T) {
	_, mock, manager, alerter := setupSessionManager(t)
	now := time.Now()

	// Active session untouched for 3h, past the 2h reset threshold. The
	// one-active-session index would reject the insert while the stale row
	// is still open, so it has to be completed first, in the same
	// transaction.
	rows := sqlmock.NewRows(sessionRowColumns).
		AddRow("sess-old", "loc-1", "WAITING_FOR_REPLY", "DURATION", 4, false, "", "", nil, now.Add(-4*time.Hour), now.Add(-3*time.Hour))
	expectAlertTxPrelude(mock, rows, now)
	mock.ExpectQuery("UPDATE sessions").
		WithArgs("sess-old", "COMPLETED", "DURATION", 4, false, "", "", nil).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectQuery("INSERT INTO sessions").
		WithArgs(sqlmock.AnyArg(), "loc-1", "STARTED", "DURATION", 1, false, "", "").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectCommit()

	err := manager.HandleAlert(context.Background(), alertTestLocation(), models.AlertReasonDuration, nil)
	require.NoError(t, err)

	// A fresh responder conversation opens; nothing folds into the stale one
	assert.Len(t, alerter.started, 1)
	assert.Empty(t, alerter.updateMessages)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleAlert_ResetThresholdBoundary(t *testing.T) {
	t.Run("just inside threshold folds in", func(t *testing.T) {
		_, mock, manager, alerter := setupSessionManager(t)
		now := time.Now()

		rows := sqlmock.NewRows(sessionRowColumns).
			AddRow("sess-1", "loc-1", "STARTED", "DURATION", 1, false, "", "", nil, now.Add(-3*time.Hour), now.Add(-2*time.Hour+time.Millisecond))
		expectAlertTxPrelude(mock, rows, now)
		mock.ExpectQuery("UPDATE sessions").
			WithArgs("sess-1", "STARTED", "DURATION", 2, false, "", "", nil).
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))
		mock.ExpectCommit()

		require.NoError(t, manager.HandleAlert(context.Background(), alertTestLocation(), models.AlertReasonDuration, nil))
		assert.Empty(t, alerter.started)
		assert.Len(t, alerter.updateMessages, 1)
	})

	t.Run("just past threshold starts new", func(t *testing.T) {
		_, mock, manager, alerter := setupSessionManager(t)
		now := time.Now()

		rows := sqlmock.NewRows(sessionRowColumns).
			AddRow("sess-1", "loc-1", "STARTED", "DURATION", 1, false, "", "", nil, now.Add(-3*time.Hour), now.Add(-2*time.Hour-time.Millisecond))
		expectAlertTxPrelude(mock, rows, now)
		mock.ExpectQuery("UPDATE sessions").
			WithArgs("sess-1", "COMPLETED", "DURATION", 1, false, "", "", nil).
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))
		mock.ExpectQuery("INSERT INTO sessions").
			WithArgs(sqlmock.AnyArg(), "loc-1", "STARTED", "DURATION", 1, false, "", "").
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
		mock.ExpectCommit()

		require.NoError(t, manager.HandleAlert(context.Background(), alertTestLocation(), models.AlertReasonDuration, nil))
		assert.Len(t, alerter.started, 1)
		assert.Empty(t, alerter.updateMessages)
	})
}

func TestHandleAlert_DuplicateCreateFoldsIntoWinner(t *testing.T) {
	_, mock, manager, alerter := setupSessionManager(t)
	now := time.Now()

	expectAlertTxPrelude(mock, sqlmock.NewRows(sessionRowColumns), now)
	mock.ExpectQuery("INSERT INTO sessions").
		WithArgs(sqlmock.AnyArg(), "loc-1", "STARTED", "STILLNESS", 1, false, "", "").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectQuery("FROM sessions").
		WithArgs("loc-1", "COMPLETED").
		WillReturnRows(sqlmock.NewRows(sessionRowColumns).
			AddRow("sess-winner", "loc-1", "STARTED", "STILLNESS", 1, false, "", "", nil, now, now))
	mock.ExpectQuery("UPDATE sessions").
		WithArgs("sess-winner", "STARTED", "STILLNESS", 2, false, "", "", nil).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectCommit()

	err := manager.HandleAlert(context.Background(), alertTestLocation(), models.AlertReasonStillness, nil)
	require.NoError(t, err)

	assert.Empty(t, alerter.started)
	assert.Len(t, alerter.updateMessages, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleAlert_RollsBackWhenGatewayRejects(t *testing.T) {
	_, mock, manager, alerter := setupSessionManager(t)
	now := time.Now()
	alerter.startErr = errors.New("gateway unavailable")

	expectAlertTxPrelude(mock, sqlmock.NewRows(sessionRowColumns), now)
	mock.ExpectQuery("INSERT INTO sessions").
		WithArgs(sqlmock.AnyArg(), "loc-1", "STARTED", "DURATION", 1, false, "", "").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectRollback()

	err := manager.HandleAlert(context.Background(), alertTestLocation(), models.AlertReasonDuration, nil)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleAlert_ResettableFromDeviceMetadata(t *testing.T) {
	_, mock, manager, alerter := setupSessionManager(t)
	now := time.Now()

	expectAlertTxPrelude(mock, sqlmock.NewRows(sessionRowColumns), now)
	mock.ExpectQuery("INSERT INTO sessions").
		WithArgs(sqlmock.AnyArg(), "loc-1", "STARTED", "STILLNESS", 1, true, "", "").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectCommit()

	raw := []byte(`{"numberOfAlertsPublished": 5}`)
	err := manager.HandleAlert(context.Background(), alertTestLocation(), models.AlertReasonStillness, raw)
	require.NoError(t, err)

	require.Len(t, alerter.started, 1)
	assert.Contains(t, alerter.started[0].Message, "reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}
