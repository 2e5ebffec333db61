package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/models"
)

func setupSessionRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *SessionRepository) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db, mock, NewSessionRepository(db, zap.NewNop())
}

func TestCreateSessionTx_AssignsIDAndTimestamps(t *testing.T) {
	db, mock, repo := setupSessionRepo(t)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO sessions").
		WithArgs(sqlmock.AnyArg(), "loc-1", "STARTED", "DURATION", 1, false, "", "").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)

	session := &models.Session{
		LocationID:     "loc-1",
		Status:         models.SessionStatusStarted,
		AlertReason:    models.AlertReasonDuration,
		NumberOfAlerts: 1,
	}
	require.NoError(t, repo.CreateSessionTx(ctx, tx, session))

	assert.NotEmpty(t, session.ID)
	assert.Equal(t, now, session.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSessionTx_MapsUniqueViolation(t *testing.T) {
	db, mock, repo := setupSessionRepo(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO sessions").
		WillReturnError(&pq.Error{Code: "23505"})

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)

	err = repo.CreateSessionTx(ctx, tx, &models.Session{
		LocationID:  "loc-1",
		Status:      models.SessionStatusStarted,
		AlertReason: models.AlertReasonStillness,
	})
	assert.ErrorIs(t, err, ErrDuplicateActiveSession)
}

func TestGetActiveSessionTx_NoneReturnsNil(t *testing.T) {
	db, mock, repo := setupSessionRepo(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM sessions").
		WithArgs("loc-1", "COMPLETED").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)

	session, err := repo.GetActiveSessionTx(ctx, tx, "loc-1")
	require.NoError(t, err)
	assert.Nil(t, session)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountStillnessSessionsSince(t *testing.T) {
	_, mock, repo := setupSessionRepo(t)
	since := time.Now().Add(-20 * time.Minute)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("loc-1", "STILLNESS", since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := repo.CountStillnessSessionsSince(context.Background(), "loc-1", since)
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
