package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/models"
)

// ErrDuplicateActiveSession is returned when the partial unique index on
// live sessions rejects a create: a concurrent alert already created the
// active session, and the caller should refetch and update instead.
var ErrDuplicateActiveSession = errors.New("an active session already exists for this location")

// SessionRepository persists alert sessions. The alert session manager calls
// the *Tx methods inside one transaction so the one-active-session-per-
// location invariant holds under concurrent alerts.
type SessionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSessionRepository creates a session repository
func NewSessionRepository(db *sql.DB, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{
		db:     db,
		logger: logger,
	}
}

// BeginTx opens the transaction the alert session manager runs under
func (r *SessionRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// AcquireLocationLockTx takes a transaction-scoped advisory lock on the
// location, serializing session read-modify-write per location without any
// table-level locking.
func (r *SessionRepository) AcquireLocationLockTx(ctx context.Context, tx *sql.Tx, locationID string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, locationID); err != nil {
		return fmt.Errorf("failed to acquire location lock: %w", err)
	}
	return nil
}

// CurrentTimeTx returns the database clock, the single time source for the
// session reset threshold comparison.
func (r *SessionRepository) CurrentTimeTx(ctx context.Context, tx *sql.Tx) (time.Time, error) {
	var now time.Time
	if err := tx.QueryRowContext(ctx, `SELECT NOW()`).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("failed to read database time: %w", err)
	}
	return now, nil
}

const sessionColumns = `
	id, location_id, status, alert_reason, number_of_alerts, is_resettable,
	incident_category, notes, responded_at, created_at, updated_at`

// GetActiveSessionTx returns the location's single non-completed session, or
// nil when none exists. Row-locked for the rest of the transaction.
func (r *SessionRepository) GetActiveSessionTx(ctx context.Context, tx *sql.Tx, locationID string) (*models.Session, error) {
	query := `SELECT` + sessionColumns + `
		FROM sessions
		WHERE location_id = $1 AND status <> $2
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE`

	row := tx.QueryRowContext(ctx, query, locationID, string(models.SessionStatusCompleted))
	session, err := scanSession(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}
	return session, nil
}

// CreateSessionTx inserts a new session. A unique-violation on the live
// session index maps to ErrDuplicateActiveSession.
func (r *SessionRepository) CreateSessionTx(ctx context.Context, tx *sql.Tx, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}

	query := `
		INSERT INTO sessions (id, location_id, status, alert_reason, number_of_alerts, is_resettable, incident_category, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := tx.QueryRowContext(ctx, query,
		session.ID,
		session.LocationID,
		string(session.Status),
		string(session.AlertReason),
		session.NumberOfAlerts,
		session.IsResettable,
		session.IncidentCategory,
		session.Notes,
	).Scan(&session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateActiveSession
		}
		return fmt.Errorf("failed to create session: %w", err)
	}

	r.logger.Info("Created alert session",
		zap.String("session_id", session.ID),
		zap.String("location_id", session.LocationID),
		zap.String("alert_reason", string(session.AlertReason)),
	)
	return nil
}

// SaveSessionTx persists a mutated session (alert count, resettable flag,
// status). The update must target a session that was already created.
func (r *SessionRepository) SaveSessionTx(ctx context.Context, tx *sql.Tx, session *models.Session) error {
	query := `
		UPDATE sessions
		SET status = $2, alert_reason = $3, number_of_alerts = $4, is_resettable = $5,
			incident_category = $6, notes = $7, responded_at = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := tx.QueryRowContext(ctx, query,
		session.ID,
		string(session.Status),
		string(session.AlertReason),
		session.NumberOfAlerts,
		session.IsResettable,
		session.IncidentCategory,
		session.Notes,
		session.RespondedAt,
	).Scan(&session.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("cannot save session %s: it was never created", session.ID)
		}
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// CountStillnessSessionsSince counts STILLNESS sessions created for a
// location within the rolling malfunction-detection window.
func (r *SessionRepository) CountStillnessSessionsSince(ctx context.Context, locationID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM sessions
		WHERE location_id = $1 AND alert_reason = $2 AND created_at >= $3`

	var count int
	err := r.db.QueryRowContext(ctx, query, locationID, string(models.AlertReasonStillness), since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count stillness sessions: %w", err)
	}
	return count, nil
}

func scanSession(row rowScanner) (*models.Session, error) {
	var session models.Session
	var status, alertReason string
	var respondedAt sql.NullTime

	err := row.Scan(
		&session.ID,
		&session.LocationID,
		&status,
		&alertReason,
		&session.NumberOfAlerts,
		&session.IsResettable,
		&session.IncidentCategory,
		&session.Notes,
		&respondedAt,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	session.Status = models.SessionStatus(status)
	session.AlertReason = models.AlertReason(alertReason)
	if respondedAt.Valid {
		t := respondedAt.Time
		session.RespondedAt = &t
	}
	return &session, nil
}
