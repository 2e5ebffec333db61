package alerting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/config"
	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/models"
	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/repository"
)

// SessionManager turns state machine and firmware alerts into deduplicated,
// resettable alert sessions. At most one non-completed session exists per
// location; within the reset threshold additional alerts fold into it.
type SessionManager struct {
	cfg      *config.Config
	sessions *repository.SessionRepository
	alerter  Alerter
	logger   *zap.Logger
}

// NewSessionManager creates a session manager
func NewSessionManager(cfg *config.Config, sessions *repository.SessionRepository, alerter Alerter, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		cfg:      cfg,
		sessions: sessions,
		alerter:  alerter,
		logger:   logger,
	}
}

// HandleAlert processes one physical alert for a location. All session reads
// and writes happen inside a single transaction under a per-location advisory
// lock. Errors roll the transaction back and are returned for the caller's
// error boundary to log; the next physical alert re-attempts naturally.
func (m *SessionManager) HandleAlert(ctx context.Context, location *models.Location, reason models.AlertReason, rawMetadata []byte) error {
	m.logger.Info("Handling alert",
		zap.String("location_id", location.LocationID),
		zap.String("display_name", location.DisplayName),
		zap.String("alert_reason", string(reason)),
	)

	isResettable := m.computeResettable(rawMetadata)

	tx, err := m.sessions.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("handleAlert: %w", err)
	}

	if err := m.handleAlertTx(ctx, tx, location, reason, isResettable); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			m.logger.Error("Failed to roll back alert transaction",
				zap.String("location_id", location.LocationID),
				zap.Error(rbErr),
			)
		}
		return fmt.Errorf("handleAlert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("handleAlert: failed to commit: %w", err)
	}
	return nil
}

func (m *SessionManager) handleAlertTx(ctx context.Context, tx *sql.Tx, location *models.Location, reason models.AlertReason, isResettable bool) error {
	if err := m.sessions.AcquireLocationLockTx(ctx, tx, location.LocationID); err != nil {
		return err
	}

	currentSession, err := m.sessions.GetActiveSessionTx(ctx, tx, location.LocationID)
	if err != nil {
		return err
	}

	now, err := m.sessions.CurrentTimeTx(ctx, tx)
	if err != nil {
		return err
	}

	if currentSession == nil {
		return m.startNewSession(ctx, tx, location, reason, isResettable)
	}

	if now.Sub(currentSession.UpdatedAt) >= m.cfg.Sensor.SessionResetThreshold {
		// The stale session must be terminated before the insert, or the
		// one-active-session index rejects the new row
		currentSession.Status = models.SessionStatusCompleted
		if err := m.sessions.SaveSessionTx(ctx, tx, currentSession); err != nil {
			return err
		}
		m.logger.Info("Closed stale session before starting a new one",
			zap.String("session_id", currentSession.ID),
			zap.String("location_id", location.LocationID),
		)
		return m.startNewSession(ctx, tx, location, reason, isResettable)
	}

	return m.updateExistingSession(ctx, tx, location, currentSession, reason, isResettable)
}

func (m *SessionManager) startNewSession(ctx context.Context, tx *sql.Tx, location *models.Location, reason models.AlertReason, isResettable bool) error {
	session := &models.Session{
		LocationID:     location.LocationID,
		Status:         models.SessionStatusStarted,
		AlertReason:    reason,
		NumberOfAlerts: 1,
		IsResettable:   isResettable,
	}

	err := m.sessions.CreateSessionTx(ctx, tx, session)
	if errors.Is(err, repository.ErrDuplicateActiveSession) {
		// A concurrent alert won the race; fold into its session instead
		existing, getErr := m.sessions.GetActiveSessionTx(ctx, tx, location.LocationID)
		if getErr != nil {
			return getErr
		}
		if existing == nil {
			return fmt.Errorf("active session vanished after duplicate create for %s", location.LocationID)
		}
		return m.updateExistingSession(ctx, tx, location, existing, reason, isResettable)
	}
	if err != nil {
		return err
	}

	client := location.Client
	return m.alerter.StartSession(ctx, StartSessionParams{
		SessionID:               session.ID,
		ToPhoneNumbers:          client.ResponderPhoneNumbers,
		FromPhoneNumber:         location.PhoneNumber,
		DeviceDisplayName:       location.DisplayName,
		AlertReason:             reason,
		Language:                client.Language,
		Message:                 alertStartMessage(reason, location.DisplayName, isResettable),
		ReminderTimeout:         client.ReminderTimeout,
		ReminderMessage:         alertReminderMessage(location.DisplayName),
		FallbackTimeout:         client.FallbackTimeout,
		FallbackMessage:         alertFallbackMessage(location.DisplayName),
		FallbackToPhoneNumbers:  client.FallbackPhoneNumbers,
		FallbackFromPhoneNumber: client.FromPhoneNumber,
	})
}

func (m *SessionManager) updateExistingSession(ctx context.Context, tx *sql.Tx, location *models.Location, session *models.Session, reason models.AlertReason, isResettable bool) error {
	session.NumberOfAlerts++
	session.IsResettable = isResettable

	if err := m.sessions.SaveSessionTx(ctx, tx, session); err != nil {
		return err
	}

	return m.alerter.SendSessionUpdate(ctx,
		session.ID,
		location.Client.ResponderPhoneNumbers,
		location.PhoneNumber,
		alertAdditionalMessage(reason, location.DisplayName, isResettable),
	)
}

// computeResettable applies the default-non-resettable policy: an
// unparseable payload never fails the alert.
func (m *SessionManager) computeResettable(rawMetadata []byte) bool {
	metadata, err := models.ParseAlertMetadata(rawMetadata)
	if err != nil {
		m.logger.Debug("Alert metadata not parseable, defaulting to non-resettable", zap.Error(err))
		return false
	}
	return metadata.NumberOfAlertsPublished >= m.cfg.Sensor.AlertsToAcceptReset
}
