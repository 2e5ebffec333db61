package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/models"
)

// ClientRepository reads client records. Clients are managed by the external
// dashboard; this service never writes them.
type ClientRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewClientRepository creates a client repository
func NewClientRepository(db *sql.DB, logger *zap.Logger) *ClientRepository {
	return &ClientRepository{
		db:     db,
		logger: logger,
	}
}

const clientColumns = `
	id, display_name, language, responder_phone_numbers, fallback_phone_numbers,
	heartbeat_phone_numbers, from_phone_number, reminder_timeout_seconds,
	fallback_timeout_seconds, is_active, is_sending_alerts, is_sending_vitals,
	created_at, updated_at`

// GetClientsSendingAlerts returns all active clients whose alert sending flag
// is on. The internal problems sweep iterates these.
func (r *ClientRepository) GetClientsSendingAlerts(ctx context.Context) ([]models.Client, error) {
	query := `SELECT` + clientColumns + `
		FROM clients
		WHERE is_active = true AND is_sending_alerts = true
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	var clients []models.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, *client)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate clients: %w", err)
	}
	return clients, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanClient(row rowScanner) (*models.Client, error) {
	var client models.Client
	var reminderTimeoutSeconds, fallbackTimeoutSeconds int64
	var createdAt, updatedAt time.Time

	err := row.Scan(
		&client.ID,
		&client.DisplayName,
		&client.Language,
		pq.Array(&client.ResponderPhoneNumbers),
		pq.Array(&client.FallbackPhoneNumbers),
		pq.Array(&client.HeartbeatPhoneNumbers),
		&client.FromPhoneNumber,
		&reminderTimeoutSeconds,
		&fallbackTimeoutSeconds,
		&client.IsActive,
		&client.IsSendingAlerts,
		&client.IsSendingVitals,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	client.ReminderTimeout = time.Duration(reminderTimeoutSeconds) * time.Second
	client.FallbackTimeout = time.Duration(fallbackTimeoutSeconds) * time.Second
	client.CreatedAt = createdAt
	client.UpdatedAt = updatedAt
	return &client, nil
}
