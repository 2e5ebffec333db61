package alerting

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/bravetechnologycoop/BraveSensor-sub001/internal/config"
)

// GatewayAlerter drives the external alert gateway over HTTP. The gateway
// owns SMS delivery, responder conversation state and message localization.
type GatewayAlerter struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewGatewayAlerter creates an alert gateway client
func NewGatewayAlerter(cfg *config.AlerterConfig, logger *zap.Logger) *GatewayAlerter {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if cfg.APIKey != "" {
		client.SetHeader("X-API-Key", cfg.APIKey)
	}

	return &GatewayAlerter{
		httpClient: client,
		logger:     logger,
	}
}

type sessionUpdateRequest struct {
	SessionID       string   `json:"sessionId"`
	ToPhoneNumbers  []string `json:"toPhoneNumbers"`
	FromPhoneNumber string   `json:"fromPhoneNumber"`
	Message         string   `json:"message"`
}

type singleAlertRequest struct {
	ToPhoneNumber   string `json:"toPhoneNumber"`
	FromPhoneNumber string `json:"fromPhoneNumber"`
	Message         string `json:"message"`
}

// StartSession opens a new responder conversation
func (a *GatewayAlerter) StartSession(ctx context.Context, params StartSessionParams) error {
	params.ReminderTimeoutMillis = params.ReminderTimeout.Milliseconds()
	params.FallbackTimeoutMillis = params.FallbackTimeout.Milliseconds()

	resp, err := a.httpClient.R().
		SetContext(ctx).
		SetBody(params).
		Post("/api/alert/start")
	if err != nil {
		return fmt.Errorf("failed to start alert session: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("alert gateway rejected session start: %s", resp.Status())
	}

	a.logger.Info("Started alert session with gateway",
		zap.String("session_id", params.SessionID),
		zap.String("alert_reason", string(params.AlertReason)),
	)
	return nil
}

// SendSessionUpdate sends an additional-alert message into an existing
// responder conversation
func (a *GatewayAlerter) SendSessionUpdate(ctx context.Context, sessionID string, toPhoneNumbers []string, fromPhoneNumber string, message string) error {
	resp, err := a.httpClient.R().
		SetContext(ctx).
		SetBody(sessionUpdateRequest{
			SessionID:       sessionID,
			ToPhoneNumbers:  toPhoneNumbers,
			FromPhoneNumber: fromPhoneNumber,
			Message:         message,
		}).
		Post("/api/alert/update")
	if err != nil {
		return fmt.Errorf("failed to send session update: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("alert gateway rejected session update: %s", resp.Status())
	}
	return nil
}

// SendSingleAlert sends a one-off operational message (disconnection,
// reconnection, low battery) outside of any session
func (a *GatewayAlerter) SendSingleAlert(ctx context.Context, toPhoneNumber string, fromPhoneNumber string, message string) error {
	resp, err := a.httpClient.R().
		SetContext(ctx).
		SetBody(singleAlertRequest{
			ToPhoneNumber:   toPhoneNumber,
			FromPhoneNumber: fromPhoneNumber,
			Message:         message,
		}).
		Post("/api/alert/single")
	if err != nil {
		return fmt.Errorf("failed to send single alert: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("alert gateway rejected single alert: %s", resp.Status())
	}
	return nil
}
