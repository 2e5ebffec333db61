package tracking

import "go.uber.org/zap"

// Tracker is the operator-facing error tracking collaborator. Calls are
// fire-and-forget; nothing user-visible depends on them.
type Tracker interface {
	LogError(message string)
	LogWarning(message string)
}

// ZapTracker reports to the service log. Deployments with a dedicated error
// tracker can swap this out behind the same interface.
type ZapTracker struct {
	logger *zap.Logger
}

// NewZapTracker creates a log-backed tracker
func NewZapTracker(logger *zap.Logger) *ZapTracker {
	return &ZapTracker{logger: logger}
}

func (t *ZapTracker) LogError(message string) {
	t.logger.Error(message, zap.String("channel", "tracking"))
}

func (t *ZapTracker) LogWarning(message string) {
	t.logger.Warn(message, zap.String("channel", "tracking"))
}
