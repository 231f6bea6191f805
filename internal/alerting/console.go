package alerting

import (
	"context"
	"log/slog"
)

// ConsoleAlerter writes alerts into the process log through slog. It is the
// fallback channel when no external channel is configured, and the watcher
// default when no alerter is supplied.
type ConsoleAlerter struct {
	logger *slog.Logger
}

// NewConsoleAlerter creates a console alerter.
func NewConsoleAlerter(logger *slog.Logger) *ConsoleAlerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsoleAlerter{logger: logger}
}

// Name returns the name of the alerter.
func (c *ConsoleAlerter) Name() string {
	return "console"
}

// Alert logs the alert at a level matching its severity.
func (c *ConsoleAlerter) Alert(ctx context.Context, severity Severity, message string, fields ...any) error {
	attrs := make([]any, 0, len(fields)+2)
	attrs = append(attrs, "severity", severity.String())
	attrs = append(attrs, fields...)

	switch severity {
	case SeverityCritical:
		c.logger.Error("[ALERT] "+message, attrs...)
	case SeverityHigh, SeverityWarning:
		c.logger.Warn("[ALERT] "+message, attrs...)
	default:
		c.logger.Info("[ALERT] "+message, attrs...)
	}

	return nil
}
