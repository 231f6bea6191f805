// Package alerting provides notification capabilities for the liquidation engine.
package alerting

import (
	"context"
	"fmt"
)

// Severity represents the alert severity level.
type Severity int

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = iota
	// SeverityWarning is for warning messages.
	SeverityWarning
	// SeverityHigh is for high priority alerts.
	SeverityHigh
	// SeverityCritical is for critical alerts requiring immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Emoji returns an emoji for the severity level.
func (s Severity) Emoji() string {
	switch s {
	case SeverityInfo:
		return "ℹ️"
	case SeverityWarning:
		return "⚠️"
	case SeverityHigh:
		return "🔴"
	case SeverityCritical:
		return "🚨"
	default:
		return "❓"
	}
}

// Alerter defines the interface for sending alerts.
type Alerter interface {
	// Alert sends an alert with the given severity and message.
	Alert(ctx context.Context, severity Severity, message string, fields ...any) error
	// Name returns the name of the alerter.
	Name() string
}

// EventAlerter is implemented by alerters that route typed events and may
// apply per-event configuration before delivery.
type EventAlerter interface {
	Alerter
	// AlertEvent sends an alert for a predefined event type.
	AlertEvent(ctx context.Context, event AlertEvent, message string, fields ...any) error
}

// Emit routes an event through a. Alerters that understand events apply
// their own routing and filtering; plain alerters get the event's default
// severity.
func Emit(ctx context.Context, a Alerter, event AlertEvent, message string, fields ...any) error {
	if ea, ok := a.(EventAlerter); ok {
		return ea.AlertEvent(ctx, event, message, fields...)
	}
	return a.Alert(ctx, EventSeverity(event), message, fields...)
}

// Field represents a key-value pair for structured alert data.
type Field struct {
	Key   string
	Value any
}

// FormatFields converts variadic fields to a formatted string.
func FormatFields(fields ...any) string {
	if len(fields) == 0 {
		return ""
	}

	result := ""
	for i := 0; i < len(fields)-1; i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		value := fields[i+1]
		if result != "" {
			result += "\n"
		}
		result += fmt.Sprintf("• %s: %v", key, value)
	}
	return result
}

// AlertEvent represents a pre-defined alert event type.
type AlertEvent string

const (
	// EventWatcherStarted is sent when a position watcher starts.
	EventWatcherStarted AlertEvent = "watcher_started"
	// EventWatcherStopped is sent when a position watcher is stopped.
	EventWatcherStopped AlertEvent = "watcher_stopped"
	// EventWatcherCompleted is sent when a position is fully liquidated.
	EventWatcherCompleted AlertEvent = "watcher_completed"
	// EventPhaseChanged is sent when the market session phase changes.
	EventPhaseChanged AlertEvent = "phase_changed"
	// EventOrderFreeze is sent when the exchange order freeze begins.
	EventOrderFreeze AlertEvent = "order_freeze"
	// EventSelling is sent when sell orders are being placed.
	EventSelling AlertEvent = "selling"
	// EventRepricing is sent when resting orders are canceled for repricing.
	EventRepricing AlertEvent = "repricing"
	// EventOrderExecuted is sent when a sell order fills completely.
	EventOrderExecuted AlertEvent = "order_executed"
	// EventOrderError is sent when the exchange rejects or errors an order.
	EventOrderError AlertEvent = "order_error"
	// EventSellQueuePanic is sent when a sell queue is detected.
	EventSellQueuePanic AlertEvent = "sell_queue_panic"
	// EventSessionSummary is sent for the end-of-session liquidation summary.
	EventSessionSummary AlertEvent = "session_summary"
	// EventEngineStarted is sent when the engine starts.
	EventEngineStarted AlertEvent = "engine_started"
	// EventEngineStopped is sent when the engine stops.
	EventEngineStopped AlertEvent = "engine_stopped"
)

// EventSeverity returns the default severity for an event.
func EventSeverity(event AlertEvent) Severity {
	switch event {
	case EventSellQueuePanic:
		return SeverityHigh
	case EventOrderError, EventOrderFreeze:
		return SeverityWarning
	case EventWatcherStarted, EventWatcherStopped, EventWatcherCompleted:
		return SeverityInfo
	case EventPhaseChanged, EventSelling, EventRepricing, EventOrderExecuted:
		return SeverityInfo
	case EventSessionSummary, EventEngineStarted, EventEngineStopped:
		return SeverityInfo
	default:
		return SeverityInfo
	}
}
