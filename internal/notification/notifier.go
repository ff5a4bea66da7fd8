// Package notification provides alert delivery to external channels
// (webhooks, ops chat) for market-data pipeline events: gaps, replay
// activations, and batch failures.
package notification

import (
	"context"
	"fmt"
	"log"
	"time"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// GapAlert builds the alert sent when a timeline gap is flagged.
func GapAlert(group string, start, end time.Time) Alert {
	return Alert{
		Level: AlertWarning,
		Title: "market-data gap detected",
		Message: fmt.Sprintf("group %s: expected %s, got %s",
			group, start.Add(time.Minute).Format(time.RFC3339), end.Format(time.RFC3339)),
	}
}

// BatchFailureAlert builds the alert sent when tenants fail a bin.
func BatchFailureAlert(group string, ts time.Time, failed, total int) Alert {
	level := AlertWarning
	if failed == total {
		level = AlertCritical
	}
	return Alert{
		Level: level,
		Title: "tenant batch failure",
		Message: fmt.Sprintf("group %s bin %s: %d/%d tenants failed",
			group, ts.Format(time.RFC3339), failed, total),
	}
}
