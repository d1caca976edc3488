// Package alert delivers processing run events to stdout or a webhook.
package alert

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Event types.
const (
	EventProcessingCompleted = "processing_completed"
	EventProcessingFailed    = "processing_failed"
)

// Severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Event represents an alert event sent to alerting backends.
type Event struct {
	Source    string    `json:"source"`
	EventType string    `json:"event_type"`
	Severity  string    `json:"severity"`
	Run       Run       `json:"run"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Run is the processing run embedded in an alert event.
type Run struct {
	ID         int64  `json:"id"`
	DatasetKey string `json:"dataset_key"`
	Graphs     int    `json:"graphs"`
	Complexes  int    `json:"complexes"`
	Skipped    int    `json:"skipped,omitempty"`
}

// Alerter defines the interface for sending alert events.
type Alerter interface {
	// Name returns the alerter identifier.
	Name() string

	// Send dispatches an event to the alerting backend.
	Send(ctx context.Context, event Event) error
}

// Multi sends events to multiple alerters.
type Multi struct {
	alerters []Alerter
}

// NewMulti creates a multi-alerter that dispatches to all backends.
func NewMulti(alerters ...Alerter) *Multi {
	return &Multi{alerters: alerters}
}

// Name returns "multi".
func (m *Multi) Name() string {
	return "multi"
}

// Len returns the number of backends.
func (m *Multi) Len() int {
	return len(m.alerters)
}

// Send dispatches the event to every backend, even after a failure, and
// joins the errors.
func (m *Multi) Send(ctx context.Context, event Event) error {
	var errs []error
	for _, a := range m.alerters {
		if err := a.Send(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a.Name(), err))
		}
	}
	return errors.Join(errs...)
}
