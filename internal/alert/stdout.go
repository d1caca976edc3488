package alert

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

// StdoutAlerter prints events as one line each.
type StdoutAlerter struct {
	w io.Writer
}

// NewStdoutAlerter creates an alerter writing to os.Stdout.
func NewStdoutAlerter() *StdoutAlerter {
	return &StdoutAlerter{w: os.Stdout}
}

// Name returns "stdout".
func (s *StdoutAlerter) Name() string {
	return "stdout"
}

// Send prints the event.
func (s *StdoutAlerter) Send(_ context.Context, event Event) error {
	icon := severityIcon(event.Severity)
	ts := event.Timestamp.Format(time.RFC3339)

	_, err := fmt.Fprintf(s.w, "%s [%s] %s %s (run #%d): %s\n",
		icon, ts, event.EventType, event.Run.DatasetKey, event.Run.ID, event.Message)
	return err
}

func severityIcon(severity string) string {
	switch severity {
	case SeverityCritical:
		return "[CRIT]"
	case SeverityWarning:
		return "[WARN]"
	case SeverityInfo:
		return "[INFO]"
	default:
		return "[----]"
	}
}
