package dataset

import (
	"fmt"
	"time"

	"github.com/YuGuangWang/cwn/internal/alert"
)

// ResultEvent turns a finished job into an alert event. Cache hits produce
// no event.
func ResultEvent(r Result, now time.Time) (alert.Event, bool) {
	ev := alert.Event{
		Source:    "cwn",
		Timestamp: now,
		Run: alert.Run{
			ID:         r.RunID,
			DatasetKey: r.Key,
			Graphs:     r.Graphs,
			Skipped:    r.Skipped,
		},
	}

	switch {
	case r.Error != nil:
		ev.EventType = alert.EventProcessingFailed
		ev.Severity = alert.SeverityCritical
		ev.Message = r.Error.Error()
	case r.Cached:
		return alert.Event{}, false
	default:
		ev.EventType = alert.EventProcessingCompleted
		ev.Severity = alert.SeverityInfo
		ev.Run.Complexes = len(r.Dataset.Complexes)
		ev.Message = fmt.Sprintf("built %d complexes from %d graphs", ev.Run.Complexes, r.Graphs)
		if r.Skipped > 0 {
			ev.Severity = alert.SeverityWarning
			ev.Message += fmt.Sprintf(", skipped %d invalid graphs", r.Skipped)
		}
	}
	return ev, true
}
