package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/YuGuangWang/cwn/internal/alert"
)

// Scheduler processes a fixed set of datasets periodically using a time.Ticker.
// Cached datasets are loaded, not rebuilt, so a tick only does work for
// configs that are missing from the cache.
type Scheduler struct {
	processor *Processor
	configs   []Config
	interval  time.Duration
	logger    *slog.Logger
	alerter   alert.Alerter
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewScheduler creates a scheduler. The interval string is parsed with
// time.ParseDuration (e.g. "4h", "30m", "1h30m").
func NewScheduler(p *Processor, configs []Config, interval string, logger *slog.Logger) (*Scheduler, error) {
	d, err := time.ParseDuration(interval)
	if err != nil {
		return nil, fmt.Errorf("invalid processing schedule %q: %w (use Go duration format: 4h, 30m, etc.)", interval, err)
	}
	if d < 1*time.Minute {
		return nil, fmt.Errorf("processing interval must be at least 1m, got %s", d)
	}
	return &Scheduler{
		processor: p,
		configs:   configs,
		interval:  d,
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// SetAlerter reports every non-cached result of a scheduled run to a.
// Call before Start.
func (s *Scheduler) SetAlerter(a alert.Alerter) {
	s.alerter = a
}

// Start begins the scheduling loop. Call Stop() to terminate.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		defer close(s.doneCh)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("processing scheduler started", "interval", s.interval.String(), "datasets", len(s.configs))

		for {
			select {
			case <-ticker.C:
				s.tick(ctx)
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Scheduler) tick(ctx context.Context) {
	if s.processor.IsRunning() {
		s.logger.Info("skipping scheduled processing, previous job still running")
		return
	}
	for _, r := range s.processor.ProcessAll(ctx, s.configs) {
		if r.Error != nil {
			s.logger.Error("scheduled processing failed", "runID", r.RunID, "key", r.Key, "error", r.Error)
		} else {
			s.logger.Info("scheduled processing completed",
				"runID", r.RunID, "key", r.Key, "cached", r.Cached, "complexes", len(r.Dataset.Complexes))
		}
		s.notify(ctx, r)
	}
}

func (s *Scheduler) notify(ctx context.Context, r Result) {
	if s.alerter == nil {
		return
	}
	ev, ok := ResultEvent(r, time.Now())
	if !ok {
		return
	}
	if err := s.alerter.Send(ctx, ev); err != nil {
		s.logger.Warn("sending processing alert", "alerter", s.alerter.Name(), "key", r.Key, "error", err)
	}
}

// Stop halts the scheduler and waits for it to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
}
