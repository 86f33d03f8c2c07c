package digest

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the drainer on a cron schedule. Standard 5-field cron
// expressions, e.g. "0 9 * * *" for a daily morning digest.
type Scheduler struct {
	cron     *cron.Cron
	drainer  *Drainer
	schedule string
}

func NewScheduler(drainer *Drainer, schedule string) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		drainer:  drainer,
		schedule: schedule,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.drainer.Run(ctx); err != nil {
			slog.Error("Scheduled digest failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	slog.Info("Digest scheduler started", "schedule", s.schedule)
	return nil
}

// Stop halts scheduling and waits for an in-flight run to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
