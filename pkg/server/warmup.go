package server

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// startWarmup schedules pre-emptive power-on per the configured cron
// expression. The returned stop function halts the scheduler; it is a
// no-op when no schedule is configured.
func (s *Supervisor) startWarmup() (func(), error) {
	schedule := s.cfg.WarmupSchedule
	if schedule == "" {
		return func() {}, nil
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid warmup schedule %q: %w", schedule, err)
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		s.logger.Info("warmup triggered", "schedule", schedule)
		s.machine.Warmup()
	}); err != nil {
		return nil, fmt.Errorf("schedule warmup: %w", err)
	}

	c.Start()
	s.logger.Info("warmup scheduler started", "schedule", schedule)
	return func() { <-c.Stop().Done() }, nil
}
