package journal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/smartproxy/pkg/telemetry/logging"
)

// Pruner runs retention pruning on a cron schedule.
type Pruner struct {
	journal *Journal
	cron    *cron.Cron
	logger  *logging.Logger

	mu      sync.Mutex
	running bool
}

// NewPruner creates a pruner for the journal's configured schedule.
func NewPruner(journal *Journal, logger *logging.Logger) *Pruner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Pruner{
		journal: journal,
		cron:    cron.New(),
		logger:  logger.With("component", "journal.pruner"),
	}
}

// Start schedules pruning per the journal's prune schedule. An empty
// schedule or a zero retention disables the pruner. The scheduler
// stops when the context is canceled.
func (p *Pruner) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	schedule := p.journal.cfg.PruneSchedule
	if schedule == "" || p.journal.cfg.RetentionDays <= 0 {
		p.logger.Info("retention pruning disabled")
		return nil
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	if _, err := p.cron.AddFunc(schedule, func() { p.runPruning(ctx) }); err != nil {
		return fmt.Errorf("schedule pruning: %w", err)
	}

	p.cron.Start()
	p.running = true
	p.logger.Info("retention pruner started",
		"schedule", schedule,
		"retention_days", p.journal.cfg.RetentionDays,
	)

	go func() {
		<-ctx.Done()
		p.Stop()
	}()
	return nil
}

func (p *Pruner) runPruning(ctx context.Context) {
	deleted, err := p.journal.Prune(ctx)
	if err != nil {
		p.logger.Error("scheduled pruning failed", "error", err)
		return
	}
	if deleted > 0 {
		p.logger.Info("scheduled pruning completed", "deleted_count", deleted)
	} else {
		p.logger.Debug("scheduled pruning completed, nothing to delete")
	}
}

// Stop halts the scheduler and waits for a running prune to finish.
func (p *Pruner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		<-p.cron.Stop().Done()
		p.running = false
		p.logger.Info("retention pruner stopped")
	}
}

// NextRun returns the next scheduled pruning time, or the zero time
// when the pruner is disabled.
func (p *Pruner) NextRun() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	entries := p.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
