package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"mercator-hq/smartproxy/pkg/telemetry/health"
)

// startAdmin launches the admin HTTP endpoint when metrics are
// enabled. Serve errors other than a clean close are sent to errChan.
func (s *Supervisor) startAdmin(errChan chan<- error) {
	if !s.cfg.Telemetry.Metrics.Enabled {
		return
	}

	checker := health.New(0)
	checker.RegisterCheck("listeners", func(ctx context.Context) error {
		if len(s.listeners.Addrs()) == 0 {
			return errors.New("no listeners bound")
		}
		return nil
	})
	checker.RegisterCheck("oracle", s.checkOracleFreshness)
	if s.journal != nil {
		checker.RegisterCheck("journal", s.journal.Ping)
	}

	mux := http.NewServeMux()
	if s.collector != nil {
		mux.Handle(s.cfg.Telemetry.Metrics.Path, s.collector.Handler())
	}
	mux.HandleFunc("/health", checker.LivenessHandler())
	mux.HandleFunc("/ready", checker.ReadinessHandler())
	mux.HandleFunc("/state", health.StateHandler(s.snapshot))
	mux.HandleFunc("/version", health.VersionHandler(s.build.Version, s.build.Commit, s.build.BuildTime))

	s.admin = &http.Server{
		Addr:              s.cfg.Telemetry.Metrics.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("admin endpoint starting",
		"listen_address", s.admin.Addr,
		"metrics_path", s.cfg.Telemetry.Metrics.Path,
	)
	go func() {
		if err := s.admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("admin endpoint: %w", err)
		}
	}()
}

// checkOracleFreshness fails when the oracle has not produced a signal
// for three polling intervals. A powered-down backend is a healthy
// condition; a silent oracle is not.
func (s *Supervisor) checkOracleFreshness(ctx context.Context) error {
	last := time.Unix(0, s.lastSignal.Load())
	stale := 3*s.cfg.CheckInterval() + time.Second
	if age := time.Since(last); age > stale {
		return fmt.Errorf("no oracle signal for %s", age.Round(time.Second))
	}
	return nil
}

func (s *Supervisor) snapshot() health.StateSnapshot {
	return health.StateSnapshot{
		State:             s.machine.State().String(),
		QueueDepth:        s.machine.QueueLen(),
		ActiveConnections: s.pool.ActiveCount(),
		IdleFor:           s.machine.Accountant().IdleFor(),
	}
}
