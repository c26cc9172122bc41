package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/smartproxy/pkg/admission"
	"mercator-hq/smartproxy/pkg/cli"
	"mercator-hq/smartproxy/pkg/config"
	"mercator-hq/smartproxy/pkg/forward"
	"mercator-hq/smartproxy/pkg/ipmi"
	"mercator-hq/smartproxy/pkg/journal"
	"mercator-hq/smartproxy/pkg/lifecycle"
	"mercator-hq/smartproxy/pkg/oracle"
	"mercator-hq/smartproxy/pkg/probe"
	"mercator-hq/smartproxy/pkg/telemetry/logging"
	"mercator-hq/smartproxy/pkg/telemetry/metrics"
)

// BuildInfo identifies the binary on the /version endpoint and in the
// startup banner.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// Supervisor owns every long-running component: the listener set, the
// lifecycle machine, the oracle, the forwarder pool, the admin
// endpoint, and the journal. Start blocks until the context is
// canceled, then shuts the components down in dependency order.
type Supervisor struct {
	cfg    *config.Config
	logger *logging.Logger
	build  BuildInfo

	queue     *admission.Queue
	machine   *lifecycle.Machine
	pool      *forward.Pool
	listeners *forward.ListenerSet
	oracle    *oracle.Oracle
	collector *metrics.Collector
	journal   *journal.Journal
	pruner    *journal.Pruner
	admin     *http.Server

	// lastSignal is the wall clock of the newest oracle signal, unix
	// nanoseconds. Read by the readiness check.
	lastSignal atomic.Int64

	shutdownOnce sync.Once
	machineDone  chan struct{}

	mu        sync.Mutex
	isRunning bool
}

// New creates a supervisor for a validated configuration.
func New(cfg *config.Config, logger *logging.Logger, build BuildInfo) *Supervisor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Supervisor{
		cfg:         cfg,
		logger:      logger,
		build:       build,
		machineDone: make(chan struct{}),
	}
}

// Start assembles the components, binds the listeners, and blocks
// until the context is canceled or a component fails fatally.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("supervisor is already running")
	}
	s.isRunning = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	effector, err := ipmi.NewTool(ipmi.ToolConfig{
		Path:     s.cfg.IPMIPath,
		Host:     s.cfg.IPMIHost,
		User:     s.cfg.IPMIUser,
		Password: s.cfg.IPMIPassword,
	}, s.logger)
	if err != nil {
		return &cli.ConfigError{Field: "ipmi_path", Message: err.Error()}
	}

	var observers []lifecycle.Observer
	if s.cfg.Telemetry.Metrics.Enabled {
		s.collector = metrics.NewCollector(&s.cfg.Telemetry.Metrics, nil)
		observers = append(observers, s.collector)
	}
	if s.cfg.Journal.Enabled {
		j, err := journal.Open(s.cfg.Journal, s.logger)
		if err != nil {
			return &cli.ConfigError{Field: "journal.path", Message: err.Error()}
		}
		s.journal = j
		s.pruner = journal.NewPruner(j, s.logger)
		observers = append(observers, j)
	}

	s.queue = admission.NewQueue(int(s.cfg.MaxQueueSize))
	s.machine = lifecycle.NewMachine(lifecycle.Config{
		StartupTimeout:    s.cfg.StartupTimeout(),
		InactivityTimeout: s.cfg.InactivityTimeout(),
		CheckInterval:     s.cfg.CheckInterval(),
	}, s.queue, effector, s.logger, observers...)

	s.pool = forward.NewPool(forward.PoolConfig{
		BackendHost: s.cfg.TargetHost,
		Accountant:  s.machine.Accountant(),
		Reporter:    s.machine,
		Logger:      s.logger,
	})
	s.machine.SetForwarder(s.pool)

	if s.collector != nil {
		s.collector.SetQueueCapacity(s.queue.Capacity())
		s.collector.TrackQueueDepth(s.machine.QueueLen)
		s.collector.TrackActiveConnections(s.pool.ActiveCount)
		s.pool.SetBytesHook(s.collector.AddForwardedBytes)
	}

	prober := probe.New(s.cfg.TargetHost, 0)
	s.oracle = oracle.New(effector, prober, s.cfg.BackendPorts(), s.cfg.CheckInterval(), s.logger)

	s.listeners = forward.NewListenerSet(
		s.cfg.ProxyHost,
		s.cfg.PortMappings,
		s.cfg.RequestTimeout(),
		s.machine,
		s.machine.Accountant().Touch,
		s.logger,
	)
	if err := s.listeners.Start(); err != nil {
		s.closeJournal()
		return &cli.ConfigError{Field: "port_mappings", Message: err.Error()}
	}

	// Independent cancellation per component so shutdown can be
	// ordered: listeners first, machine last.
	machineCtx, cancelMachine := context.WithCancel(context.Background())
	oracleCtx, cancelOracle := context.WithCancel(context.Background())
	journalCtx, cancelJournal := context.WithCancel(context.Background())

	go func() {
		defer close(s.machineDone)
		s.machine.Run(machineCtx)
	}()

	s.lastSignal.Store(time.Now().UnixNano())
	sink := s.machine.SignalSink()
	go s.oracle.Run(oracleCtx, func(sig oracle.Signal) {
		s.lastSignal.Store(time.Now().UnixNano())
		sink(sig)
	})

	if s.journal != nil {
		go s.journal.Run(journalCtx)
		if err := s.pruner.Start(journalCtx); err != nil {
			s.logger.Error("retention pruner failed to start", "error", err)
		}
	}

	warmupStop, err := s.startWarmup()
	if err != nil {
		cancelMachine()
		cancelOracle()
		cancelJournal()
		s.listeners.Close()
		s.closeJournal()
		return &cli.ConfigError{Field: "warmup_schedule", Message: err.Error()}
	}

	errChan := make(chan error, 1)
	s.startAdmin(errChan)

	s.banner()

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown requested")
	case err := <-errChan:
		s.logger.Error("component failed", "error", err)
		runErr = err
	}

	s.shutdown(warmupStop, cancelOracle, cancelMachine, cancelJournal)
	return runErr
}

// shutdown stops the components in dependency order: stop taking new
// work, let in-flight work drain, then tear down the core.
func (s *Supervisor) shutdown(warmupStop func(), cancelOracle, cancelMachine, cancelJournal context.CancelFunc) {
	s.shutdownOnce.Do(func() {
		s.logger.Info("initiating graceful shutdown")

		s.listeners.Close()
		warmupStop()
		cancelOracle()

		grace := s.cfg.RequestTimeout()
		drainCtx, cancel := context.WithTimeout(context.Background(), grace)
		s.pool.Drain(drainCtx)
		cancel()

		// Queued intents are failed by the machine on its way out.
		cancelMachine()
		<-s.machineDone

		if s.admin != nil {
			adminCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.admin.Shutdown(adminCtx); err != nil {
				s.logger.Warn("admin endpoint shutdown", "error", err)
			}
			cancel()
		}

		cancelJournal()
		s.closeJournal()

		s.logger.Info("smartproxy stopped")
	})
}

func (s *Supervisor) closeJournal() {
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.logger.Warn("journal close", "error", err)
		}
	}
}

// IsRunning reports whether Start is active.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// banner logs the effective configuration. Credentials are never
// included.
func (s *Supervisor) banner() {
	mappings := make([]string, 0, len(s.cfg.PortMappings))
	for _, m := range s.cfg.PortMappings {
		mappings = append(mappings, fmt.Sprintf("%d->%d", m.ListenPort, m.BackendPort))
	}
	s.logger.Info("smartproxy started",
		"version", s.build.Version,
		"proxy_host", s.cfg.ProxyHost,
		"port_mappings", mappings,
		"target_host", s.cfg.TargetHost,
		"ipmi_host", s.cfg.IPMIHost,
		"inactivity_timeout", s.cfg.InactivityTimeout().String(),
		"startup_timeout", s.cfg.StartupTimeout().String(),
		"check_interval", s.cfg.CheckInterval().String(),
		"max_queue_size", s.cfg.MaxQueueSize,
		"request_timeout", s.cfg.RequestTimeout().String(),
		"warmup_schedule", s.cfg.WarmupSchedule,
		"metrics_enabled", s.cfg.Telemetry.Metrics.Enabled,
		"journal_enabled", s.cfg.Journal.Enabled,
	)
}
