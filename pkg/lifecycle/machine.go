package lifecycle

import (
	"context"
	"sync/atomic"
	"time"

	"mercator-hq/smartproxy/pkg/admission"
	"mercator-hq/smartproxy/pkg/idle"
	"mercator-hq/smartproxy/pkg/ipmi"
	"mercator-hq/smartproxy/pkg/oracle"
	"mercator-hq/smartproxy/pkg/telemetry/logging"
)

// Forwarder launches byte pumps for released intents. Forward must not
// block; it spawns its own goroutines. CloseAll tears down every
// active pump, used when READY is lost unexpectedly.
type Forwarder interface {
	Forward(intent *admission.Intent)
	CloseAll()
}

// Config holds the machine's timing knobs.
type Config struct {
	// StartupTimeout bounds the OFF→STARTING→READY window.
	StartupTimeout time.Duration

	// InactivityTimeout is how long READY may sit without activity
	// before a soft-off is issued.
	InactivityTimeout time.Duration

	// CheckInterval drives the queue expiry sweep.
	CheckInterval time.Duration

	// SoftOffRetryDelay is how long to wait before retrying a failed
	// soft-off while still in STOPPING. Zero means five minutes.
	SoftOffRetryDelay time.Duration
}

type eventKind int

const (
	evIntent eventKind = iota
	evSignal
	evIdle
	evStartupDeadline
	evPowerOnDone
	evSoftOffDone
	evSoftOffRetry
	evDialFailure
	evWarmup
)

type event struct {
	kind   eventKind
	intent *admission.Intent
	signal oracle.Signal
	gen    uint64
	err    error
}

// Machine is the single-writer lifecycle state machine.
type Machine struct {
	cfg        Config
	queue      *admission.Queue
	effector   ipmi.Effector
	forwarder  Forwarder
	accountant *idle.Accountant
	logger     *logging.Logger
	observers  []Observer

	events chan event
	state  atomic.Int32

	// Writer-goroutine state. Touched only inside Run.
	runCtx         context.Context
	startupGen     uint64
	startupTimer   *time.Timer
	startupRetried bool
}

// NewMachine creates a Machine in StateOff. The queue capacity and all
// timing knobs come from configuration; the forwarder is wired by the
// supervisor before Run is called.
func NewMachine(cfg Config, queue *admission.Queue, effector ipmi.Effector, logger *logging.Logger, observers ...Observer) *Machine {
	if cfg.SoftOffRetryDelay <= 0 {
		cfg.SoftOffRetryDelay = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Discard()
	}
	m := &Machine{
		cfg:       cfg,
		queue:     queue,
		effector:  effector,
		logger:    logger.With("component", "lifecycle"),
		observers: observers,
		events:    make(chan event, 1024),
	}
	m.accountant = idle.New(cfg.InactivityTimeout, func() {
		m.post(event{kind: evIdle})
	})
	return m
}

// SetForwarder wires the forwarder. Must be called before Run.
func (m *Machine) SetForwarder(f Forwarder) {
	m.forwarder = f
}

// State returns an atomic snapshot of the current state.
func (m *Machine) State() State {
	return State(m.state.Load())
}

// Accountant exposes the idle accountant so forwarders can stamp
// activity.
func (m *Machine) Accountant() *idle.Accountant {
	return m.accountant
}

// QueueLen returns the current queue depth.
func (m *Machine) QueueLen() int {
	return m.queue.Len()
}

// SubmitIntent posts an arriving connection intent.
func (m *Machine) SubmitIntent(intent *admission.Intent) {
	m.post(event{kind: evIntent, intent: intent})
}

// SignalSink returns the oracle sink feeding this machine.
func (m *Machine) SignalSink() oracle.Sink {
	return func(s oracle.Signal) {
		m.post(event{kind: evSignal, signal: s})
	}
}

// ReportDialFailure posts a forwarder's backend dial failure. The
// machine decides between a one-shot re-enqueue and a 502.
func (m *Machine) ReportDialFailure(intent *admission.Intent) {
	m.post(event{kind: evDialFailure, intent: intent})
}

// Warmup posts a scheduled warmup request: power the backend on ahead
// of expected traffic. A no-op unless the machine is OFF.
func (m *Machine) Warmup() {
	m.post(event{kind: evWarmup})
}

func (m *Machine) post(ev event) {
	m.events <- ev
}

// Run consumes events until the context is canceled. On shutdown the
// queue is failed with ShuttingDown responses; the backend is left in
// whatever power state it is in, since shutting the proxy down is not
// shutting the backend down.
func (m *Machine) Run(ctx context.Context) {
	m.runCtx = ctx
	m.logger.Info("state machine started", "state", m.State().String())

	sweep := time.NewTicker(m.cfg.CheckInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return
		case <-sweep.C:
			m.sweepExpired()
		case ev := <-m.events:
			m.handle(ev)
		}
	}
}

func (m *Machine) handle(ev event) {
	switch ev.kind {
	case evIntent:
		m.handleIntent(ev.intent)
	case evSignal:
		m.handleSignal(ev.signal)
	case evIdle:
		m.handleIdle()
	case evStartupDeadline:
		m.handleStartupDeadline(ev.gen)
	case evPowerOnDone:
		m.notifyPower("on", ev.err)
		if ev.err != nil {
			m.logger.Warn("power-on command failed", "error", ev.err.Error())
		}
	case evSoftOffDone:
		m.handleSoftOffDone(ev.err)
	case evSoftOffRetry:
		m.handleSoftOffRetry()
	case evDialFailure:
		m.handleDialFailure(ev.intent)
	case evWarmup:
		m.handleWarmup()
	default:
		m.logger.Warn("ignoring unknown event", "kind", int(ev.kind))
	}
}

func (m *Machine) handleIntent(intent *admission.Intent) {
	if m.State() == StateReady {
		m.accountant.Touch()
		m.release(intent)
		return
	}

	if err := m.queue.Offer(intent); err != nil {
		m.failIntent(intent, admission.FailureQueueFull)
		return
	}
	m.notifyAdmitted(intent)

	if m.State() == StateOff {
		m.beginStartup("intent arrived")
	}
}

func (m *Machine) handleSignal(sig oracle.Signal) {
	state := m.State()
	switch sig {
	case oracle.ObservedReady:
		switch state {
		case StateOff, StateStarting, StateStopping:
			m.enterReady("observed ready")
		}

	case oracle.ObservedStarting:
		switch state {
		case StateOff:
			// Power came up behind our back; track the startup so
			// the deadline still bounds it.
			m.transition(StateStarting, "observed starting")
			m.armStartupDeadline()
		case StateReady:
			m.logger.Warn("backend regressed to starting while ready")
			m.leaveReady()
			m.transition(StateStarting, "backend unreachable")
			m.armStartupDeadline()
		case StateStopping:
			m.transition(StateStarting, "backend restarting")
			m.armStartupDeadline()
		}

	case oracle.ObservedOff:
		switch state {
		case StateReady:
			m.logger.Warn("unexpected power loss while ready")
			m.leaveReady()
			m.forwarder.CloseAll()
			m.transition(StateOff, "unexpected power loss")
		case StateStopping:
			m.transition(StateOff, "soft-off complete")
			if m.queue.Len() > 0 {
				m.beginStartup("queued intents waiting")
			}
		}

	case oracle.ObservedUnknown:
		// Observation failed; hold state.
	}
}

func (m *Machine) handleIdle() {
	if m.State() != StateReady {
		return
	}
	m.transition(StateStopping, "inactivity timeout")
	m.issuePowerSoft()
}

func (m *Machine) handleStartupDeadline(gen uint64) {
	if m.State() != StateStarting || gen != m.startupGen {
		return
	}

	if m.queue.Len() > 0 && !m.startupRetried {
		m.startupRetried = true
		m.logger.Warn("startup deadline reached, retrying power-on",
			"queued", m.queue.Len(),
		)
		m.issuePowerOn()
		m.armStartupDeadlineKeepRetry()
		return
	}

	m.logger.Error("backend failed to start before deadline",
		"queued", m.queue.Len(),
	)
	for _, intent := range m.queue.ReleaseAll() {
		m.failIntent(intent, admission.FailureStartTimeout)
	}
	m.transition(StateOff, "startup timeout")
}

func (m *Machine) handleSoftOffDone(err error) {
	m.notifyPower("soft", err)
	if err == nil {
		return
	}
	m.logger.Warn("soft-off command failed", "error", err.Error())
	if m.State() != StateStopping {
		return
	}
	gen := m.startupGen
	time.AfterFunc(m.cfg.SoftOffRetryDelay, func() {
		m.post(event{kind: evSoftOffRetry, gen: gen})
	})
}

func (m *Machine) handleSoftOffRetry() {
	if m.State() != StateStopping {
		return
	}
	m.logger.Info("retrying soft-off")
	m.issuePowerSoft()
}

func (m *Machine) handleDialFailure(intent *admission.Intent) {
	if intent.Expired(time.Now()) {
		m.failIntent(intent, admission.FailureDeadlineExpired)
		return
	}
	if intent.Requeued || m.State() == StateReady {
		m.failIntent(intent, admission.FailureBackendDial)
		return
	}

	// The backend flapped mid-drain. One more chance with the
	// remaining deadline.
	intent.Requeued = true
	if err := m.queue.Offer(intent); err != nil {
		m.failIntent(intent, admission.FailureQueueFull)
		return
	}
	m.notifyAdmitted(intent)
	if m.State() == StateOff {
		m.beginStartup("requeued intent")
	}
}

func (m *Machine) handleWarmup() {
	if m.State() != StateOff {
		return
	}
	m.logger.Info("scheduled warmup triggered")
	m.beginStartup("warmup schedule")
}

// beginStartup issues a power-on and enters STARTING with a fresh
// deadline window.
func (m *Machine) beginStartup(reason string) {
	m.transition(StateStarting, reason)
	m.issuePowerOn()
	m.armStartupDeadline()
}

// enterReady drains the queue in FIFO order and arms the idle
// accountant.
func (m *Machine) enterReady(reason string) {
	m.clearStartupDeadline()
	m.transition(StateReady, reason)

	released := 0
	for _, intent := range m.queue.ReleaseAll() {
		if intent.Expired(time.Now()) {
			m.failIntent(intent, admission.FailureDeadlineExpired)
			continue
		}
		m.release(intent)
		released++
	}
	if released > 0 {
		m.logger.Info("drained admission queue", "released", released)
	}

	m.accountant.Arm()
}

func (m *Machine) leaveReady() {
	m.accountant.Disarm()
}

func (m *Machine) release(intent *admission.Intent) {
	m.notifyReleased(intent)
	m.forwarder.Forward(intent)
}

func (m *Machine) sweepExpired() {
	for _, intent := range m.queue.ExpireDue(time.Now()) {
		m.failIntent(intent, admission.FailureDeadlineExpired)
	}
}

func (m *Machine) issuePowerOn() {
	ctx := m.runCtx
	go func() {
		err := m.effector.PowerOn(ctx)
		m.post(event{kind: evPowerOnDone, err: err})
	}()
}

func (m *Machine) issuePowerSoft() {
	ctx := m.runCtx
	go func() {
		err := m.effector.PowerSoft(ctx)
		m.post(event{kind: evSoftOffDone, err: err})
	}()
}

func (m *Machine) armStartupDeadline() {
	m.startupRetried = false
	m.armStartupDeadlineKeepRetry()
}

// armStartupDeadlineKeepRetry re-arms the deadline without resetting
// the one-retry-per-window budget.
func (m *Machine) armStartupDeadlineKeepRetry() {
	m.startupGen++
	gen := m.startupGen
	if m.startupTimer != nil {
		m.startupTimer.Stop()
	}
	m.startupTimer = time.AfterFunc(m.cfg.StartupTimeout, func() {
		m.post(event{kind: evStartupDeadline, gen: gen})
	})
}

func (m *Machine) clearStartupDeadline() {
	m.startupGen++
	if m.startupTimer != nil {
		m.startupTimer.Stop()
		m.startupTimer = nil
	}
}

func (m *Machine) shutdown() {
	m.leaveReady()
	m.clearStartupDeadline()

	failed := 0
	for _, intent := range m.queue.ReleaseAll() {
		m.failIntent(intent, admission.FailureShuttingDown)
		failed++
	}
	m.logger.Info("state machine stopped",
		"state", m.State().String(),
		"failed_queued", failed,
	)
}

func (m *Machine) transition(to State, reason string) {
	from := m.State()
	if from == to {
		return
	}
	m.state.Store(int32(to))
	m.logger.Info("lifecycle transition",
		"from", from.String(),
		"to", to.String(),
		"reason", reason,
	)
	for _, o := range m.observers {
		o.StateChanged(from, to, reason)
	}
}

func (m *Machine) failIntent(intent *admission.Intent, failure admission.Failure) {
	m.logger.Info("intent failed",
		"intent_id", intent.ID,
		"listen_port", intent.ListenPort,
		"failure", failure.String(),
	)
	for _, o := range m.observers {
		o.IntentFailed(intent, failure)
	}
	admission.Fail(intent.Conn, failure)
}

func (m *Machine) notifyAdmitted(intent *admission.Intent) {
	qlen := m.queue.Len()
	for _, o := range m.observers {
		o.IntentAdmitted(intent, qlen)
	}
}

func (m *Machine) notifyReleased(intent *admission.Intent) {
	for _, o := range m.observers {
		o.IntentReleased(intent)
	}
}

func (m *Machine) notifyPower(verb string, err error) {
	for _, o := range m.observers {
		o.PowerCommand(verb, err)
	}
}
