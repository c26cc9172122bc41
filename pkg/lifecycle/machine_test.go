package lifecycle

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"mercator-hq/smartproxy/pkg/admission"
	"mercator-hq/smartproxy/pkg/ipmi"
	"mercator-hq/smartproxy/pkg/oracle"
)

// fakeForwarder records released intents.
type fakeForwarder struct {
	mu       sync.Mutex
	intents  []*admission.Intent
	closeAll int
}

func (f *fakeForwarder) Forward(intent *admission.Intent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents = append(f.intents, intent)
}

func (f *fakeForwarder) CloseAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeAll++
}

func (f *fakeForwarder) released() []*admission.Intent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*admission.Intent, len(f.intents))
	copy(out, f.intents)
	return out
}

func (f *fakeForwarder) closeAllCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeAll
}

type harness struct {
	machine   *Machine
	effector  *ipmi.Simulator
	forwarder *fakeForwarder
	queue     *admission.Queue
	cancel    context.CancelFunc
	done      chan struct{}
}

func newHarness(t *testing.T, cfg Config, queueCap int) *harness {
	t.Helper()
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = time.Hour
	}
	if cfg.InactivityTimeout == 0 {
		cfg.InactivityTimeout = time.Hour
	}
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 25 * time.Millisecond
	}
	if cfg.SoftOffRetryDelay == 0 {
		cfg.SoftOffRetryDelay = time.Hour
	}

	sim := ipmi.NewSimulator(ipmi.PoweredOff)
	queue := admission.NewQueue(queueCap)
	fwd := &fakeForwarder{}
	m := NewMachine(cfg, queue, sim, nil)
	m.SetForwarder(fwd)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &harness{machine: m, effector: sim, forwarder: fwd, queue: queue, cancel: cancel, done: done}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitState(t *testing.T, m *Machine, want State) {
	t.Helper()
	waitFor(t, "state "+want.String(), func() bool { return m.State() == want })
}

func testIntent(timeout time.Duration) *admission.Intent {
	return admission.NewIntent(nil, 8080, 80, timeout)
}

// pipeIntent returns an intent whose failure response can be read from
// the returned client side.
func pipeIntent(timeout time.Duration) (*admission.Intent, net.Conn) {
	client, server := net.Pipe()
	return admission.NewIntent(server, 8080, 80, timeout), client
}

func readResponse(t *testing.T, conn net.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 512)
	n, _ := conn.Read(buf)
	conn.Close()
	return string(buf[:n])
}

func TestColdStart(t *testing.T) {
	h := newHarness(t, Config{}, 10)

	if h.machine.State() != StateOff {
		t.Fatalf("initial state = %v, want OFF", h.machine.State())
	}

	h.machine.SubmitIntent(testIntent(time.Minute))

	waitState(t, h.machine, StateStarting)
	waitFor(t, "power-on", func() bool { return h.effector.Calls("on") == 1 })

	// No forwarder before READY.
	if len(h.forwarder.released()) != 0 {
		t.Fatal("forwarder spawned before READY")
	}

	h.machine.SignalSink()(oracle.ObservedReady)

	waitState(t, h.machine, StateReady)
	waitFor(t, "intent release", func() bool { return len(h.forwarder.released()) == 1 })

	if h.effector.Calls("on") != 1 {
		t.Errorf("power-on issued %d times, want 1", h.effector.Calls("on"))
	}
	if !h.machine.Accountant().Armed() {
		t.Error("idle accountant not armed in READY")
	}
}

func TestQueueOverflow(t *testing.T) {
	h := newHarness(t, Config{}, 3)

	for i := 0; i < 3; i++ {
		h.machine.SubmitIntent(testIntent(time.Minute))
	}
	waitFor(t, "queue fill", func() bool { return h.machine.QueueLen() == 3 })

	overflow, client := pipeIntent(time.Minute)
	h.machine.SubmitIntent(overflow)

	resp := readResponse(t, client)
	if !strings.HasPrefix(resp, "HTTP/1.1 503") {
		t.Errorf("overflow response = %q, want 503", resp)
	}
	if h.machine.QueueLen() != 3 {
		t.Errorf("queue length = %d, want 3", h.machine.QueueLen())
	}
}

func TestStartupTimeout_RetryThenFail(t *testing.T) {
	h := newHarness(t, Config{StartupTimeout: 60 * time.Millisecond}, 10)

	intent, client := pipeIntent(time.Minute)
	h.machine.SubmitIntent(intent)

	waitState(t, h.machine, StateStarting)

	// First deadline with a non-empty queue: one power-on retry.
	waitFor(t, "power-on retry", func() bool { return h.effector.Calls("on") == 2 })

	// Second deadline: fail everything with 504 and fall back to OFF.
	resp := readResponse(t, client)
	if !strings.HasPrefix(resp, "HTTP/1.1 504") {
		t.Errorf("startup timeout response = %q, want 504", resp)
	}
	waitState(t, h.machine, StateOff)

	if h.effector.Calls("on") != 2 {
		t.Errorf("power-on issued %d times, want 2 (initial + one retry)", h.effector.Calls("on"))
	}
}

func TestIdleShutdown(t *testing.T) {
	h := newHarness(t, Config{InactivityTimeout: 50 * time.Millisecond}, 10)

	h.machine.SignalSink()(oracle.ObservedReady)
	waitState(t, h.machine, StateReady)

	waitState(t, h.machine, StateStopping)
	waitFor(t, "soft-off", func() bool { return h.effector.Calls("soft") == 1 })

	h.machine.SignalSink()(oracle.ObservedOff)
	waitState(t, h.machine, StateOff)

	if h.effector.Calls("soft") != 1 {
		t.Errorf("soft-off issued %d times, want 1", h.effector.Calls("soft"))
	}
}

func TestIntentDuringStopping(t *testing.T) {
	h := newHarness(t, Config{InactivityTimeout: 50 * time.Millisecond}, 10)

	h.machine.SignalSink()(oracle.ObservedReady)
	waitState(t, h.machine, StateReady)
	waitState(t, h.machine, StateStopping)

	// Arrivals during STOPPING enqueue; they do not cancel the stop.
	h.machine.SubmitIntent(testIntent(time.Minute))
	waitFor(t, "enqueue", func() bool { return h.machine.QueueLen() == 1 })
	if h.machine.State() != StateStopping {
		t.Fatalf("state = %v, want STOPPING", h.machine.State())
	}

	// Once the backend is down, the queued intent triggers a fresh
	// startup cycle.
	h.machine.SignalSink()(oracle.ObservedOff)
	waitState(t, h.machine, StateStarting)
	waitFor(t, "restart power-on", func() bool { return h.effector.Calls("on") == 1 })
}

func TestDrainFIFOOrder(t *testing.T) {
	h := newHarness(t, Config{}, 10)

	a := admission.NewIntent(nil, 8080, 80, time.Minute)
	b := admission.NewIntent(nil, 8443, 443, time.Minute)
	c := admission.NewIntent(nil, 8080, 80, time.Minute)
	for _, in := range []*admission.Intent{a, b, c} {
		h.machine.SubmitIntent(in)
	}
	waitFor(t, "queue fill", func() bool { return h.machine.QueueLen() == 3 })

	h.machine.SignalSink()(oracle.ObservedReady)
	waitFor(t, "drain", func() bool { return len(h.forwarder.released()) == 3 })

	got := h.forwarder.released()
	if got[0] != a || got[1] != b || got[2] != c {
		t.Error("drain order is not FIFO")
	}
	if got[1].BackendPort != 443 {
		t.Errorf("intent kept wrong backend port: %d", got[1].BackendPort)
	}
}

func TestReadyForwardsImmediately(t *testing.T) {
	h := newHarness(t, Config{}, 10)

	h.machine.SignalSink()(oracle.ObservedReady)
	waitState(t, h.machine, StateReady)

	h.machine.SubmitIntent(testIntent(time.Minute))
	waitFor(t, "immediate forward", func() bool { return len(h.forwarder.released()) == 1 })

	if h.machine.QueueLen() != 0 {
		t.Errorf("intent was enqueued in READY, queue length %d", h.machine.QueueLen())
	}
}

func TestExpiredIntentFailedOnDrain(t *testing.T) {
	h := newHarness(t, Config{CheckInterval: time.Hour}, 10)

	expired, client := pipeIntent(10 * time.Millisecond)
	h.machine.SubmitIntent(expired)
	waitFor(t, "enqueue", func() bool { return h.machine.QueueLen() == 1 })

	time.Sleep(30 * time.Millisecond)
	h.machine.SignalSink()(oracle.ObservedReady)

	resp := readResponse(t, client)
	if !strings.HasPrefix(resp, "HTTP/1.1 504") {
		t.Errorf("expired drain response = %q, want 504", resp)
	}
	waitFor(t, "no forward", func() bool { return len(h.forwarder.released()) == 0 })
}

func TestExpirySweep(t *testing.T) {
	h := newHarness(t, Config{CheckInterval: 20 * time.Millisecond}, 10)

	expired, client := pipeIntent(10 * time.Millisecond)
	h.machine.SubmitIntent(expired)
	waitFor(t, "enqueue", func() bool { return h.machine.QueueLen() == 1 })

	// The sweep must expire it without any drain happening.
	resp := readResponse(t, client)
	if !strings.HasPrefix(resp, "HTTP/1.1 504") {
		t.Errorf("sweep response = %q, want 504", resp)
	}
	waitFor(t, "queue empty", func() bool { return h.machine.QueueLen() == 0 })
}

func TestDialFailure_RequeueOnceInStarting(t *testing.T) {
	h := newHarness(t, Config{}, 10)

	// Get to STARTING.
	h.machine.SubmitIntent(testIntent(time.Minute))
	waitState(t, h.machine, StateStarting)

	fresh := testIntent(time.Minute)
	h.machine.ReportDialFailure(fresh)

	waitFor(t, "requeue", func() bool { return h.machine.QueueLen() == 2 })
	if !fresh.Requeued {
		t.Error("intent not marked requeued")
	}

	// A second failure surfaces as 502.
	again, client := pipeIntent(time.Minute)
	again.Requeued = true
	h.machine.ReportDialFailure(again)

	resp := readResponse(t, client)
	if !strings.HasPrefix(resp, "HTTP/1.1 502") {
		t.Errorf("second dial failure response = %q, want 502", resp)
	}
}

func TestDialFailure_NoRetryInReady(t *testing.T) {
	h := newHarness(t, Config{}, 10)

	h.machine.SignalSink()(oracle.ObservedReady)
	waitState(t, h.machine, StateReady)

	intent, client := pipeIntent(time.Minute)
	h.machine.ReportDialFailure(intent)

	resp := readResponse(t, client)
	if !strings.HasPrefix(resp, "HTTP/1.1 502") {
		t.Errorf("READY dial failure response = %q, want 502", resp)
	}
	if h.machine.QueueLen() != 0 {
		t.Error("READY dial failure was requeued")
	}
}

func TestUnexpectedPowerLossInReady(t *testing.T) {
	h := newHarness(t, Config{}, 10)

	h.machine.SignalSink()(oracle.ObservedReady)
	waitState(t, h.machine, StateReady)

	h.machine.SignalSink()(oracle.ObservedOff)
	waitState(t, h.machine, StateOff)

	waitFor(t, "forwarder teardown", func() bool { return h.forwarder.closeAllCalls() == 1 })
	if h.machine.Accountant().Armed() {
		t.Error("accountant still armed after power loss")
	}
}

func TestUnknownSignalHoldsState(t *testing.T) {
	h := newHarness(t, Config{}, 10)

	h.machine.SignalSink()(oracle.ObservedReady)
	waitState(t, h.machine, StateReady)

	h.machine.SignalSink()(oracle.ObservedUnknown)
	time.Sleep(50 * time.Millisecond)
	if h.machine.State() != StateReady {
		t.Errorf("unknown signal changed state to %v", h.machine.State())
	}
}

func TestWarmup(t *testing.T) {
	h := newHarness(t, Config{}, 10)

	h.machine.Warmup()
	waitState(t, h.machine, StateStarting)
	waitFor(t, "warmup power-on", func() bool { return h.effector.Calls("on") == 1 })

	// Warmup in any other state is a no-op.
	h.machine.Warmup()
	time.Sleep(30 * time.Millisecond)
	if h.effector.Calls("on") != 1 {
		t.Errorf("warmup issued extra power-on: %d", h.effector.Calls("on"))
	}
}

func TestShutdownFailsQueuedIntents(t *testing.T) {
	cfg := Config{StartupTimeout: time.Hour, InactivityTimeout: time.Hour, CheckInterval: 25 * time.Millisecond, SoftOffRetryDelay: time.Hour}
	sim := ipmi.NewSimulator(ipmi.PoweredOff)
	queue := admission.NewQueue(10)
	m := NewMachine(cfg, queue, sim, nil)
	m.SetForwarder(&fakeForwarder{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()

	intent, client := pipeIntent(time.Minute)
	m.SubmitIntent(intent)
	waitFor(t, "enqueue", func() bool { return m.QueueLen() == 1 })

	cancel()

	resp := readResponse(t, client)
	if !strings.HasPrefix(resp, "HTTP/1.1 503") {
		t.Errorf("shutdown response = %q, want 503", resp)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestObserverNotifications(t *testing.T) {
	type record struct {
		from, to State
	}
	var mu sync.Mutex
	var transitions []record
	var failures []admission.Failure

	obs := &recordingObserver{
		onState: func(from, to State, reason string) {
			mu.Lock()
			transitions = append(transitions, record{from, to})
			mu.Unlock()
		},
		onFail: func(intent *admission.Intent, f admission.Failure) {
			mu.Lock()
			failures = append(failures, f)
			mu.Unlock()
		},
	}

	cfg := Config{StartupTimeout: time.Hour, InactivityTimeout: time.Hour, CheckInterval: time.Hour, SoftOffRetryDelay: time.Hour}
	sim := ipmi.NewSimulator(ipmi.PoweredOff)
	m := NewMachine(cfg, admission.NewQueue(1), sim, nil, obs)
	m.SetForwarder(&fakeForwarder{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	m.SubmitIntent(testIntent(time.Minute))
	waitState(t, m, StateStarting)

	overflow, client := pipeIntent(time.Minute)
	m.SubmitIntent(overflow)
	readResponse(t, client)

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) == 0 || transitions[0].from != StateOff || transitions[0].to != StateStarting {
		t.Errorf("unexpected transitions: %v", transitions)
	}
	if len(failures) != 1 || failures[0] != admission.FailureQueueFull {
		t.Errorf("unexpected failures: %v", failures)
	}
}

type recordingObserver struct {
	NopObserver
	onState func(from, to State, reason string)
	onFail  func(intent *admission.Intent, f admission.Failure)
}

func (r *recordingObserver) StateChanged(from, to State, reason string) {
	if r.onState != nil {
		r.onState(from, to, reason)
	}
}

func (r *recordingObserver) IntentFailed(intent *admission.Intent, f admission.Failure) {
	if r.onFail != nil {
		r.onFail(intent, f)
	}
}
