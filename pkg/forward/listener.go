package forward

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"mercator-hq/smartproxy/pkg/admission"
	"mercator-hq/smartproxy/pkg/config"
	"mercator-hq/smartproxy/pkg/telemetry/logging"
)

// maxAcceptBackoff caps the retry delay after a transient accept
// error.
const maxAcceptBackoff = time.Second

// IntentSink receives intents built from accepted connections.
type IntentSink interface {
	SubmitIntent(intent *admission.Intent)
}

// ListenerSet binds one TCP listener per port mapping and runs one
// accept loop per listener. Accepted connections are wrapped into
// intents and posted to the sink; the set never reads client bytes.
type ListenerSet struct {
	host           string
	mappings       []config.PortMapping
	requestTimeout time.Duration
	sink           IntentSink
	activity       func()
	logger         *logging.Logger

	mu        sync.Mutex
	listeners []net.Listener
	wg        sync.WaitGroup
	started   bool
}

// NewListenerSet creates a listener set binding host:listen_port for
// each mapping. The activity callback is invoked once per accepted
// connection; pass nil to skip activity stamping.
func NewListenerSet(host string, mappings []config.PortMapping, requestTimeout time.Duration, sink IntentSink, activity func(), logger *logging.Logger) *ListenerSet {
	if logger == nil {
		logger = logging.Discard()
	}
	return &ListenerSet{
		host:           host,
		mappings:       mappings,
		requestTimeout: requestTimeout,
		sink:           sink,
		activity:       activity,
		logger:         logger.With("component", "listener"),
	}
}

// Start binds every mapping and launches the accept loops. If any
// bind fails, listeners bound so far are closed and the error is
// returned; no accept loop runs.
func (s *ListenerSet) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("listener set already started")
	}

	for _, m := range s.mappings {
		ln, err := net.Listen("tcp", net.JoinHostPort(s.host, fmt.Sprintf("%d", m.ListenPort)))
		if err != nil {
			for _, bound := range s.listeners {
				bound.Close()
			}
			s.listeners = nil
			return fmt.Errorf("bind port %d: %w", m.ListenPort, err)
		}
		s.listeners = append(s.listeners, ln)
		s.logger.Info("listening", "listen_port", m.ListenPort, "backend_port", m.BackendPort)
	}

	s.started = true
	for i, ln := range s.listeners {
		m := s.mappings[i]
		s.wg.Add(1)
		go s.acceptLoop(ln, m)
	}
	return nil
}

// Close stops all listeners and waits for the accept loops to exit.
// In-flight connections already handed to the sink are unaffected.
func (s *ListenerSet) Close() {
	s.mu.Lock()
	for _, ln := range s.listeners {
		ln.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Addrs returns the bound listener addresses. Useful when mappings
// use port 0.
func (s *ListenerSet) Addrs() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	addrs := make([]net.Addr, 0, len(s.listeners))
	for _, ln := range s.listeners {
		addrs = append(addrs, ln.Addr())
	}
	return addrs
}

func (s *ListenerSet) acceptLoop(ln net.Listener, m config.PortMapping) {
	defer s.wg.Done()

	backoff := time.Duration(0)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff *= 2
				if backoff > maxAcceptBackoff {
					backoff = maxAcceptBackoff
				}
			}
			s.logger.Warn("accept failed",
				"listen_port", m.ListenPort,
				"error", err,
				"retry_in", backoff.String(),
			)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		intent := admission.NewIntent(conn, m.ListenPort, m.BackendPort, s.requestTimeout)
		s.logger.Debug("accepted connection",
			"intent_id", intent.ID,
			"remote_addr", conn.RemoteAddr().String(),
			"listen_port", m.ListenPort,
		)
		if s.activity != nil {
			s.activity()
		}
		s.sink.SubmitIntent(intent)
	}
}
