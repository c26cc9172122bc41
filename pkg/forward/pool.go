package forward

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"mercator-hq/smartproxy/pkg/admission"
	"mercator-hq/smartproxy/pkg/idle"
	"mercator-hq/smartproxy/pkg/telemetry/logging"
)

// DefaultDialTimeout bounds a single backend dial attempt. The
// effective timeout is the smaller of this and the intent's remaining
// deadline.
const DefaultDialTimeout = 5 * time.Second

// DialFailureReporter is notified when a released intent could not
// reach the backend. The lifecycle machine implements it.
type DialFailureReporter interface {
	ReportDialFailure(intent *admission.Intent)
}

// PoolConfig configures a forwarder pool.
type PoolConfig struct {
	// BackendHost is the host the pool dials.
	BackendHost string

	// DialTimeout bounds a single dial attempt. Zero means
	// DefaultDialTimeout.
	DialTimeout time.Duration

	// Accountant is stamped on first byte per direction and on
	// connection close. May be nil.
	Accountant *idle.Accountant

	// Reporter receives dial failures. Required.
	Reporter DialFailureReporter

	// Logger may be nil.
	Logger *logging.Logger
}

// Pool forwards released intents to the backend. Each intent gets one
// dial attempt and, on success, a bidirectional splice with TCP
// half-close semantics.
type Pool struct {
	cfg    PoolConfig
	logger *logging.Logger

	mu     sync.Mutex
	active map[*link]struct{}
	wg     sync.WaitGroup

	// bytes counters are read by telemetry.
	onBytes func(direction string, n int64)
}

type link struct {
	client  net.Conn
	backend net.Conn
}

// NewPool creates a forwarder pool.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Pool{
		cfg:    cfg,
		logger: logger.With("component", "forwarder"),
		active: make(map[*link]struct{}),
	}
}

// SetBytesHook registers a callback invoked with the byte count of
// each finished copy direction ("in" is client to backend, "out" is
// backend to client). Must be set before the first Forward.
func (p *Pool) SetBytesHook(fn func(direction string, n int64)) {
	p.onBytes = fn
}

// ActiveCount returns the number of live splices.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// Forward takes ownership of a released intent and services it on its
// own goroutine. Dial failures are handed to the reporter together
// with the still-open client socket.
func (p *Pool) Forward(intent *admission.Intent) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(intent)
	}()
}

// CloseAll force-closes every live splice. Pumps observe the close
// and wind down on their own goroutines.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	links := make([]*link, 0, len(p.active))
	for l := range p.active {
		links = append(links, l)
	}
	p.mu.Unlock()

	for _, l := range links {
		l.client.Close()
		l.backend.Close()
	}
	if len(links) > 0 {
		p.logger.Info("closed active connections", "count", len(links))
	}
}

// Drain waits for in-flight splices to finish. When the context
// expires first, remaining splices are force-closed and Drain keeps
// waiting for their pumps to exit.
func (p *Pool) Drain(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		p.CloseAll()
		<-done
	}
}

func (p *Pool) run(intent *admission.Intent) {
	now := time.Now()
	remaining := intent.Remaining(now)
	if remaining <= 0 {
		p.cfg.Reporter.ReportDialFailure(intent)
		return
	}
	timeout := p.cfg.DialTimeout
	if remaining < timeout {
		timeout = remaining
	}

	addr := net.JoinHostPort(p.cfg.BackendHost, fmt.Sprintf("%d", intent.BackendPort))
	dialer := net.Dialer{Timeout: timeout}
	backend, err := dialer.Dial("tcp", addr)
	if err != nil {
		p.logger.Warn("backend dial failed",
			"intent_id", intent.ID,
			"backend_addr", addr,
			"error", err,
		)
		p.cfg.Reporter.ReportDialFailure(intent)
		return
	}

	l := &link{client: intent.Conn, backend: backend}
	p.mu.Lock()
	p.active[l] = struct{}{}
	p.mu.Unlock()

	p.touch()
	p.logger.Debug("splice established",
		"intent_id", intent.ID,
		"remote_addr", intent.Conn.RemoteAddr().String(),
		"backend_addr", addr,
		"queued_for", now.Sub(intent.EnqueuedAt).String(),
	)

	var inner sync.WaitGroup
	inner.Add(2)
	var inBytes, outBytes int64
	go func() {
		defer inner.Done()
		inBytes = p.pump(l.backend, l.client)
	}()
	go func() {
		defer inner.Done()
		outBytes = p.pump(l.client, l.backend)
	}()
	inner.Wait()

	l.client.Close()
	l.backend.Close()

	p.mu.Lock()
	delete(p.active, l)
	p.mu.Unlock()

	p.touch()
	if p.onBytes != nil {
		p.onBytes("in", inBytes)
		p.onBytes("out", outBytes)
	}
	p.logger.Debug("splice closed",
		"intent_id", intent.ID,
		"bytes_in", inBytes,
		"bytes_out", outBytes,
	)
}

// pump copies src to dst until EOF or error, stamping the accountant
// on the first byte, then half-closes the write side of dst so the
// peer sees EOF while the opposite direction keeps flowing.
func (p *Pool) pump(dst, src net.Conn) int64 {
	var total int64
	first := true
	buf := make([]byte, 32*1024)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if first {
				first = false
				p.touch()
			}
			total += int64(n)
			if _, werr := dst.Write(buf[:n]); werr != nil {
				break
			}
		}
		if rerr != nil {
			break
		}
	}
	closeWriteSide(dst)
	closeReadSide(src)
	return total
}

func (p *Pool) touch() {
	if p.cfg.Accountant != nil {
		p.cfg.Accountant.Touch()
	}
}

func closeWriteSide(c net.Conn) {
	if hc, ok := c.(interface{ CloseWrite() error }); ok {
		hc.CloseWrite()
		return
	}
	// No half-close support; a full close still unblocks the peer.
	c.Close()
}

func closeReadSide(c net.Conn) {
	if hc, ok := c.(interface{ CloseRead() error }); ok {
		hc.CloseRead()
	}
}
