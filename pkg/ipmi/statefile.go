package ipmi

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mercator-hq/smartproxy/pkg/telemetry/logging"
)

// stateRecord is the on-disk JSON shape shared with mock power tools.
type stateRecord struct {
	Power       string  `json:"power"`
	LastUpdated float64 `json:"last_updated"`
}

// StateFile is an Effector backed by a per-host JSON state file, the
// same protocol mock IPMI tools speak. Power verbs rewrite the file;
// queries read it. Watch observes externally made flips through
// fsnotify so a test harness can toggle power behind the proxy's back.
type StateFile struct {
	dir      string
	host     string
	logger   *logging.Logger
	debounce time.Duration

	mu sync.Mutex
}

// NewStateFile creates a state-file Effector rooted at dir for the
// given host. The directory is created if missing.
func NewStateFile(dir, host string, logger *logging.Logger) (*StateFile, error) {
	if dir == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %q: %w", dir, err)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &StateFile{
		dir:      dir,
		host:     host,
		logger:   logger,
		debounce: 100 * time.Millisecond,
	}, nil
}

// Path returns the state file path for this host. Dots in the host are
// replaced with underscores, matching the mock tool's naming.
func (s *StateFile) Path() string {
	return filepath.Join(s.dir, strings.ReplaceAll(s.host, ".", "_")+".json")
}

// QueryPower reads the state file. A missing file means powered off;
// an unreadable or unparseable file is StateUnknown.
func (s *StateFile) QueryPower(ctx context.Context) ObservedState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

func (s *StateFile) readLocked() ObservedState {
	data, err := os.ReadFile(s.Path())
	if os.IsNotExist(err) {
		return PoweredOff
	}
	if err != nil {
		return StateUnknown
	}
	var rec stateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return StateUnknown
	}
	switch rec.Power {
	case "on":
		return PoweredOn
	case "off":
		return PoweredOff
	default:
		return StateUnknown
	}
}

// PowerOn writes the on state.
func (s *StateFile) PowerOn(ctx context.Context) error {
	return s.write("on")
}

// PowerSoft writes the off state.
func (s *StateFile) PowerSoft(ctx context.Context) error {
	return s.write("off")
}

// PowerOff writes the off state.
func (s *StateFile) PowerOff(ctx context.Context) error {
	return s.write("off")
}

func (s *StateFile) write(power string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := stateRecord{
		Power:       power,
		LastUpdated: float64(time.Now().UnixNano()) / float64(time.Second),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := os.WriteFile(s.Path(), data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

// Watch blocks, invoking onChange with the new observed state whenever
// the state file changes on disk. Rapid rewrites are debounced. It
// returns when the context is canceled.
func (s *StateFile) Watch(ctx context.Context, onChange func(ObservedState)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: the mock tool replaces the
	// file on every write, which would drop a file-level watch.
	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("failed to watch state directory %q: %w", s.dir, err)
	}

	s.logger.Info("state file watcher started",
		"path", s.Path(),
		"debounce_ms", s.debounce.Milliseconds(),
	)

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	fire := func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(s.debounce, func() {
			if ctx.Err() != nil {
				return
			}
			s.mu.Lock()
			state := s.readLocked()
			s.mu.Unlock()
			onChange(state)
		})
		timerMu.Unlock()
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	target := s.Path()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("state file watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if event.Name != target {
				continue
			}
			if event.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			s.logger.Debug("state file event", "op", event.Op.String())
			fire()

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			s.logger.Warn("state file watcher error", "error", err.Error())
		}
	}
}
