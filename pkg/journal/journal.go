package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"mercator-hq/smartproxy/pkg/admission"
	"mercator-hq/smartproxy/pkg/config"
	"mercator-hq/smartproxy/pkg/lifecycle"
	"mercator-hq/smartproxy/pkg/telemetry/logging"
)

// eventBuffer bounds the channel between observer callbacks and the
// writer goroutine.
const eventBuffer = 256

type recordKind int

const (
	recTransition recordKind = iota
	recIntent
	recPower
)

type record struct {
	kind       recordKind
	occurredAt time.Time

	fromState string
	toState   string
	reason    string

	intentID    string
	listenPort  uint16
	backendPort uint16
	outcome     string
	waitMS      int64

	verb     string
	errText  string
	hadError bool
}

// Journal is the SQLite-backed event journal. It implements
// lifecycle.Observer.
type Journal struct {
	db     *sql.DB
	cfg    config.JournalConfig
	logger *logging.Logger

	events  chan record
	done    chan struct{}
	started atomic.Bool
	dropped atomic.Int64
}

var _ lifecycle.Observer = (*Journal)(nil)

// Open creates or opens the journal database, applies the schema, and
// enables WAL mode.
func Open(cfg config.JournalConfig, logger *logging.Logger) (*Journal, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.With("component", "journal")

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}
	// SQLite allows one writer; more connections only cause lock
	// contention.
	db.SetMaxOpenConns(1)

	j := &Journal{
		db:     db,
		cfg:    cfg,
		logger: logger,
		events: make(chan record, eventBuffer),
		done:   make(chan struct{}),
	}
	if err := j.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("journal opened", "path", cfg.Path, "retention_days", cfg.RetentionDays)
	return j, nil
}

func (j *Journal) initialize() error {
	if _, err := j.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := j.db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := j.db.Exec(Schema); err != nil {
		return fmt.Errorf("create journal schema: %w", err)
	}
	if _, err := j.db.Exec("INSERT OR IGNORE INTO schema_version (version) VALUES (?)", SchemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	var version int
	if err := j.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != SchemaVersion {
		return fmt.Errorf("journal schema version mismatch: have %d, want %d", version, SchemaVersion)
	}
	return nil
}

// Run drains the event channel into the database until the context is
// canceled, then flushes whatever is still buffered.
func (j *Journal) Run(ctx context.Context) {
	j.started.Store(true)
	defer close(j.done)
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case rec := <-j.events:
					j.insert(rec)
				default:
					return
				}
			}
		case rec := <-j.events:
			j.insert(rec)
		}
	}
}

// Close waits for the writer goroutine to flush and closes the
// database. Call after the Run context is canceled.
func (j *Journal) Close() error {
	if j.started.Load() {
		<-j.done
	}
	if n := j.dropped.Load(); n > 0 {
		j.logger.Warn("journal records dropped under load", "count", n)
	}
	return j.db.Close()
}

// Dropped returns the number of records discarded because the event
// buffer was full.
func (j *Journal) Dropped() int64 {
	return j.dropped.Load()
}

func (j *Journal) post(rec record) {
	rec.occurredAt = time.Now()
	select {
	case j.events <- rec:
	default:
		j.dropped.Add(1)
	}
}

// StateChanged implements lifecycle.Observer.
func (j *Journal) StateChanged(from, to lifecycle.State, reason string) {
	j.post(record{kind: recTransition, fromState: from.String(), toState: to.String(), reason: reason})
}

// IntentAdmitted implements lifecycle.Observer.
func (j *Journal) IntentAdmitted(intent *admission.Intent, queueLen int) {
	j.post(record{
		kind:        recIntent,
		intentID:    intent.ID,
		listenPort:  intent.ListenPort,
		backendPort: intent.BackendPort,
		outcome:     "admitted",
	})
}

// IntentReleased implements lifecycle.Observer.
func (j *Journal) IntentReleased(intent *admission.Intent) {
	j.post(record{
		kind:        recIntent,
		intentID:    intent.ID,
		listenPort:  intent.ListenPort,
		backendPort: intent.BackendPort,
		outcome:     "released",
		waitMS:      time.Since(intent.EnqueuedAt).Milliseconds(),
	})
}

// IntentFailed implements lifecycle.Observer.
func (j *Journal) IntentFailed(intent *admission.Intent, failure admission.Failure) {
	j.post(record{
		kind:        recIntent,
		intentID:    intent.ID,
		listenPort:  intent.ListenPort,
		backendPort: intent.BackendPort,
		outcome:     "failed",
		reason:      failure.String(),
		waitMS:      time.Since(intent.EnqueuedAt).Milliseconds(),
	})
}

// PowerCommand implements lifecycle.Observer.
func (j *Journal) PowerCommand(verb string, err error) {
	rec := record{kind: recPower, verb: verb, outcome: "ok"}
	if err != nil {
		rec.outcome = "error"
		rec.errText = err.Error()
		rec.hadError = true
	}
	j.post(rec)
}

func (j *Journal) insert(rec record) {
	ts := rec.occurredAt.UnixMilli()
	var err error
	switch rec.kind {
	case recTransition:
		_, err = j.db.Exec(
			"INSERT INTO transitions (occurred_at, from_state, to_state, reason) VALUES (?, ?, ?, ?)",
			ts, rec.fromState, rec.toState, rec.reason,
		)
	case recIntent:
		_, err = j.db.Exec(
			"INSERT INTO intents (occurred_at, intent_id, listen_port, backend_port, outcome, reason, wait_ms) VALUES (?, ?, ?, ?, ?, ?, ?)",
			ts, rec.intentID, rec.listenPort, rec.backendPort, rec.outcome, rec.reason, rec.waitMS,
		)
	case recPower:
		_, err = j.db.Exec(
			"INSERT INTO power_commands (occurred_at, verb, outcome, error) VALUES (?, ?, ?, ?)",
			ts, rec.verb, rec.outcome, rec.errText,
		)
	}
	if err != nil {
		j.logger.Error("journal insert failed", "error", err)
	}
}

// Prune deletes records older than the retention window. A zero
// retention keeps records forever.
func (j *Journal) Prune(ctx context.Context) (int64, error) {
	if j.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -j.cfg.RetentionDays).UnixMilli()

	var total int64
	for _, table := range []string{"transitions", "intents", "power_commands"} {
		res, err := j.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE occurred_at < ?", cutoff)
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// TransitionRecord is a journaled state transition.
type TransitionRecord struct {
	OccurredAt time.Time
	From       string
	To         string
	Reason     string
}

// RecentTransitions returns the newest transitions, most recent
// first.
func (j *Journal) RecentTransitions(ctx context.Context, limit int) ([]TransitionRecord, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT occurred_at, from_state, to_state, reason FROM transitions ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var records []TransitionRecord
	for rows.Next() {
		var rec TransitionRecord
		var ts int64
		if err := rows.Scan(&ts, &rec.From, &rec.To, &rec.Reason); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		rec.OccurredAt = time.UnixMilli(ts)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// IntentRecord is a journaled admission outcome.
type IntentRecord struct {
	OccurredAt  time.Time
	IntentID    string
	ListenPort  uint16
	BackendPort uint16
	Outcome     string
	Reason      string
	WaitMS      int64
}

// RecentIntents returns the newest intent outcomes, most recent
// first.
func (j *Journal) RecentIntents(ctx context.Context, limit int) ([]IntentRecord, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT occurred_at, intent_id, listen_port, backend_port, outcome, reason, wait_ms FROM intents ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query intents: %w", err)
	}
	defer rows.Close()

	var records []IntentRecord
	for rows.Next() {
		var rec IntentRecord
		var ts int64
		if err := rows.Scan(&ts, &rec.IntentID, &rec.ListenPort, &rec.BackendPort, &rec.Outcome, &rec.Reason, &rec.WaitMS); err != nil {
			return nil, fmt.Errorf("scan intent: %w", err)
		}
		rec.OccurredAt = time.UnixMilli(ts)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Ping verifies the database is reachable. Used as a readiness check.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}
