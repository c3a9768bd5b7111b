// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package tracker persists per-identifier processing state in SQLite.
// The store keeps three tables: processing_tracker (one row per
// identifier, flattened per-source and per-parser columns), tracker_events
// (append-only audit log), and leases (worker ownership with expiry).
//
// All writes flow through ApplyMutation, which runs a caller-supplied
// transition inside a single immediate transaction, rederives the
// downloaded flag, and appends the resulting events atomically with the
// row update.
package tracker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/meshintel/papertrack/internal/state"
	"github.com/meshintel/papertrack/pkg/types"
)

// Store manages the tracker SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the tracker database at cfg.DBPath, creating the
// schema if it does not exist. The connection uses WAL journaling, a busy
// timeout, and immediate transactions so concurrent writers serialize
// instead of failing.
func Open(cfg types.TrackerConfig) (*Store, error) {
	dir := filepath.Dir(cfg.DBPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating tracker directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3",
		cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// allSources is the column-generating source set: every fetchable source
// plus the reserved reconciled pseudo-source.
func allSources() []string {
	return append(types.KnownSources(), types.SourceReconciled)
}

// trackerColumns returns the processing_tracker column list in stable
// order. Scan and upsert helpers rely on this order.
func trackerColumns() []string {
	cols := []string{"id"}
	for _, src := range allSources() {
		cols = append(cols, src+"_attempted", src+"_succeeded")
	}
	cols = append(cols, "downloaded", "download_source", "download_timestamp", "content_ingested")
	for _, p := range types.KnownParsers() {
		cols = append(cols, p+"_status", p+"_timestamp")
	}
	cols = append(cols, "retry_count", "last_error", "last_updated")
	return cols
}

func (s *Store) createSchema() error {
	var defs []string
	defs = append(defs, "id TEXT PRIMARY KEY")
	for _, src := range allSources() {
		defs = append(defs,
			fmt.Sprintf("%s_attempted TEXT NOT NULL DEFAULT 'unknown'", src),
			fmt.Sprintf("%s_succeeded TEXT NOT NULL DEFAULT 'unknown'", src),
		)
	}
	defs = append(defs,
		"downloaded TEXT NOT NULL DEFAULT 'unknown'",
		"download_source TEXT NOT NULL DEFAULT ''",
		"download_timestamp TEXT NOT NULL DEFAULT ''",
		"content_ingested TEXT NOT NULL DEFAULT 'unknown'",
	)
	for _, p := range types.KnownParsers() {
		defs = append(defs,
			fmt.Sprintf("%s_status TEXT NOT NULL DEFAULT 'not_attempted'", p),
			fmt.Sprintf("%s_timestamp TEXT NOT NULL DEFAULT ''", p),
		)
	}
	defs = append(defs,
		"retry_count INTEGER NOT NULL DEFAULT 0",
		"last_error TEXT NOT NULL DEFAULT ''",
		"last_updated TEXT NOT NULL DEFAULT ''",
	)

	statements := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS processing_tracker (%s)", strings.Join(defs, ", ")),
		`CREATE TABLE IF NOT EXISTS tracker_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_id ON tracker_events(id)`,
		`CREATE TABLE IF NOT EXISTS leases (
			id TEXT PRIMARY KEY,
			token TEXT NOT NULL,
			worker_id TEXT NOT NULL,
			acquired_at_ms INTEGER NOT NULL,
			expires_at_ms INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tracker_downloaded ON processing_tracker(downloaded)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord reads one processing_tracker row in trackerColumns order.
func scanRecord(row rowScanner) (types.Record, error) {
	srcs := allSources()
	parsers := types.KnownParsers()

	var (
		id, downloaded, dlSource, dlTS, ingested string
		lastErr, lastUpd                         string
		retry                                    int
	)
	srcVals := make([]string, 2*len(srcs))
	parserVals := make([]string, 2*len(parsers))

	dest := []any{&id}
	for i := range srcs {
		dest = append(dest, &srcVals[2*i], &srcVals[2*i+1])
	}
	dest = append(dest, &downloaded, &dlSource, &dlTS, &ingested)
	for i := range parsers {
		dest = append(dest, &parserVals[2*i], &parserVals[2*i+1])
	}
	dest = append(dest, &retry, &lastErr, &lastUpd)

	if err := row.Scan(dest...); err != nil {
		return types.Record{}, err
	}

	rec := types.Record{
		ID:              id,
		Sources:         make(map[string]types.SourceState, len(srcs)),
		Downloaded:      types.NormalizeTriState(downloaded),
		DownloadSource:  dlSource,
		DownloadTime:    parseTime(dlTS),
		ContentIngested: types.NormalizeTriState(ingested),
		Parsers:         make(map[string]types.ParserState, len(parsers)),
		RetryCount:      retry,
		LastError:       lastErr,
		LastUpdated:     parseTime(lastUpd),
	}
	for i, src := range srcs {
		rec.Sources[src] = types.SourceState{
			Attempted: types.NormalizeTriState(srcVals[2*i]),
			Succeeded: types.NormalizeTriState(srcVals[2*i+1]),
		}
	}
	for i, p := range parsers {
		status := types.ParseStatus(parserVals[2*i])
		if status == "" {
			status = types.ParseNotAttempted
		}
		rec.Parsers[p] = types.ParserState{
			Status:    status,
			Timestamp: parseTime(parserVals[2*i+1]),
		}
	}
	return rec, nil
}

// recordArgs returns the row values in trackerColumns order.
func recordArgs(rec types.Record) []any {
	args := []any{rec.ID}
	for _, src := range allSources() {
		s := rec.Source(src)
		args = append(args, string(s.Attempted), string(s.Succeeded))
	}
	args = append(args,
		string(rec.Downloaded), rec.DownloadSource, formatTime(rec.DownloadTime),
		string(rec.ContentIngested),
	)
	for _, p := range types.KnownParsers() {
		ps := rec.Parser(p)
		args = append(args, string(ps.Status), formatTime(ps.Timestamp))
	}
	args = append(args, rec.RetryCount, rec.LastError, formatTime(rec.LastUpdated))
	return args
}

// Timestamps are stored as RFC3339Nano UTC text; the empty string is the
// zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Get returns the record for id, or the default record when none exists.
// Reading never creates a row.
func (s *Store) Get(ctx context.Context, id string) (types.Record, error) {
	query := fmt.Sprintf("SELECT %s FROM processing_tracker WHERE id = ?",
		strings.Join(trackerColumns(), ", "))
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return types.NewRecord(id), nil
	}
	if err != nil {
		return types.Record{}, fmt.Errorf("reading record %s: %w", id, err)
	}
	return rec, nil
}

// MutationFunc inspects the current record and returns the next record plus
// events to append. Returning an error aborts the transaction with nothing
// persisted. The input is a private copy; a record that was never persisted
// has a zero LastUpdated, which lets mutations detect first contact.
type MutationFunc func(types.Record) (types.Record, []types.Event, error)

// ApplyMutation runs fn against the current record for id inside one
// immediate transaction. The returned record is recomputed (derived
// downloaded flag), stamped with the write time, and upserted together
// with fn's events. When fn leaves the record unchanged and emits no
// events, nothing is written.
//
// Concurrent calls for the same id serialize on the database write lock.
func (s *Store) ApplyMutation(ctx context.Context, id string, fn MutationFunc) (types.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Record{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf("SELECT %s FROM processing_tracker WHERE id = ?",
		strings.Join(trackerColumns(), ", "))
	before, err := scanRecord(tx.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		before = types.NewRecord(id)
	} else if err != nil {
		return types.Record{}, fmt.Errorf("reading record %s: %w", id, err)
	}

	next, events, err := fn(before.Clone())
	if err != nil {
		return types.Record{}, err
	}
	next.ID = id
	next = state.Recompute(next)

	if len(events) == 0 && unchanged(before, next) {
		return before, nil
	}

	now := time.Now().UTC()
	next.LastUpdated = now
	if err := upsertRecord(ctx, tx, next); err != nil {
		return types.Record{}, err
	}
	for _, ev := range events {
		if err := appendEvent(ctx, tx, id, ev, now); err != nil {
			return types.Record{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return types.Record{}, fmt.Errorf("committing mutation for %s: %w", id, err)
	}
	return next, nil
}

// unchanged compares records ignoring the write stamp.
func unchanged(a, b types.Record) bool {
	a.LastUpdated = time.Time{}
	b.LastUpdated = time.Time{}
	return reflect.DeepEqual(a, b)
}

func upsertRecord(ctx context.Context, tx *sql.Tx, rec types.Record) error {
	cols := trackerColumns()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	sets := make([]string, 0, len(cols)-1)
	for _, c := range cols[1:] {
		sets = append(sets, fmt.Sprintf("%s=excluded.%s", c, c))
	}

	query := fmt.Sprintf(
		"INSERT INTO processing_tracker (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s",
		strings.Join(cols, ", "), placeholders, strings.Join(sets, ", "))

	if _, err := tx.ExecContext(ctx, query, recordArgs(rec)...); err != nil {
		return fmt.Errorf("upserting record %s: %w", rec.ID, err)
	}
	return nil
}

func appendEvent(ctx context.Context, tx *sql.Tx, id string, ev types.Event, now time.Time) error {
	ts := ev.Time
	if ts.IsZero() {
		ts = now
	}
	detailJSON := []byte("{}")
	if len(ev.Detail) > 0 {
		detailJSON, _ = json.Marshal(ev.Detail)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO tracker_events (ts, id, event_type, detail) VALUES (?, ?, ?, ?)`,
		ts.UTC().Format(time.RFC3339Nano), id, string(ev.Type), string(detailJSON),
	)
	if err != nil {
		return fmt.Errorf("appending %s event for %s: %w", ev.Type, id, err)
	}
	return nil
}

// Seed creates default records for ids that are not yet tracked, emitting a
// created event per new record. Already-tracked ids are left untouched.
// Returns the number of records created.
func (s *Store) Seed(ctx context.Context, ids []string) (int, error) {
	added := 0
	for _, id := range ids {
		isNew := false
		_, err := s.ApplyMutation(ctx, id, func(rec types.Record) (types.Record, []types.Event, error) {
			if !rec.LastUpdated.IsZero() {
				return rec, nil, nil
			}
			isNew = true
			return rec, []types.Event{{Type: types.EventCreated}}, nil
		})
		if err != nil {
			return added, fmt.Errorf("seeding %s: %w", id, err)
		}
		if isNew {
			added++
		}
	}
	return added, nil
}

// ForceReset returns the record to its default state: all sources unknown,
// parsers not_attempted, retry budget restored. The event log keeps the
// history; a reset event records the reason.
func (s *Store) ForceReset(ctx context.Context, id, reason string) (types.Record, error) {
	return s.ApplyMutation(ctx, id, func(rec types.Record) (types.Record, []types.Event, error) {
		detail := map[string]any{}
		if reason != "" {
			detail["reason"] = reason
		}
		return types.NewRecord(id), []types.Event{{Type: types.EventReset, Detail: detail}}, nil
	})
}

// Events returns entries from the audit log in append order. An empty id
// returns events for all identifiers; limit 0 means no limit.
func (s *Store) Events(ctx context.Context, id string, limit int) ([]types.Event, error) {
	query := `SELECT seq, ts, id, event_type, detail FROM tracker_events`
	var args []any
	if id != "" {
		query += ` WHERE id = ?`
		args = append(args, id)
	}
	query += ` ORDER BY seq`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reading events: %w", err)
	}
	defer rows.Close()

	var events []types.Event
	for rows.Next() {
		var (
			ev         types.Event
			ts, detail string
		)
		if err := rows.Scan(&ev.Seq, &ts, &ev.ID, &ev.Type, &detail); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		ev.Time = parseTime(ts)
		if detail != "" && detail != "{}" {
			json.Unmarshal([]byte(detail), &ev.Detail)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
