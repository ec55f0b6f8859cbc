// Package sqlstore keeps remote records in a SQLite file so several
// crewclock processes can share one record store.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/balkashynov/crewclock/internal/remote"
)

const schema = `
CREATE TABLE IF NOT EXISTS zones (
	name       TEXT PRIMARY KEY,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
	zone        TEXT NOT NULL,
	id          TEXT NOT NULL,
	type        TEXT NOT NULL,
	change_tag  TEXT NOT NULL,
	fields      TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	modified_at TEXT NOT NULL,
	PRIMARY KEY (zone, id)
);

CREATE INDEX IF NOT EXISTS idx_records_type ON records(zone, type);

CREATE TABLE IF NOT EXISTS record_refs (
	zone      TEXT NOT NULL,
	child_id  TEXT NOT NULL,
	parent_id TEXT NOT NULL,
	PRIMARY KEY (zone, child_id, parent_id)
);

CREATE INDEX IF NOT EXISTS idx_record_refs_parent ON record_refs(zone, parent_id);
`

// Store is a remote.Backend on SQLite
type Store struct {
	conn *sql.DB
	path string
	now  func() time.Time
}

var _ remote.Backend = (*Store)(nil)

// Open creates or opens the store at path and applies the schema
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	// one writer at a time keeps SQLITE_BUSY out of multi-statement writes
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping record store: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to apply record store schema: %w", err)
	}
	return &Store{conn: conn, path: path, now: time.Now}, nil
}

// Path returns the database file
func (s *Store) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the database
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	_, _ = s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *Store) FetchZone(ctx context.Context, zone string) error {
	return zoneExists(ctx, s.conn, zone)
}

func (s *Store) CreateZone(ctx context.Context, zone string) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO zones (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		zone, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("create zone %s: %w", zone, err)
	}
	return nil
}

func (s *Store) DeleteZone(ctx context.Context, zone string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := zoneExists(ctx, tx, zone); err != nil {
			return err
		}
		for _, stmt := range []string{
			`DELETE FROM record_refs WHERE zone = ?`,
			`DELETE FROM records WHERE zone = ?`,
			`DELETE FROM zones WHERE name = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, zone); err != nil {
				return fmt.Errorf("delete zone %s: %w", zone, err)
			}
		}
		return nil
	})
}

func (s *Store) Lookup(ctx context.Context, zone string, ids []string) ([]remote.Record, error) {
	if err := zoneExists(ctx, s.conn, zone); err != nil {
		return nil, err
	}
	t := &table{ctx: ctx, q: s.conn, zone: zone}
	out := make([]remote.Record, 0, len(ids))
	for _, id := range ids {
		rec, found, err := t.Get(id)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("%s: %w", id, remote.ErrRecordNotFound)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Modify runs the request in one transaction. An atomic rejection rolls
// everything back; a partial non-atomic batch commits what succeeded.
func (s *Store) Modify(ctx context.Context, zone string, req remote.ModifyRequest) (remote.ModifyResult, error) {
	var res remote.ModifyResult
	var partial error
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := zoneExists(ctx, tx, zone); err != nil {
			return err
		}
		var err error
		res, err = remote.ApplyModify(&table{ctx: ctx, q: tx, zone: zone}, req, s.now().UTC())
		if errors.Is(err, remote.ErrPartialBatch) {
			partial = err
			return nil
		}
		return err
	})
	if err != nil {
		return remote.ModifyResult{}, err
	}
	return res, partial
}

func (s *Store) Query(ctx context.Context, zone string, q remote.Query) ([]remote.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := zoneExists(ctx, s.conn, zone); err != nil {
		return nil, err
	}
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, type, change_tag, fields, created_at, modified_at
		 FROM records WHERE zone = ? AND type = ?`, zone, q.Type)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Type, err)
	}
	defer rows.Close()

	var candidates []remote.Record
	for rows.Next() {
		var rec remote.Record
		var fields, created, modified string
		if err := rows.Scan(&rec.ID, &rec.Type, &rec.ChangeTag, &fields, &created, &modified); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if err := decodeRow(&rec, fields, created, modified); err != nil {
			return nil, err
		}
		candidates = append(candidates, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Type, err)
	}
	return q.Apply(candidates), nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func zoneExists(ctx context.Context, q querier, zone string) error {
	var name string
	err := q.QueryRowContext(ctx, `SELECT name FROM zones WHERE name = ?`, zone).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("zone %s: %w", zone, remote.ErrNamespaceMissing)
	}
	if err != nil {
		return fmt.Errorf("fetch zone %s: %w", zone, err)
	}
	return nil
}

// table adapts one zone to remote.Table
type table struct {
	ctx  context.Context
	q    querier
	zone string
}

func (t *table) Get(id string) (remote.Record, bool, error) {
	rec := remote.Record{ID: id}
	var fields, created, modified string
	err := t.q.QueryRowContext(t.ctx,
		`SELECT type, change_tag, fields, created_at, modified_at
		 FROM records WHERE zone = ? AND id = ?`, t.zone, id).
		Scan(&rec.Type, &rec.ChangeTag, &fields, &created, &modified)
	if errors.Is(err, sql.ErrNoRows) {
		return remote.Record{}, false, nil
	}
	if err != nil {
		return remote.Record{}, false, fmt.Errorf("get record %s: %w", id, err)
	}
	if err := decodeRow(&rec, fields, created, modified); err != nil {
		return remote.Record{}, false, err
	}
	return rec, true, nil
}

func (t *table) Put(rec remote.Record) error {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.ID, remote.ErrEncoding)
	}
	_, err = t.q.ExecContext(t.ctx, `
		INSERT INTO records (zone, id, type, change_tag, fields, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(zone, id) DO UPDATE SET
			type = excluded.type,
			change_tag = excluded.change_tag,
			fields = excluded.fields,
			modified_at = excluded.modified_at`,
		t.zone, rec.ID, rec.Type, rec.ChangeTag, string(fields),
		formatTime(rec.CreatedAt), formatTime(rec.ModifiedAt))
	if err != nil {
		return fmt.Errorf("put record %s: %w", rec.ID, err)
	}

	if _, err := t.q.ExecContext(t.ctx,
		`DELETE FROM record_refs WHERE zone = ? AND child_id = ?`, t.zone, rec.ID); err != nil {
		return fmt.Errorf("clear refs of %s: %w", rec.ID, err)
	}
	for _, parent := range rec.Parents() {
		if _, err := t.q.ExecContext(t.ctx,
			`INSERT OR IGNORE INTO record_refs (zone, child_id, parent_id) VALUES (?, ?, ?)`,
			t.zone, rec.ID, parent); err != nil {
			return fmt.Errorf("add ref %s -> %s: %w", rec.ID, parent, err)
		}
	}
	return nil
}

func (t *table) Remove(id string) error {
	if _, err := t.q.ExecContext(t.ctx,
		`DELETE FROM records WHERE zone = ? AND id = ?`, t.zone, id); err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	if _, err := t.q.ExecContext(t.ctx,
		`DELETE FROM record_refs WHERE zone = ? AND child_id = ?`, t.zone, id); err != nil {
		return fmt.Errorf("delete refs of %s: %w", id, err)
	}
	return nil
}

func (t *table) Children(id string) ([]string, error) {
	rows, err := t.q.QueryContext(t.ctx,
		`SELECT child_id FROM record_refs WHERE zone = ? AND parent_id = ? ORDER BY child_id`, t.zone, id)
	if err != nil {
		return nil, fmt.Errorf("children of %s: %w", id, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var child string
		if err := rows.Scan(&child); err != nil {
			return nil, err
		}
		out = append(out, child)
	}
	return out, rows.Err()
}

func decodeRow(rec *remote.Record, fields, created, modified string) error {
	if err := json.Unmarshal([]byte(fields), &rec.Fields); err != nil {
		return fmt.Errorf("decode record %s: %w", rec.ID, remote.ErrEncoding)
	}
	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return fmt.Errorf("decode record %s created_at: %w", rec.ID, remote.ErrEncoding)
	}
	if rec.ModifiedAt, err = time.Parse(time.RFC3339Nano, modified); err != nil {
		return fmt.Errorf("decode record %s modified_at: %w", rec.ID, remote.ErrEncoding)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
