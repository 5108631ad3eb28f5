// Package sqlite implements a driver backed by a single SQLite table.
//
// Each key is one row holding the value, the absolute expiry (unix nanoseconds,
// 0 = never) and the msgpack-encoded tag list. New works on any *sql.DB whose
// dialect accepts SQLite's upsert syntax; Open opens a database file through
// the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"

	"github.com/unkn0wn-root/cachepool/driver"
	"github.com/unkn0wn-root/cachepool/hooks"
	"github.com/unkn0wn-root/cachepool/internal/util"
	"github.com/unkn0wn-root/cachepool/log"
)

const (
	name         = "sqlite"
	defaultTable = "cachepool"
	// chunk bounds IN (...) lists below SQLite's host parameter limit.
	chunk = 500
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Compile-time check that Driver implements driver.Driver.
var _ driver.Driver = (*Driver)(nil)

type Options struct {
	Table      string // "" => "cachepool"
	DefaultTTL time.Duration
	Logger     log.Logger
	Hooks      hooks.Hooks
	Clock      driver.Clock
}

type Driver struct {
	db         *sql.DB
	ownsDB     bool
	table      string
	defaultTTL time.Duration
	log        log.Logger
	hooks      hooks.Hooks
	clock      driver.Clock

	qGet, qUpsert, qDelete string
}

// Open opens (or creates) the database at path and returns a driver that owns it.
// Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string, opts Options) (*Driver, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite driver: open %s: %w", path, err)
	}
	// One connection serializes writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)
	d, err := New(ctx, db, opts)
	if err != nil {
		db.Close()
		return nil, err
	}
	d.ownsDB = true
	return d, nil
}

// New creates the table and index when missing. The caller keeps ownership of db.
func New(ctx context.Context, db *sql.DB, opts Options) (*Driver, error) {
	if db == nil {
		return nil, &driver.ConfigError{Component: "sqlite driver", Reason: "db is required"}
	}
	table := util.Coalesce(opts.Table, defaultTable)
	if !tableName.MatchString(table) {
		return nil, &driver.ConfigError{Component: "sqlite driver", Reason: fmt.Sprintf("invalid table name %q", table)}
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + table + ` (
			key    TEXT PRIMARY KEY,
			value  BLOB NOT NULL,
			expiry INTEGER NOT NULL DEFAULT 0,
			tags   BLOB
		)`,
		`CREATE INDEX IF NOT EXISTS ` + table + `_expiry ON ` + table + ` (expiry)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return nil, fmt.Errorf("sqlite driver: create schema: %w", err)
		}
	}

	return &Driver{
		db:         db,
		table:      table,
		defaultTTL: opts.DefaultTTL,
		log:        log.OrNop(opts.Logger),
		hooks:      hooks.OrNop(opts.Hooks),
		clock:      opts.Clock,
		qGet:       `SELECT value, expiry, tags FROM ` + table + ` WHERE key = ?`,
		qUpsert: `INSERT INTO ` + table + ` (key, value, expiry, tags) VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, expiry = excluded.expiry, tags = excluded.tags`,
		qDelete: `DELETE FROM ` + table + ` WHERE key = ?`,
	}, nil
}

// row converts stored columns into an entry. ok is false for undecodable tags.
func row(key string, value []byte, expiry int64, rawTags []byte) (driver.Entry, bool) {
	e := driver.Entry{Key: key, Value: value}
	if e.Value == nil {
		e.Value = []byte{}
	}
	if expiry > 0 {
		e.Expiry = time.Unix(0, expiry)
	}
	if len(rawTags) > 0 {
		if err := msgpack.Unmarshal(rawTags, &e.Tags); err != nil {
			return driver.Entry{}, false
		}
	}
	return e, true
}

func (d *Driver) Get(ctx context.Context, key string) driver.Entry {
	if key == "" {
		return driver.Entry{}
	}
	var (
		value   []byte
		expiry  int64
		rawTags []byte
	)
	err := d.db.QueryRowContext(ctx, d.qGet, key).Scan(&value, &expiry, &rawTags)
	if err == sql.ErrNoRows {
		return driver.Entry{}
	}
	if err != nil {
		d.log.Warn("sqlite get failed; treating as miss", log.Fields{"key": key, "err": err})
		return driver.Entry{}
	}
	e, ok := row(key, value, expiry, rawTags)
	if !ok {
		d.Delete(ctx, key)
		d.hooks.CorruptEntry(name, key, "tags")
		return driver.Entry{}
	}
	if !e.IsHit(d.clock.Now()) {
		d.Delete(ctx, key)
		return driver.Entry{}
	}
	return e
}

func (d *Driver) Has(ctx context.Context, key string) bool {
	return d.Get(ctx, key).Value != nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// write applies one item through x (the db or a transaction).
func (d *Driver) write(ctx context.Context, x execer, it driver.Item) error {
	if it.IsDelete() {
		_, err := x.ExecContext(ctx, d.qDelete, it.Key)
		return err
	}
	var expiry int64
	if exp := driver.ExpiryFor(d.clock.Now(), it.TTL, d.defaultTTL); !exp.IsZero() {
		expiry = exp.UnixNano()
	}
	var rawTags []byte
	if len(it.Tags) > 0 {
		b, err := msgpack.Marshal(it.Tags)
		if err != nil {
			return err
		}
		rawTags = b
	}
	_, err := x.ExecContext(ctx, d.qUpsert, it.Key, it.Value, expiry, rawTags)
	return err
}

func (d *Driver) Set(ctx context.Context, it driver.Item) bool {
	if it.Key == "" {
		return false
	}
	if err := d.write(ctx, d.db, it); err != nil {
		d.log.Warn("sqlite set failed", log.Fields{"key": it.Key, "err": err})
		d.hooks.WriteRejected(name, it.Key)
		return false
	}
	return true
}

func (d *Driver) Delete(ctx context.Context, key string) bool {
	if _, err := d.db.ExecContext(ctx, d.qDelete, key); err != nil {
		d.log.Warn("sqlite delete failed", log.Fields{"key": key, "err": err})
		return false
	}
	return true
}

func (d *Driver) Clear(ctx context.Context) bool {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM `+d.table); err != nil {
		d.log.Error("sqlite clear failed", log.Fields{"table": d.table, "err": err})
		return false
	}
	return true
}

func (d *Driver) Purge(ctx context.Context) bool {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM `+d.table+` WHERE expiry > 0 AND expiry <= ?`, d.clock.Now().UnixNano())
	if err != nil {
		d.log.Warn("sqlite purge failed", log.Fields{"table": d.table, "err": err})
		return false
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		d.log.Debug("sqlite driver purged expired rows", log.Fields{"removed": n})
	}
	return true
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func args(keys []string) []any {
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out
}

func (d *Driver) GetMany(ctx context.Context, keys []string) map[string]driver.Entry {
	uniq := util.UniqSorted(keys)
	out := make(map[string]driver.Entry, len(uniq))
	now := d.clock.Now()
	var stale []string
	for start := 0; start < len(uniq); start += chunk {
		part := uniq[start:min(start+chunk, len(uniq))]
		rows, err := d.db.QueryContext(ctx,
			`SELECT key, value, expiry, tags FROM `+d.table+` WHERE key IN (`+placeholders(len(part))+`)`,
			args(part)...)
		if err != nil {
			d.log.Warn("sqlite batch get failed; treating as misses", log.Fields{"count": len(part), "err": err})
			continue
		}
		for rows.Next() {
			var (
				key     string
				value   []byte
				expiry  int64
				rawTags []byte
			)
			if err := rows.Scan(&key, &value, &expiry, &rawTags); err != nil {
				d.log.Warn("sqlite batch scan failed", log.Fields{"err": err})
				break
			}
			e, ok := row(key, value, expiry, rawTags)
			if !ok {
				d.hooks.CorruptEntry(name, key, "tags")
				stale = append(stale, key)
				continue
			}
			if !e.IsHit(now) {
				stale = append(stale, key)
				continue
			}
			out[key] = e
		}
		if err := rows.Err(); err != nil {
			d.log.Warn("sqlite batch get interrupted", log.Fields{"err": err})
		}
		rows.Close()
	}
	if len(stale) > 0 {
		d.DeleteMany(ctx, stale)
	}
	return out
}

// SetMany applies every item in one transaction.
func (d *Driver) SetMany(ctx context.Context, items []driver.Item) bool {
	if len(items) == 0 {
		return true
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		d.log.Warn("sqlite begin failed", log.Fields{"err": err})
		return false
	}
	ok := true
	for _, it := range items {
		if it.Key == "" {
			ok = false
			continue
		}
		if err := d.write(ctx, tx, it); err != nil {
			_ = tx.Rollback()
			d.log.Warn("sqlite batch set failed; rolled back", log.Fields{"key": it.Key, "count": len(items), "err": err})
			d.hooks.WriteRejected(name, it.Key)
			return false
		}
	}
	if err := tx.Commit(); err != nil {
		d.log.Warn("sqlite commit failed", log.Fields{"count": len(items), "err": err})
		return false
	}
	return ok
}

func (d *Driver) DeleteMany(ctx context.Context, keys []string) bool {
	uniq := util.UniqSorted(keys)
	ok := true
	for start := 0; start < len(uniq); start += chunk {
		part := uniq[start:min(start+chunk, len(uniq))]
		_, err := d.db.ExecContext(ctx,
			`DELETE FROM `+d.table+` WHERE key IN (`+placeholders(len(part))+`)`, args(part)...)
		if err != nil {
			d.log.Warn("sqlite batch delete failed", log.Fields{"count": len(part), "err": err})
			ok = false
		}
	}
	return ok
}

// Close closes the database only when it was opened by Open.
func (d *Driver) Close(context.Context) error {
	if d.ownsDB {
		return d.db.Close()
	}
	return nil
}
