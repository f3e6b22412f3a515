// Package sqlite implements storage.Engine on top of an embedded,
// pure-Go SQLite (github.com/ncruces/go-sqlite3, wazero-based, no cgo).
// Column families are modelled as sibling tables sharing a single
// (key BLOB PRIMARY KEY, value BLOB) shape, created lazily on open.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/agentmemory/memd/internal/merrors"
	"github.com/agentmemory/memd/internal/storage"
)

// Engine is the sqlite-backed storage.Engine.
type Engine struct {
	db *sql.DB
}

var _ storage.Engine = (*Engine)(nil)

// Open opens (creating if needed) the sqlite database at path, and lazily
// creates every column family's table so old databases keep working as
// new column families are introduced.
func Open(ctx context.Context, path string) (*Engine, error) {
	db, err := sql.Open("sqlite3", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, merrors.Wrap(merrors.Storage, "sqlite.Open", err)
	}
	db.SetMaxOpenConns(1) // single writer; sqlite serialises at the file level anyway

	e := &Engine{db: db}
	if err := e.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return e, nil
}

func tableName(cf string) string {
	return "cf_" + cf
}

func (e *Engine) migrate(ctx context.Context) error {
	for _, cf := range storage.AllColumnFamilies {
		stmt := fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (key BLOB PRIMARY KEY, value BLOB NOT NULL)`,
			tableName(cf))
		if _, err := e.db.ExecContext(ctx, stmt); err != nil {
			return merrors.Wrap(merrors.Storage, "sqlite.migrate", err)
		}
	}
	return nil
}

func (e *Engine) Put(cf string, key, value []byte) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, tableName(cf))
	_, err := e.db.Exec(stmt, key, value)
	return merrors.WrapDB("sqlite.Put", err)
}

func (e *Engine) Get(cf string, key []byte) ([]byte, bool, error) {
	stmt := fmt.Sprintf(`SELECT value FROM %s WHERE key = ?`, tableName(cf))
	var value []byte
	err := e.db.QueryRow(stmt, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, merrors.WrapDB("sqlite.Get", err)
	}
	return value, true, nil
}

func (e *Engine) Delete(cf string, key []byte) error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, tableName(cf))
	_, err := e.db.Exec(stmt, key)
	return merrors.WrapDB("sqlite.Delete", err)
}

func (e *Engine) ScanPrefix(cf string, prefix []byte, fn storage.ScanFunc) error {
	upper := prefixUpperBound(prefix)
	return e.scan(cf, prefix, upper, fn)
}

func (e *Engine) ScanRange(cf string, start, end []byte, fn storage.ScanFunc) error {
	return e.scan(cf, start, end, fn)
}

// prefixUpperBound returns the smallest key that is strictly greater than
// every key starting with prefix, or nil if prefix is all 0xFF bytes (scan
// to the end of the keyspace).
func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] != 0xFF {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}

func (e *Engine) scan(cf string, start, end []byte, fn storage.ScanFunc) error {
	var rows *sql.Rows
	var err error
	table := tableName(cf)
	switch {
	case start == nil && end == nil:
		rows, err = e.db.Query(fmt.Sprintf(`SELECT key, value FROM %s ORDER BY key ASC`, table))
	case end == nil:
		rows, err = e.db.Query(fmt.Sprintf(`SELECT key, value FROM %s WHERE key >= ? ORDER BY key ASC`, table), start)
	default:
		rows, err = e.db.Query(fmt.Sprintf(`SELECT key, value FROM %s WHERE key >= ? AND key < ? ORDER BY key ASC`, table), start, end)
	}
	if err != nil {
		return merrors.WrapDB("sqlite.scan", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return merrors.WrapDB("sqlite.scan", err)
		}
		cont, err := fn(key, value)
		if err != nil {
			return err
		}
		if !cont {
			break
		}
	}
	return merrors.WrapDB("sqlite.scan", rows.Err())
}

func (e *Engine) Last(cf string) (key, value []byte, found bool, err error) {
	stmt := fmt.Sprintf(`SELECT key, value FROM %s ORDER BY key DESC LIMIT 1`, tableName(cf))
	row := e.db.QueryRow(stmt)
	if scanErr := row.Scan(&key, &value); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return nil, nil, false, nil
		}
		return nil, nil, false, merrors.WrapDB("sqlite.Last", scanErr)
	}
	return key, value, true, nil
}

// sqlBatch stages writes within a single *sql.Tx.
type sqlBatch struct {
	tx *sql.Tx
}

func (b *sqlBatch) Put(cf string, key, value []byte) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, tableName(cf))
	_, err := b.tx.Exec(stmt, key, value)
	return merrors.WrapDB("sqlite.Batch.Put", err)
}

func (b *sqlBatch) Delete(cf string, key []byte) error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, tableName(cf))
	_, err := b.tx.Exec(stmt, key)
	return merrors.WrapDB("sqlite.Batch.Delete", err)
}

func (e *Engine) Batch(fn func(b storage.Batch) error) error {
	tx, err := e.db.Begin()
	if err != nil {
		return merrors.WrapDB("sqlite.Batch", err)
	}
	if err := fn(&sqlBatch{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return merrors.WrapDB("sqlite.Batch.Commit", err)
	}
	return nil
}

// Compact checkpoints the write-ahead log and reclaims free pages,
// exposed as the admin `compact` operation.
func (e *Engine) Compact() error {
	if _, err := e.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return merrors.Wrap(merrors.Storage, "sqlite.Compact", err)
	}
	if _, err := e.db.Exec(`VACUUM`); err != nil {
		return merrors.Wrap(merrors.Storage, "sqlite.Compact", err)
	}
	return nil
}

func (e *Engine) Close() error {
	return e.db.Close()
}
