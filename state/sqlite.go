package state

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/axiomesh/axiom-kit/storage"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const (
	sqliteUpsert = `INSERT INTO kv (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v`
	sqliteDelete = `DELETE FROM kv WHERE k = ?`
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS kv (
	k BLOB PRIMARY KEY,
	v BLOB NOT NULL
)`

// SQLiteStore keeps the key/value state in a single sqlite table.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite db")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping sqlite db")
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create kv table")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(key []byte) []byte {
	var v []byte
	err := s.db.QueryRow(`SELECT v FROM kv WHERE k = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		panic(fmt.Sprintf("sqlite get %q: %s", key, err))
	}
	return v
}

func (s *SQLiteStore) Put(key, value []byte) {
	if value == nil {
		value = []byte{}
	}
	if _, err := s.db.Exec(sqliteUpsert, key, value); err != nil {
		panic(fmt.Sprintf("sqlite put %q: %s", key, err))
	}
}

func (s *SQLiteStore) Delete(key []byte) {
	if _, err := s.db.Exec(sqliteDelete, key); err != nil {
		panic(fmt.Sprintf("sqlite delete %q: %s", key, err))
	}
}

func (s *SQLiteStore) NewBatch() storage.Batch {
	return &sqliteBatch{db: s.db}
}

type sqliteOp struct {
	key   []byte
	value []byte
	del   bool
}

// sqliteBatch applies its writes in a single transaction on Commit.
type sqliteBatch struct {
	db  *sql.DB
	ops []sqliteOp
}

func (b *sqliteBatch) Put(key, value []byte) {
	if value == nil {
		value = []byte{}
	}
	b.ops = append(b.ops, sqliteOp{
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	})
}

func (b *sqliteBatch) Delete(key []byte) {
	b.ops = append(b.ops, sqliteOp{key: append([]byte(nil), key...), del: true})
}

func (b *sqliteBatch) Commit() {
	if err := b.commit(); err != nil {
		panic(fmt.Sprintf("sqlite batch commit: %s", err))
	}
	b.ops = nil
}

func (b *sqliteBatch) commit() error {
	tx, err := b.db.Begin()
	if err != nil {
		return err
	}
	for _, op := range b.ops {
		if op.del {
			_, err = tx.Exec(sqliteDelete, op.key)
		} else {
			_, err = tx.Exec(sqliteUpsert, op.key, op.value)
		}
		if err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "key %q", op.key)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
