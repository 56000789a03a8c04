// Package localstore is the device-local SQLite store: a mirror of the
// server records, the outbox of unsynced mutations and a metadata table
// holding the pull cursor and the cached wrapped key.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/erauner12/journalsync/internal/client/localstore/migrations"
	"github.com/gofrs/flock"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite"
)

var (
	ErrSyncInProgress = errors.New("another sync is already running for this store")
	ErrNoStore        = errors.New("no local store is open")
	ErrUnsyncedData   = errors.New("local store has unsynced changes")
)

// DBTX is satisfied by both *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repos groups the repositories bound to one handle
type Repos struct {
	Records *Records
	Outbox  *Outbox
	Meta    *Meta
}

func newRepos(db DBTX) Repos {
	return Repos{
		Records: &Records{db: db},
		Outbox:  &Outbox{db: db},
		Meta:    &Meta{db: db},
	}
}

// Store is one user's local database
type Store struct {
	Repos

	db   *sql.DB
	path string

	syncMu   sync.Mutex
	fileLock *flock.Flock
}

var migrateMu sync.Mutex

// RunMigrations applies the embedded schema
func RunMigrations(ctx context.Context, db *sql.DB) error {
	// goose keeps its base FS and dialect in package globals
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Open opens (creating if needed) the SQLite file at path and migrates it
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + (&url.URL{Path: path}).EscapedPath() +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single connection; SQLite serializes writers
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	log.Ctx(ctx).Debug().Str("path", path).Msg("local store opened")

	return &Store{
		Repos:    newRepos(db),
		db:       db,
		path:     path,
		fileLock: flock.New(path + ".lock"),
	}, nil
}

// Path returns the backing file
func (s *Store) Path() string { return s.path }

// Close closes the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

// InTx runs fn with repositories bound to one transaction.
// fn must not use s.Repos while the transaction is open.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx Repos) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(ctx, newRepos(tx))
}

// TryLockSync claims the single sync-cycle slot for this store, both within
// the process and across processes sharing the file. The returned func
// releases it, logging through the logger carried by ctx.
func (s *Store) TryLockSync(ctx context.Context) (func(), error) {
	if !s.syncMu.TryLock() {
		return nil, ErrSyncInProgress
	}

	ok, err := s.fileLock.TryLock()
	if err != nil {
		s.syncMu.Unlock()
		return nil, fmt.Errorf("lock %s: %w", s.fileLock.Path(), err)
	}
	if !ok {
		s.syncMu.Unlock()
		return nil, ErrSyncInProgress
	}

	logger := log.Ctx(ctx)
	return func() {
		if err := s.fileLock.Unlock(); err != nil {
			logger.Warn().Err(err).Msg("failed to release sync file lock")
		}
		s.syncMu.Unlock()
	}, nil
}
