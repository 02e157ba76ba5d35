// Package store implements the SQLite-backed room persistence layer:
// schema migrations, the fixed-size board blob codec, and the
// best-effort writeback of dirty rooms.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/kalgynirae/sudoku/internal/board"
	"github.com/kalgynirae/sudoku/internal/global"
	"github.com/kalgynirae/sudoku/internal/roomid"
)

// ErrNotFound is returned by LoadRoom when no row exists for the
// requested room id. It is global.ErrNotFound, the sentinel of
// internal/global's Loader contract.
var ErrNotFound = global.ErrNotFound

// Store wraps a *sql.DB with the room schema's read/write operations.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (creating if necessary) the SQLite database at dsn and
// runs any pending migrations before returning.
func Open(ctx context.Context, dsn string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1) // mattn/go-sqlite3 serializes writers anyway; avoid SQLITE_BUSY churn
	s := &Store{db: db, logger: logger}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadRoom fetches one room's persisted board. It satisfies
// internal/global's Loader interface.
func (s *Store) LoadRoom(ctx context.Context, id roomid.ID) (board.State, error) {
	b := id.Bytes()
	row := s.db.QueryRowContext(ctx, `SELECT board FROM rooms WHERE id = ?`, b[:])
	var blob []byte
	if err := row.Scan(&blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return board.State{}, ErrNotFound
		}
		return board.State{}, fmt.Errorf("store: load room %s: %w", id, err)
	}
	return DecodeBoard(blob)
}

// Entry is one room's snapshot, ready to persist.
type Entry struct {
	ID    roomid.ID
	Board board.State
}

// WriteDirty upserts every entry in one transaction. A per-row
// exec failure is logged and skipped rather than aborting
// the whole batch: a best-effort service prefers a partial writeback
// to losing every room's edits over one bad row.
func (s *Store) WriteDirty(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin writeback transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO rooms(id, board) VALUES (?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("store: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		idBytes := e.ID.Bytes()
		blob := EncodeBoard(e.Board)
		if _, err := stmt.ExecContext(ctx, idBytes[:], blob); err != nil {
			s.logger.Warn().Err(err).Str("room_id", e.ID.String()).Msg("writeback: skipping room after upsert failure")
			continue
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit writeback transaction: %w", err)
	}
	return nil
}
