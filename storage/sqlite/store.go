/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package sqlite persists room logs and snapshots in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/Seednode/partyroom/room"
	"github.com/Seednode/partyroom/storage/sqlite/migrations"
)

// Store is a room.Store backed by SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ room.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens, creating if needed, the database at path and applies any
// pending migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// Append writes events after checking, in the same transaction, that the
// room's log ends at expected.
func (s *Store) Append(ctx context.Context, roomID string, expected uint64, events ...room.Event) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var last uint64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM room_events WHERE room_id = ?`,
		roomID,
	).Scan(&last); err != nil {
		if isBusyError(err) {
			return fmt.Errorf("%w: %v", room.ErrConflict, err)
		}
		return fmt.Errorf("read room %s seq: %w", roomID, err)
	}
	if last != expected {
		return fmt.Errorf("%w: room %s is at %d, expected %d", room.ErrConflict, roomID, last, expected)
	}

	for i, e := range events {
		if e.Seq != expected+uint64(i)+1 {
			return fmt.Errorf("%w: event %d follows %d", room.ErrSequenceGap, e.Seq, expected+uint64(i))
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO room_events (room_id, seq, event_id, kind, actor_id, payload_json, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			roomID, e.Seq, e.ID, string(e.Kind), e.ActorID, []byte(e.Payload), toMillis(e.At),
		)
		if err != nil {
			if isConstraintError(err) || isBusyError(err) {
				return fmt.Errorf("%w: %v", room.ErrConflict, err)
			}
			return fmt.Errorf("insert event %d: %w", e.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		if isBusyError(err) {
			return fmt.Errorf("%w: %v", room.ErrConflict, err)
		}
		return fmt.Errorf("commit append: %w", err)
	}

	return nil
}

// Events returns the room's events after the given sequence.
func (s *Store) Events(ctx context.Context, roomID string, after uint64) ([]room.Event, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT seq, event_id, kind, actor_id, payload_json, created_at
		 FROM room_events
		 WHERE room_id = ? AND seq > ?
		 ORDER BY seq`,
		roomID, after,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []room.Event
	for rows.Next() {
		var (
			e       room.Event
			kind    string
			payload []byte
			at      int64
		)
		if err := rows.Scan(&e.Seq, &e.ID, &kind, &e.ActorID, &payload, &at); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.RoomID = roomID
		e.Kind = room.Kind(kind)
		if len(payload) > 0 {
			e.Payload = payload
		}
		e.At = fromMillis(at)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

// SaveSnapshot upserts d unless a newer snapshot is already stored.
func (s *Store) SaveSnapshot(ctx context.Context, d room.Document) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	b, err := room.Encode(d)
	if err != nil {
		return err
	}

	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO room_snapshots (room_id, seq, document_json, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (room_id) DO UPDATE SET
		   seq = excluded.seq,
		   document_json = excluded.document_json,
		   updated_at = excluded.updated_at
		 WHERE excluded.seq > room_snapshots.seq`,
		d.RoomID, d.Seq, b, toMillis(d.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", d.RoomID, err)
	}

	return nil
}

// Snapshot returns the room's latest stored document.
func (s *Store) Snapshot(ctx context.Context, roomID string) (room.Document, error) {
	if err := s.ready(ctx); err != nil {
		return room.Document{}, err
	}

	var b []byte
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT document_json FROM room_snapshots WHERE room_id = ?`,
		roomID,
	).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return room.Document{}, fmt.Errorf("%w: %s", room.ErrNotFound, roomID)
	}
	if err != nil {
		return room.Document{}, fmt.Errorf("load snapshot %s: %w", roomID, err)
	}

	return room.Decode(b)
}

// Delete removes the room's log and snapshot.
func (s *Store) Delete(ctx context.Context, roomID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM room_events WHERE room_id = ?`,
		`DELETE FROM room_snapshots WHERE room_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, roomID); err != nil {
			return fmt.Errorf("delete room %s: %w", roomID, err)
		}
	}

	return tx.Commit()
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}

func isBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	// Extended codes such as SQLITE_BUSY_SNAPSHOT share the primary code's
	// low byte.
	code := sqliteErr.Code() & 0xff
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}
