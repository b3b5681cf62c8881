// ABOUTME: Unified Storage layer that wraps all SQLite stores
// ABOUTME: One handle for profiles, turns, snapshots, telemetry, flags and session summaries
package sqlite

import (
	"context"
	"fmt"
)

// Storage manages all persistent data for the companion engine
type Storage struct {
	db        *DB
	Profiles  *ProfileStore
	Turns     *TurnStore
	Snapshots *SnapshotStore
	Events    *EventStore
	Daily     *DailyStore
	Flags     *FlagStore
	Sessions  *SessionSummaryStore
}

// NewStorageWithPath initializes storage backed by the database file at dbPath
func NewStorageWithPath(dbPath string) (*Storage, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return newStorage(db), nil
}

// NewStorageInMemory creates an in-memory storage (for testing)
func NewStorageInMemory() (*Storage, error) {
	db, err := OpenInMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	return newStorage(db), nil
}

func newStorage(db *DB) *Storage {
	return &Storage{
		db:        db,
		Profiles:  NewProfileStore(db),
		Turns:     NewTurnStore(db),
		Snapshots: NewSnapshotStore(db),
		Events:    NewEventStore(db),
		Daily:     NewDailyStore(db),
		Flags:     NewFlagStore(db),
		Sessions:  NewSessionSummaryStore(db),
	}
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB exposes the underlying database handle
func (s *Storage) DB() *DB {
	return s.db
}

// Stats returns per-table row counts
func (s *Storage) Stats(ctx context.Context) (map[string]int64, error) {
	return s.db.TableCounts(ctx)
}
