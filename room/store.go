/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Store persists room logs and the latest folded document of each room.
type Store interface {
	// Append adds events to the end of a room's log. It fails with
	// ErrConflict unless the log currently ends at expected.
	Append(ctx context.Context, roomID string, expected uint64, events ...Event) error

	// Events returns the room's events with Seq greater than after, in order.
	Events(ctx context.Context, roomID string, after uint64) ([]Event, error)

	// SaveSnapshot stores d as the room's latest document. Older snapshots
	// never replace newer ones.
	SaveSnapshot(ctx context.Context, d Document) error

	// Snapshot returns the room's latest stored document, or ErrNotFound.
	Snapshot(ctx context.Context, roomID string) (Document, error)

	// Delete drops a room's log and snapshot.
	Delete(ctx context.Context, roomID string) error
}

// MemoryStore is a Store that lives only as long as the process.
type MemoryStore struct {
	mu        sync.RWMutex
	events    map[string][]Event
	snapshots map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:    make(map[string][]Event),
		snapshots: make(map[string][]byte),
	}
}

func (m *MemoryStore) Append(ctx context.Context, roomID string, expected uint64, events ...Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	log := m.events[roomID]
	var last uint64
	if len(log) > 0 {
		last = log[len(log)-1].Seq
	}
	if last != expected {
		return fmt.Errorf("%w: room %s is at %d, expected %d", ErrConflict, roomID, last, expected)
	}

	for i, e := range events {
		if e.Seq != expected+uint64(i)+1 {
			return fmt.Errorf("%w: event %d follows %d", ErrSequenceGap, e.Seq, expected+uint64(i))
		}
	}

	m.events[roomID] = append(log, events...)

	return nil
}

func (m *MemoryStore) Events(ctx context.Context, roomID string, after uint64) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	log := m.events[roomID]
	i, _ := slices.BinarySearchFunc(log, after+1, func(e Event, seq uint64) int {
		switch {
		case e.Seq < seq:
			return -1
		case e.Seq > seq:
			return 1
		default:
			return 0
		}
	})

	return slices.Clone(log[i:]), nil
}

func (m *MemoryStore) SaveSnapshot(ctx context.Context, d Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b, err := Encode(d)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.snapshots[d.RoomID]; ok {
		old, err := Decode(prev)
		if err == nil && old.Seq >= d.Seq {
			return nil
		}
	}
	m.snapshots[d.RoomID] = b

	return nil
}

func (m *MemoryStore) Snapshot(ctx context.Context, roomID string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	m.mu.RLock()
	b, ok := m.snapshots[roomID]
	m.mu.RUnlock()

	if !ok {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, roomID)
	}

	return Decode(b)
}

func (m *MemoryStore) Delete(ctx context.Context, roomID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.events, roomID)
	delete(m.snapshots, roomID)

	return nil
}
