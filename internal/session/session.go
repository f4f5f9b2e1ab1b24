// Package session persists one value per session id with optimistic
// concurrency: every write names the version it expects to replace.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrVersionConflict = errors.New("session version conflict")

// Record is the stored form of a session: the version that wrote it and the
// encoded payload.
type Record struct {
	Version uint64          `json:"version"`
	Payload json.RawMessage `json:"payload"`
}

// Backend stores encoded session records.
type Backend interface {
	// Get returns the stored record, or false when the id has none.
	Get(ctx context.Context, id string) (Record, bool, error)
	// CompareAndSet stores payload as version expected+1 only if the stored
	// version equals expected (an absent record has version 0). On mismatch
	// nothing is written and ErrVersionConflict is returned.
	CompareAndSet(ctx context.Context, id string, expected uint64, payload []byte) (uint64, error)
	// Delete removes the record. Deleting an absent record is not an error.
	Delete(ctx context.Context, id string) error
	// DeleteIfVersion removes the record only if the stored version equals
	// expected. An absent record has version 0, so expected 0 on an absent
	// record succeeds. On mismatch nothing is removed and ErrVersionConflict
	// is returned.
	DeleteIfVersion(ctx context.Context, id string, expected uint64) error
}

// Data is a decoded session and the version it was read at.
type Data[T any] struct {
	Version uint64 `json:"version"`
	Payload T      `json:"payload"`
}

// Store encodes session payloads of type T as JSON over a Backend.
type Store[T any] struct {
	backend Backend
}

func NewStore[T any](backend Backend) *Store[T] {
	return &Store[T]{backend: backend}
}

// Load returns nil, nil when the session does not exist.
func (s *Store[T]) Load(ctx context.Context, id string) (*Data[T], error) {
	rec, ok, err := s.backend.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	if !ok {
		return nil, nil
	}

	var payload T
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &Data[T]{Version: rec.Version, Payload: payload}, nil
}

// Save writes payload if the stored version is still expectedVersion and
// returns the new version. A cancelled context never reaches the backend.
func (s *Store[T]) Save(ctx context.Context, id string, expectedVersion uint64, payload T) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode session %s: %w", id, err)
	}
	version, err := s.backend.CompareAndSet(ctx, id, expectedVersion, raw)
	if err != nil {
		return 0, fmt.Errorf("save session %s: %w", id, err)
	}
	return version, nil
}

func (s *Store[T]) Delete(ctx context.Context, id string) error {
	if err := s.backend.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// DeleteAt removes the session only if it is still at version, so a write
// made after the caller's read is never lost.
func (s *Store[T]) DeleteAt(ctx context.Context, id string, version uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.backend.DeleteIfVersion(ctx, id, version); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

func conflict(id string, expected, actual uint64) error {
	return fmt.Errorf("%w: session %s expected version %d, found %d", ErrVersionConflict, id, expected, actual)
}
