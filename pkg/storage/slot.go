// Package storage provides named persistence slots. Each slot holds one JSON
// document that is read once at startup and rewritten in full on every
// mutation of the state it backs.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrSlotEmpty is returned by Load when nothing has been saved yet.
	ErrSlotEmpty = errors.New("storage: slot is empty")
	// ErrCorruptPersistedState marks a payload that could not be decoded.
	ErrCorruptPersistedState = errors.New("storage: corrupt persisted state")
)

// Slot is a single named record.
type Slot interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// Backend hands out slots by name.
type Backend interface {
	Slot(name string) Slot
	Close() error
}

// LoadJSON decodes the slot into v. Absent slots yield ErrSlotEmpty and
// undecodable payloads yield ErrCorruptPersistedState; both leave v untouched.
func LoadJSON(ctx context.Context, slot Slot, v any) error {
	data, err := slot.Load(ctx)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return ErrSlotEmpty
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptPersistedState, err)
	}
	return nil
}

// SaveJSON encodes v and writes it to the slot.
func SaveJSON(ctx context.Context, slot Slot, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode slot payload: %w", err)
	}
	return slot.Save(ctx, data)
}
