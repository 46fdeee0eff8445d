package storage

import (
	"context"
	"sync"
)

// MemoryBackend keeps slots in process memory.
type MemoryBackend struct {
	mu    sync.RWMutex
	slots map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{slots: make(map[string][]byte)}
}

func (b *MemoryBackend) Slot(name string) Slot {
	return &memorySlot{backend: b, name: name}
}

func (b *MemoryBackend) Close() error { return nil }

// Put seeds a slot with a raw payload.
func (b *MemoryBackend) Put(name string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slots[name] = append([]byte(nil), data...)
}

// Raw returns a copy of a slot's payload.
func (b *MemoryBackend) Raw(name string) ([]byte, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.slots[name]
	return append([]byte(nil), data...), ok
}

type memorySlot struct {
	backend *MemoryBackend
	name    string
}

func (s *memorySlot) Load(ctx context.Context) ([]byte, error) {
	data, ok := s.backend.Raw(s.name)
	if !ok {
		return nil, ErrSlotEmpty
	}
	return data, nil
}

func (s *memorySlot) Save(ctx context.Context, data []byte) error {
	s.backend.Put(s.name, data)
	return nil
}
