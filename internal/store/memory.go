package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryBackend keeps every version in process memory. It is the default
// backend and the one the tests run on.
type MemoryBackend struct {
	mu       sync.RWMutex
	versions map[string][]Version
	closed   bool
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{versions: make(map[string][]Version)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) (*Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	vs := m.versions[key]
	if len(vs) == 0 {
		return nil, nil
	}
	v := vs[len(vs)-1]
	return &v, nil
}

func (m *MemoryBackend) Scan(_ context.Context, start, end string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var out []Entry
	for key, vs := range m.versions {
		if key < start || (end != "" && key >= end) {
			continue
		}
		latest := vs[len(vs)-1]
		if latest.IsDelete {
			continue
		}
		out = append(out, Entry{Key: key, Version: latest})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryBackend) History(_ context.Context, key string) ([]Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	vs := m.versions[key]
	out := make([]Version, len(vs))
	copy(out, vs)
	return out, nil
}

func (m *MemoryBackend) Commit(_ context.Context, cs *Changeset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	for key, seq := range cs.Reads {
		if m.seq(key) != seq {
			return ErrConflict
		}
	}
	for _, w := range cs.Writes {
		m.versions[w.Key] = append(m.versions[w.Key], Version{
			Seq:       m.seq(w.Key) + 1,
			Value:     w.Value,
			TxID:      cs.TxID,
			Timestamp: cs.Timestamp,
			IsDelete:  w.IsDelete,
		})
	}
	return nil
}

func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MemoryBackend) seq(key string) uint64 {
	vs := m.versions[key]
	if len(vs) == 0 {
		return 0
	}
	return vs[len(vs)-1].Seq
}
