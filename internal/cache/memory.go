package cache

import (
	"context"
	"sync"
	"time"

	"perfstore/internal/core"
	"perfstore/internal/hdr"
)

type entry struct {
	data    []byte
	expires time.Time
}

// Memory is a process-local cache. Documents are stored encoded, so callers
// never share a cached value.
type Memory struct {
	mu    sync.Mutex
	ttl   time.Duration
	codec Codec
	now   func() time.Time

	entries map[string]entry
	runs    map[int64]map[string]struct{}
}

// NewMemory returns a cache whose entries live ttl; zero keeps them until invalidated.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		codec:   MsgpackCodec{},
		now:     time.Now,
		entries: make(map[string]entry),
		runs:    make(map[int64]map[string]struct{}),
	}
}

func (m *Memory) Get(_ context.Context, key core.SummaryKey) (*hdr.HdrData, bool, error) {
	k := Key(key)

	m.mu.Lock()
	e, ok := m.entries[k]

	if ok && !e.expires.IsZero() && m.now().After(e.expires) {
		delete(m.entries, k)

		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return nil, false, nil
	}

	data, err := m.codec.Unmarshal(e.data)
	if err != nil {
		return nil, false, err
	}

	return data, true, nil
}

func (m *Memory) Set(_ context.Context, key core.SummaryKey, data *hdr.HdrData) error {
	b, err := m.codec.Marshal(data)
	if err != nil {
		return err
	}

	e := entry{data: b}
	if m.ttl > 0 {
		e.expires = m.now().Add(m.ttl)
	}

	k := Key(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[k] = e

	if m.runs[key.RunID] == nil {
		m.runs[key.RunID] = make(map[string]struct{})
	}

	m.runs[key.RunID][k] = struct{}{}

	return nil
}

func (m *Memory) InvalidateRun(_ context.Context, runID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k := range m.runs[runID] {
		delete(m.entries, k)
	}

	delete(m.runs, runID)

	return nil
}

// Len returns the number of live entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.entries)
}
