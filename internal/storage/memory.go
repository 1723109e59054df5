package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/hyp3rd/ewrap"

	"perfstore/internal/sentinel"
)

const memoryPrefix = "mem/"

// MemoryStorage keeps objects in a map.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStorage returns an empty store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string][]byte)}
}

func (s *MemoryStorage) Upload(ctx context.Context, key string, data io.Reader, _ int64, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	b, err := io.ReadAll(data)
	if err != nil {
		return "", ewrap.Wrapf(err, "read object %s", key)
	}

	s.mu.Lock()
	s.objects[key] = b
	s.mu.Unlock()

	return memoryPrefix + key, nil
}

func (s *MemoryStorage) Download(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key, _ := strings.CutPrefix(path, memoryPrefix)

	s.mu.RLock()
	b, ok := s.objects[key]
	s.mu.RUnlock()

	if !ok {
		return nil, ewrap.Wrapf(sentinel.ErrNotFound, "object %s", path)
	}

	return bytes.Clone(b), nil
}

// Len returns the number of stored objects.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.objects)
}
