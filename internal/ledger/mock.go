// Package ledger writes Merkle roots to Hyperledger Fabric or to an in-process mock.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/hyp3rd/ewrap"

	"perfstore/internal/sentinel"
)

// MockLedger keeps written roots in memory. Transaction ids are derived
// from the hash and a write counter, so they are deterministic.
type MockLedger struct {
	mu      sync.RWMutex
	delay   time.Duration
	seq     int
	entries map[string]string
}

// NewMockLedger returns a ledger that waits delay on every write.
func NewMockLedger(delay time.Duration) *MockLedger {
	return &MockLedger{delay: delay, entries: make(map[string]string)}
}

func (m *MockLedger) Write(ctx context.Context, hash string, metadata string) (string, error) {
	if m.delay > 0 {
		t := time.NewTimer(m.delay)
		defer t.Stop()

		select {
		case <-t.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	m.entries[hash] = metadata

	tx := sha256.Sum256([]byte(hash + "#" + strconv.Itoa(m.seq)))

	return "0x" + hex.EncodeToString(tx[:]), nil
}

// Read returns the metadata written with hash.
func (m *MockLedger) Read(_ context.Context, hash string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	meta, ok := m.entries[hash]
	if !ok {
		return "", ewrap.Wrapf(sentinel.ErrNotFound, "ledger entry %s", hash)
	}

	return meta, nil
}

// Writes returns the number of writes so far.
func (m *MockLedger) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.seq
}
