package session

import (
	"context"
	"crypto/subtle"
	"sync"
)

// MemoryRecords is an in-process RecordStore for tests and dev mode.
type MemoryRecords struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryRecords returns an empty store.
func NewMemoryRecords() *MemoryRecords {
	return &MemoryRecords{records: make(map[string]Record)}
}

// PersistSessionRecord stores rec, replacing any record with the same id.
func (m *MemoryRecords) PersistSessionRecord(_ context.Context, rec Record) error {
	m.mu.Lock()
	m.records[rec.SessionID] = rec
	m.mu.Unlock()
	return nil
}

// FindSessionRecord returns ErrRecordNotFound for unknown ids.
func (m *MemoryRecords) FindSessionRecord(_ context.Context, sessionID string) (Record, error) {
	m.mu.RLock()
	rec, ok := m.records[sessionID]
	m.mu.RUnlock()
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

// DeleteSessionRecord removes the record. Unknown ids are not an error.
func (m *MemoryRecords) DeleteSessionRecord(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.records, sessionID)
	m.mu.Unlock()
	return nil
}

// SwapRefreshHash replaces the stored hash with next only while it still
// equals current.
func (m *MemoryRecords) SwapRefreshHash(_ context.Context, sessionID string, current, next [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[sessionID]
	if !ok {
		return ErrRecordNotFound
	}
	if subtle.ConstantTimeCompare(rec.RefreshHash[:], current[:]) != 1 {
		return ErrRefreshHashMismatch
	}
	rec.RefreshHash = next
	m.records[sessionID] = rec
	return nil
}

// Len returns the number of stored records.
func (m *MemoryRecords) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
