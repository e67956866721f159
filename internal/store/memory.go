package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Index for development and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]map[string]Record
}

var _ Index = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]map[string]Record)}
}

func (m *MemoryStore) Upsert(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	partition, ok := m.rows[rec.OwnerID]
	if !ok {
		partition = make(map[string]Record)
		m.rows[rec.OwnerID] = partition
	}
	partition[rec.MediaID] = rec
	return nil
}

func (m *MemoryStore) Get(_ context.Context, ownerID, mediaID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.rows[ownerID][mediaID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) ListByOwner(_ context.Context, ownerID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.rows[ownerID]))
	for _, rec := range m.rows[ownerID] {
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

func (m *MemoryStore) ListAll(_ context.Context, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, partition := range m.rows {
		for _, rec := range partition {
			out = append(out, rec)
		}
	}
	sortRecords(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Merge(_ context.Context, ownerID, mediaID string, fields Fields, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[ownerID][mediaID]
	if !ok {
		return ErrNotFound
	}
	if fields.Caption != nil {
		rec.Caption = *fields.Caption
	}
	if fields.Filename != nil {
		rec.Filename = *fields.Filename
	}
	rec.UpdatedAt = updatedAt
	m.rows[ownerID][mediaID] = rec
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, ownerID, mediaID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	partition, ok := m.rows[ownerID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := partition[mediaID]; !ok {
		return ErrNotFound
	}
	delete(partition, mediaID)
	if len(partition) == 0 {
		delete(m.rows, ownerID)
	}
	return nil
}

func sortRecords(recs []Record) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].OwnerID != recs[j].OwnerID {
			return recs[i].OwnerID < recs[j].OwnerID
		}
		return recs[i].MediaID < recs[j].MediaID
	})
}
