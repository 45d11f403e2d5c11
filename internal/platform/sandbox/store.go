package sandbox

import (
	"context"
	"errors"
	"maps"
	"strconv"
	"sync"
)

// ErrNotFound is returned when a collection has no record with the id.
var ErrNotFound = errors.New("record not found")

// Record is one stored resource. The "id" key is owned by the store.
type Record map[string]interface{}

func (r Record) clone() Record {
	out := make(Record, len(r))
	maps.Copy(out, r)
	return out
}

// Store persists records per collection ("patients/",
// "laboratory/lab-tests/", ...). Ids are positive integers assigned on
// Create, increasing within a collection.
type Store interface {
	List(ctx context.Context, collection string) ([]Record, error)
	Get(ctx context.Context, collection, id string) (Record, error)
	Create(ctx context.Context, collection string, rec Record) (Record, error)
	Update(ctx context.Context, collection, id string, rec Record) (Record, error)
	Delete(ctx context.Context, collection, id string) error
	Reset(ctx context.Context) error
}

// MemoryStore keeps records in insertion order.
type MemoryStore struct {
	mu      sync.RWMutex
	lastID  map[string]int64
	records map[string][]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lastID:  make(map[string]int64),
		records: make(map[string][]Record),
	}
}

func (m *MemoryStore) List(_ context.Context, collection string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, len(m.records[collection]))
	for _, r := range m.records[collection] {
		out = append(out, r.clone())
	}
	return out, nil
}

func (m *MemoryStore) Get(_ context.Context, collection, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i := m.index(collection, id)
	if i < 0 {
		return nil, ErrNotFound
	}
	return m.records[collection][i].clone(), nil
}

func (m *MemoryStore) Create(_ context.Context, collection string, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastID[collection]++
	stored := rec.clone()
	stored["id"] = m.lastID[collection]
	m.records[collection] = append(m.records[collection], stored)
	return stored.clone(), nil
}

func (m *MemoryStore) Update(_ context.Context, collection, id string, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.index(collection, id)
	if i < 0 {
		return nil, ErrNotFound
	}
	stored := rec.clone()
	stored["id"] = m.records[collection][i]["id"]
	m.records[collection][i] = stored
	return stored.clone(), nil
}

func (m *MemoryStore) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.index(collection, id)
	if i < 0 {
		return ErrNotFound
	}
	m.records[collection] = append(m.records[collection][:i], m.records[collection][i+1:]...)
	return nil
}

func (m *MemoryStore) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastID = make(map[string]int64)
	m.records = make(map[string][]Record)
	return nil
}

// index must be called with the lock held.
func (m *MemoryStore) index(collection, id string) int {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return -1
	}
	for i, r := range m.records[collection] {
		if r["id"] == n {
			return i
		}
	}
	return -1
}
