package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/curb-dev/curb/internal/model"
)

// Memory is an in-process Store.
type Memory struct {
	mu    sync.RWMutex
	txns  map[string]map[string]model.Transaction // user -> id -> txn
	kv    map[string][]byte
	newID func() string
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		txns:  make(map[string]map[string]model.Transaction),
		kv:    make(map[string][]byte),
		newID: uuid.NewString,
	}
}

func (m *Memory) List(_ context.Context, userKey string) ([]model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Transaction, 0, len(m.txns[userKey]))
	for _, t := range m.txns[userKey] {
		out = append(out, t)
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *Memory) Find(_ context.Context, userKey, id string) (model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.txns[userKey][id]
	if !ok {
		return model.Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return t, nil
}

func (m *Memory) Add(ctx context.Context, txn model.Transaction) (string, error) {
	ids, err := m.AddBatch(ctx, []model.Transaction{txn})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func (m *Memory) AddBatch(_ context.Context, txns []model.Transaction) ([]string, error) {
	for i, t := range txns {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(txns))
	for i, t := range txns {
		if t.ID == "" {
			t.ID = m.newID()
		}
		if m.txns[t.UserKey] == nil {
			m.txns[t.UserKey] = make(map[string]model.Transaction)
		}
		m.txns[t.UserKey][t.ID] = t
		ids[i] = t.ID
	}
	return ids, nil
}

func (m *Memory) Delete(_ context.Context, userKey, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.txns[userKey][id]; !ok {
		return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	delete(m.txns[userKey], id)
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.kv[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Close() error { return nil }
