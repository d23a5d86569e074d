package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory keeps drafts in process. Drafts are lost on restart.
type Memory struct {
	mu     sync.RWMutex
	drafts map[uuid.UUID]Draft
	now    func() time.Time
}

func NewMemory() *Memory {
	return &Memory{drafts: make(map[uuid.UUID]Draft), now: time.Now}
}

func (m *Memory) GetDraft(ctx context.Context, id uuid.UUID) (Draft, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drafts[id]
	if !ok {
		return Draft{}, ErrNotFound
	}
	return d.Clone(), nil
}

func (m *Memory) ListDrafts(ctx context.Context, owner uuid.UUID) ([]Draft, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Draft
	for _, d := range m.drafts {
		if d.OwnerID == owner {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// SaveDraft inserts or updates d. It returns the stored copy with the new
// version and timestamps.
func (m *Memory) SaveDraft(ctx context.Context, d Draft) (Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	current, exists := m.drafts[d.ID]
	switch {
	case d.Version == 0 && exists:
		return Draft{}, ErrVersionConflict
	case d.Version == 0:
		d.CreatedAt = now
	case !exists:
		return Draft{}, ErrNotFound
	case current.Version != d.Version:
		return Draft{}, ErrVersionConflict
	default:
		d.CreatedAt = current.CreatedAt
	}
	d.Version++
	d.UpdatedAt = now
	m.drafts[d.ID] = d.Clone()
	return d, nil
}

func (m *Memory) DeleteDraft(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drafts[id]; !ok {
		return ErrNotFound
	}
	delete(m.drafts, id)
	return nil
}
