package auth

import (
	"context"
	"sync"
	"time"

	"mindhaven.org/internal/ids"
)

// MemoryDirectory is an in-memory Directory used by tests and local runs.
type MemoryDirectory struct {
	mu     sync.RWMutex
	byID   map[string]*Principal
	byAnon map[string]string
	now    func() time.Time
}

// NewMemoryDirectory creates an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		byID:   make(map[string]*Principal),
		byAnon: make(map[string]string),
		now:    time.Now,
	}
}

// Put inserts or replaces a principal. Test seeding helper.
func (d *MemoryDirectory) Put(p Principal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	clone := p
	d.byID[p.ID] = &clone
	if p.AnonymousID != "" {
		d.byAnon[p.AnonymousID] = p.ID
	}
}

func (d *MemoryDirectory) FindByID(ctx context.Context, id string) (*Principal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (d *MemoryDirectory) FindByAnonymousID(ctx context.Context, anonymousID string) (*Principal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byAnon[anonymousID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *d.byID[id]
	return &clone, nil
}

func (d *MemoryDirectory) CreateAnonymous(ctx context.Context, anonymousID string) (*Principal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.byAnon[anonymousID]; ok {
		clone := *d.byID[id]
		return &clone, nil
	}
	now := d.now().UTC()
	p := &Principal{
		ID:           ids.New(),
		Role:         RolePatient,
		IsActive:     true,
		IsAnonymous:  true,
		AnonymousID:  anonymousID,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	d.byID[p.ID] = p
	d.byAnon[anonymousID] = p.ID
	clone := *p
	return &clone, nil
}

func (d *MemoryDirectory) TouchLastActive(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.byID[id]
	if !ok {
		return ErrNotFound
	}
	p.LastActiveAt = d.now().UTC()
	return nil
}
