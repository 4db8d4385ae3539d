package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"mindhaven.org/internal/ids"
)

// MemoryDirectory is an in-memory Directory for tests and local runs.
type MemoryDirectory struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

func (d *MemoryDirectory) FindByID(ctx context.Context, id string) (*Session, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *s
	return &clone, nil
}

func (d *MemoryDirectory) Create(ctx context.Context, s *Session) error {
	if strings.TrimSpace(s.PatientID) == "" {
		return ErrInvalidInput
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if s.ID == "" {
		s.ID = ids.New()
	}
	if s.Status == "" {
		s.Status = StatusWaiting
	}
	now := d.now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	clone := *s
	d.sessions[s.ID] = &clone
	return nil
}
