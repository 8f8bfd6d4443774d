package authcore

import (
	"context"
	"fmt"
	"sync"

	"github.com/procuregov/authcore/internal"
)

// MemoryPrincipalStore is an in-process [PrincipalStore] for tests and
// development servers.
type MemoryPrincipalStore struct {
	mu      sync.RWMutex
	byID    map[string]Principal
	byEmail map[string]string
}

// NewMemoryPrincipalStore returns a store preloaded with principals.
func NewMemoryPrincipalStore(principals ...Principal) *MemoryPrincipalStore {
	s := &MemoryPrincipalStore{
		byID:    make(map[string]Principal, len(principals)),
		byEmail: make(map[string]string, len(principals)),
	}
	for _, p := range principals {
		s.Put(p)
	}
	return s
}

// Put inserts or replaces p. The email is normalized the same way login
// input is.
func (s *MemoryPrincipalStore) Put(p Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byID[p.ID]; ok {
		delete(s.byEmail, internal.NormalizeEmail(old.Email))
	}
	s.byID[p.ID] = p
	if email := internal.NormalizeEmail(p.Email); email != "" {
		s.byEmail[email] = p.ID
	}
}

// SetStatus changes the lifecycle status of an existing principal.
func (s *MemoryPrincipalStore) SetStatus(id string, status PrincipalStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPrincipalNotFound, id)
	}
	p.Status = status
	s.byID[id] = p
	return nil
}

// SetRole changes the role of an existing principal.
func (s *MemoryPrincipalStore) SetRole(id string, role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPrincipalNotFound, id)
	}
	p.Role = role
	s.byID[id] = p
	return nil
}

func (s *MemoryPrincipalStore) FindPrincipalByID(_ context.Context, id string) (Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return Principal{}, ErrPrincipalNotFound
	}
	return p, nil
}

func (s *MemoryPrincipalStore) FindPrincipalByEmail(_ context.Context, email string) (Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return Principal{}, ErrPrincipalNotFound
	}
	return s.byID[id], nil
}
