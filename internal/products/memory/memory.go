package memory

import (
	"context"
	"sync"

	"profitdash/internal/core"
	"profitdash/internal/products"
)

var _ products.Store = (*Store)(nil)

// Store keeps snapshots in process memory. Every upload replaces the user's
// entry wholesale, so a read under the lock always sees a complete list.
type Store struct {
	mu    sync.RWMutex
	snaps map[string]core.Snapshot
}

func New() *Store {
	return &Store{snaps: make(map[string]core.Snapshot)}
}

// Replace stores snap as the user's current list.
func (s *Store) Replace(_ context.Context, snap core.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	stored := snap.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.UserID] = stored
	return nil
}

// Snapshot returns a copy of the user's current list.
func (s *Store) Snapshot(_ context.Context, userID string) (core.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[userID]
	if !ok {
		return core.Snapshot{UserID: userID}, nil
	}
	return snap.Clone(), nil
}

func (s *Store) Get(_ context.Context, userID, productID string) (core.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.snaps[userID].Find(productID)
	if !ok {
		return core.Product{}, products.ErrNotFound
	}
	return p, nil
}

// Clear forgets the user's list, as on sign-out.
func (s *Store) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, userID)
	return nil
}

// Users returns how many users currently hold a list.
func (s *Store) Users() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snaps)
}
