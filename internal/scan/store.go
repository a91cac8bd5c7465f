package scan

import (
	"context"
	"sync"
	"time"

	"coinscout/internal/domain"
)

// Store is the shared scan-state store. PutState must make the state
// visible to concurrent readers before returning: Start relies on that to
// guarantee a status read immediately after Start never sees not-found.
type Store interface {
	PutState(ctx context.Context, state domain.ScanState) error
	GetState(ctx context.Context, scanID string) (domain.ScanState, error)
	PutResults(ctx context.Context, scanID string, results domain.ScanResults) error
	GetResults(ctx context.Context, scanID string) (domain.ScanResults, error)
	ListStates(ctx context.Context) ([]domain.ScanState, error)
	Delete(ctx context.Context, scanID string) error
}

type memoryEntry struct {
	state     domain.ScanState
	results   *domain.ScanResults
	expiresAt time.Time
}

// MemoryStore keeps scan state in-process behind one mutex. Used in tests
// and in dev deployments without Redis.
type MemoryStore struct {
	mu        sync.RWMutex
	entries   map[string]*memoryEntry
	retention time.Duration
	now       func() time.Time
}

func NewMemoryStore(retention time.Duration) *MemoryStore {
	if retention <= 0 {
		retention = time.Hour
	}
	return &MemoryStore{
		entries:   make(map[string]*memoryEntry),
		retention: retention,
		now:       time.Now,
	}
}

func (s *MemoryStore) PutState(ctx context.Context, state domain.ScanState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[state.ScanID]
	if !ok {
		entry = &memoryEntry{}
		s.entries[state.ScanID] = entry
	}
	entry.state = state
	if state.Status.IsTerminal() {
		entry.expiresAt = s.now().Add(s.retention)
	}
	return nil
}

func (s *MemoryStore) GetState(ctx context.Context, scanID string) (domain.ScanState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[scanID]
	if !ok || s.expired(entry) {
		return domain.ScanState{}, ErrNotFound
	}
	return entry.state, nil
}

func (s *MemoryStore) PutResults(ctx context.Context, scanID string, results domain.ScanResults) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[scanID]
	if !ok {
		entry = &memoryEntry{}
		s.entries[scanID] = entry
	}
	entry.results = &results
	return nil
}

func (s *MemoryStore) GetResults(ctx context.Context, scanID string) (domain.ScanResults, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[scanID]
	if !ok || s.expired(entry) || entry.results == nil {
		return domain.ScanResults{}, ErrNotFound
	}
	return *entry.results, nil
}

func (s *MemoryStore) ListStates(ctx context.Context) ([]domain.ScanState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ScanState, 0, len(s.entries))
	for _, entry := range s.entries {
		if s.expired(entry) {
			continue
		}
		out = append(out, entry.state)
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, scanID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, scanID)
	return nil
}

func (s *MemoryStore) expired(entry *memoryEntry) bool {
	return !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt)
}
