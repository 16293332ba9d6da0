// internal/circulation/memory.go
package circulation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLoanStore is an in-process LoanStore used by unit tests and as a
// degraded mode when no database is configured.
type MemoryLoanStore struct {
	mu    sync.RWMutex
	loans map[uuid.UUID]Loan
}

func NewMemoryLoanStore() *MemoryLoanStore {
	return &MemoryLoanStore{loans: make(map[uuid.UUID]Loan)}
}

func (s *MemoryLoanStore) Insert(_ context.Context, loan *Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	loan.Version = 1
	loan.CreatedAt = now
	loan.UpdatedAt = now
	s.loans[loan.ID] = *loan
	return nil
}

func (s *MemoryLoanStore) Get(_ context.Context, id uuid.UUID) (*Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loan, ok := s.loans[id]
	if !ok {
		return nil, ErrLoanNotFound
	}
	return &loan, nil
}

func (s *MemoryLoanStore) Update(_ context.Context, loan *Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.loans[loan.ID]
	if !ok {
		return ErrLoanNotFound
	}
	if stored.Version != loan.Version {
		return ErrVersionConflict
	}
	loan.Version++
	loan.UpdatedAt = time.Now().UTC()
	s.loans[loan.ID] = *loan
	return nil
}

func (s *MemoryLoanStore) ListByStatus(_ context.Context, status Status) ([]*Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Loan
	for _, loan := range s.loans {
		if loan.Status == status {
			l := loan
			out = append(out, &l)
		}
	}
	return out, nil
}

// MemoryTrackingStore keeps the audit log per loan in append order.
type MemoryTrackingStore struct {
	mu      sync.RWMutex
	nextID  int64
	entries map[uuid.UUID][]TrackingEntry
}

func NewMemoryTrackingStore() *MemoryTrackingStore {
	return &MemoryTrackingStore{entries: make(map[uuid.UUID][]TrackingEntry)}
}

func (s *MemoryTrackingStore) Append(_ context.Context, entry *TrackingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	entry.ID = s.nextID
	s.entries[entry.LoanID] = append(s.entries[entry.LoanID], *entry)
	return nil
}

func (s *MemoryTrackingStore) ListByLoan(_ context.Context, loanID uuid.UUID) ([]TrackingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.entries[loanID]
	out := make([]TrackingEntry, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		out = append(out, stored[i])
	}
	return out, nil
}

// MemorySagaStore holds saga state records keyed by saga id.
type MemorySagaStore struct {
	mu     sync.RWMutex
	states map[uuid.UUID]SagaState
}

func NewMemorySagaStore() *MemorySagaStore {
	return &MemorySagaStore{states: make(map[uuid.UUID]SagaState)}
}

func (s *MemorySagaStore) Save(_ context.Context, state *SagaState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state.UpdatedAt = time.Now().UTC()
	s.states[state.ID] = *state
	return nil
}

// All returns every stored saga record, in no particular order.
func (s *MemorySagaStore) All() []SagaState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SagaState, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, st)
	}
	return out
}

func (s *MemorySagaStore) Get(_ context.Context, id uuid.UUID) (*SagaState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[id]
	if !ok {
		return nil, ErrSagaNotFound
	}
	return &state, nil
}
