// internal/circulation/store.go
package circulation

import (
	"context"

	"github.com/google/uuid"
)

// LoanStore owns the Loan aggregate's durable state. Loans are mutated only
// inside a saga step; Update enforces an optimistic version check so two
// concurrent sagas racing on the same loan cannot both succeed.
type LoanStore interface {
	Insert(ctx context.Context, loan *Loan) error
	Get(ctx context.Context, id uuid.UUID) (*Loan, error)
	// Update persists the loan if the stored version still matches
	// loan.Version, then increments it. Returns ErrVersionConflict otherwise.
	Update(ctx context.Context, loan *Loan) error
	ListByStatus(ctx context.Context, status Status) ([]*Loan, error)
}

// TrackingStore is the append-only log of status transitions.
type TrackingStore interface {
	Append(ctx context.Context, entry *TrackingEntry) error
	// ListByLoan returns the loan's entries most-recent first.
	ListByLoan(ctx context.Context, loanID uuid.UUID) ([]TrackingEntry, error)
}

// SagaStore persists SagaState at every step transition.
type SagaStore interface {
	Save(ctx context.Context, state *SagaState) error
	Get(ctx context.Context, id uuid.UUID) (*SagaState, error)
}
