// internal/circulation/service.go
package circulation

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the circulation service. CreateLoan and
// ReturnLoan each execute synchronously as a saga: result or classified
// error, never a loan left pending.
type Service interface {
	CreateLoan(ctx context.Context, userID, bookID uuid.UUID, notes string) (*Loan, error)
	ReturnLoan(ctx context.Context, loanID uuid.UUID, notes string) (*Loan, error)
	GetLoan(ctx context.Context, loanID uuid.UUID) (*Loan, error)
	LoanHistory(ctx context.Context, loanID uuid.UUID) ([]TrackingEntry, error)
	GetSagaState(ctx context.Context, sagaID uuid.UUID) (*SagaState, error)
	MarkOverdueLoans(ctx context.Context) (int, error)
}
