// internal/circulation/return_saga.go
package circulation

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"bookcirc/internal/events"
	"bookcirc/internal/gateway"
)

// ReturnLoan drives the return saga: tentatively mark the loan returned,
// release the copy through the protected inventory call, and on failure
// compensate by re-asserting the reservation and cancelling the loan.
func (s *service) ReturnLoan(ctx context.Context, loanID uuid.UUID, notes string) (*Loan, error) {
	if loanID == uuid.Nil {
		return nil, &ValidationError{Field: "loan_id", Reason: "must not be empty"}
	}

	// Absent loan: abort before any state mutation.
	loan, err := s.loans.Get(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != StatusActive && loan.Status != StatusOverdue {
		return nil, fmt.Errorf("loan %s is %s: %w", loanID, loan.Status, ErrLoanNotActive)
	}

	saga := NewSagaState(SagaReturn, loan.ID)
	ctx, span := s.tracer.Start(ctx, "circulation.return_loan",
		trace.WithAttributes(
			attribute.String("saga.id", saga.ID.String()),
			attribute.String("loan.id", loan.ID.String()),
		),
	)
	defer span.End()

	now := s.now()
	wasOverdue := loan.Status == StatusOverdue ||
		(loan.DueDate != nil && now.After(*loan.DueDate))

	// Step 1: tentative local return, committed before the remote release.
	s.sagaStep(ctx, saga, StepFinalize)
	loan.ReturnDate = &now
	loan.Status = StatusReturned
	if err := s.loans.Update(ctx, loan); err != nil {
		span.RecordError(err)
		s.sagaFinish(ctx, saga, SagaFailed, err)
		return nil, fmt.Errorf("persist tentative return for loan %s: %w", loanID, err)
	}

	// Step 2: release the copy through the circuit-breaking gateway.
	s.sagaStep(ctx, saga, StepReleaseCopy)
	outcome, callErr := s.gateway.Call(ctx, func(ctx context.Context) error {
		return s.inventory.ReturnBook(ctx, loan.BookID)
	})
	if outcome == gateway.Ok {
		note := "returned"
		if wasOverdue {
			note = "returned overdue"
		}
		if err := s.tracking.Record(ctx, loan.ID, StatusReturned, note); err != nil {
			log.Printf("tracking append failed for loan %s: %v", loan.ID, err)
		}
		s.publishAsync(events.TopicLoanReturned, events.Event{
			EventID:       uuid.New(),
			CorrelationID: saga.ID,
			Timestamp:     now,
			EventType:     "LoanReturned",
			LoanID:        loan.ID,
			UserID:        loan.UserID,
			BookID:        loan.BookID,
			ReturnDate:    loan.ReturnDate,
			WasOverdue:    &wasOverdue,
		})
		s.sagaFinish(ctx, saga, SagaSucceeded, nil)
		return loan, nil
	}
	span.RecordError(callErr)

	if err := s.compensateReturn(ctx, saga, loan); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("return loan %s: %w", loanID, ErrBookNotAvailable)
}

// compensateReturn undoes the tentative release by borrowing the copy back,
// then cancels the loan. The re-borrow goes straight to the transport client:
// compensation must not be short-circuited by the breaker the failing call
// just fed. If the re-borrow itself fails, local and remote state disagree
// and the saga raises a CompensationError for out-of-band reconciliation.
func (s *service) compensateReturn(ctx context.Context, saga *SagaState, loan *Loan) error {
	s.sagaStep(ctx, saga, StepCompensate)

	if err := s.inventory.BorrowBook(ctx, loan.BookID); err != nil {
		compErr := &CompensationError{SagaID: saga.ID, LoanID: loan.ID, Step: StepCompensate, Cause: err}
		log.Printf("CRITICAL: %v", compErr)
		s.sagaFinish(ctx, saga, SagaFailed, compErr)
		return compErr
	}

	loan.Status = StatusCancelled
	if err := s.loans.Update(ctx, loan); err != nil {
		// Refresh and retry once on a version bump from the overdue sweep.
		if errors.Is(err, ErrVersionConflict) {
			if fresh, getErr := s.loans.Get(ctx, loan.ID); getErr == nil {
				loan.Version = fresh.Version
				err = s.loans.Update(ctx, loan)
			}
		}
		if err != nil {
			compErr := &CompensationError{SagaID: saga.ID, LoanID: loan.ID, Step: StepCompensate, Cause: err}
			log.Printf("CRITICAL: %v", compErr)
			s.sagaFinish(ctx, saga, SagaFailed, compErr)
			return compErr
		}
	}

	if err := s.tracking.Record(ctx, loan.ID, StatusCancelled, "cancelled: return failed"); err != nil {
		log.Printf("tracking append failed for loan %s: %v", loan.ID, err)
	}
	s.sagaFinish(ctx, saga, SagaCompensated, nil)
	return nil
}
