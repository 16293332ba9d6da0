// internal/circulation/creation_saga.go
package circulation

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"bookcirc/internal/events"
	"bookcirc/internal/gateway"
)

// CreateLoan drives the loan creation saga: persist a pending loan, reserve
// a copy through the protected inventory call, then either finalize the loan
// as active or compensate to cancelled. The loan is never left pending as
// the saga's final observable state.
func (s *service) CreateLoan(ctx context.Context, userID, bookID uuid.UUID, notes string) (*Loan, error) {
	if userID == uuid.Nil {
		return nil, &ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	if bookID == uuid.Nil {
		return nil, &ValidationError{Field: "book_id", Reason: "must not be empty"}
	}

	loan := &Loan{
		ID:     uuid.New(),
		UserID: userID,
		BookID: bookID,
		Notes:  notes,
		Status: StatusPending,
	}
	saga := NewSagaState(SagaCreation, loan.ID)

	ctx, span := s.tracer.Start(ctx, "circulation.create_loan",
		trace.WithAttributes(
			attribute.String("saga.id", saga.ID.String()),
			attribute.String("loan.id", loan.ID.String()),
			attribute.String("book.id", bookID.String()),
		),
	)
	defer span.End()

	// Step 1: commit the pending loan before any remote call, so a crash
	// mid-saga leaves discoverable state.
	s.sagaStep(ctx, saga, StepPersistPending)
	if err := s.loans.Insert(ctx, loan); err != nil {
		span.RecordError(err)
		s.sagaFinish(ctx, saga, SagaFailed, err)
		return nil, fmt.Errorf("persist pending loan: %w", err)
	}

	// Step 2: reserve a copy through the circuit-breaking gateway.
	s.sagaStep(ctx, saga, StepReserveCopy)
	outcome, callErr := s.gateway.Call(ctx, func(ctx context.Context) error {
		return s.inventory.BorrowBook(ctx, bookID)
	})

	switch outcome {
	case gateway.Ok:
		return s.finalizeCreation(ctx, saga, loan)
	case gateway.NotFound:
		err := s.compensateCreation(ctx, saga, loan, "cancelled: book not found")
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("book %s: %w", bookID, ErrBookNotFound)
	default:
		span.RecordError(callErr)
		err := s.compensateCreation(ctx, saga, loan, "cancelled: service unavailable")
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("book %s: %w", bookID, ErrBookNotAvailable)
	}
}

func (s *service) finalizeCreation(ctx context.Context, saga *SagaState, loan *Loan) (*Loan, error) {
	s.sagaStep(ctx, saga, StepFinalize)

	now := s.now()
	due := now.Add(LoanPeriod)
	loan.LoanDate = &now
	loan.DueDate = &due
	loan.Status = StatusActive

	if err := s.loans.Update(ctx, loan); err != nil {
		// The copy is reserved remotely but the loan could not be
		// activated locally. Surface it loudly for reconciliation.
		log.Printf("CRITICAL: saga %s: loan %s activation failed after reservation: %v", saga.ID, loan.ID, err)
		s.sagaFinish(ctx, saga, SagaFailed, err)
		return nil, fmt.Errorf("activate loan %s: %w", loan.ID, err)
	}

	if err := s.tracking.Record(ctx, loan.ID, StatusActive, "created"); err != nil {
		log.Printf("tracking append failed for loan %s: %v", loan.ID, err)
	}

	s.publishAsync(events.TopicLoanCreated, events.Event{
		EventID:       uuid.New(),
		CorrelationID: saga.ID,
		Timestamp:     now,
		EventType:     "LoanCreated",
		LoanID:        loan.ID,
		UserID:        loan.UserID,
		BookID:        loan.BookID,
		DueDate:       loan.DueDate,
	})

	s.sagaFinish(ctx, saga, SagaSucceeded, nil)
	return loan, nil
}

// compensateCreation cancels the pending loan after a failed reservation.
// The compensation is purely local; if the cancel write itself fails the
// saga raises a CompensationError instead of leaving the failure silent.
func (s *service) compensateCreation(ctx context.Context, saga *SagaState, loan *Loan, reason string) error {
	s.sagaStep(ctx, saga, StepCompensate)

	loan.Status = StatusCancelled
	if err := s.loans.Update(ctx, loan); err != nil {
		compErr := &CompensationError{SagaID: saga.ID, LoanID: loan.ID, Step: StepCompensate, Cause: err}
		log.Printf("CRITICAL: %v", compErr)
		s.sagaFinish(ctx, saga, SagaFailed, compErr)
		return compErr
	}
	if err := s.tracking.Record(ctx, loan.ID, StatusCancelled, reason); err != nil {
		log.Printf("tracking append failed for loan %s: %v", loan.ID, err)
	}
	s.sagaFinish(ctx, saga, SagaCompensated, nil)
	return nil
}
