// internal/circulation/implementation.go
package circulation

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"bookcirc/internal/events"
	"bookcirc/internal/gateway"
	"bookcirc/internal/inventory"
)

// inventoryDependency is the breaker name shared by every saga that calls
// the inventory service.
const inventoryDependency = "inventory"

var sagasCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "circulation_sagas_total",
	Help: "Completed sagas by type and outcome",
}, []string{"type", "outcome"})

// service implements the Service interface.
type service struct {
	loans     LoanStore
	tracking  *TrackingService
	sagas     SagaStore
	inventory inventory.Client
	gateway   *gateway.Gateway
	publisher events.Publisher
	tracer    trace.Tracer
	now       func() time.Time
}

// NewService creates a new circulation service instance. The breaker
// registry is constructed once by the caller and shared; the service only
// holds the gateway for its own dependency.
func NewService(loans LoanStore, tracking *TrackingService, sagas SagaStore, inv inventory.Client, breakers *gateway.Registry, publisher events.Publisher) Service {
	return &service{
		loans:     loans,
		tracking:  tracking,
		sagas:     sagas,
		inventory: inv,
		gateway:   breakers.Gateway(inventoryDependency),
		publisher: publisher,
		tracer:    otel.Tracer("bookcirc/circulation"),
		now:       time.Now,
	}
}

// GetLoan retrieves a loan from the read side.
func (s *service) GetLoan(ctx context.Context, loanID uuid.UUID) (*Loan, error) {
	return s.loans.Get(ctx, loanID)
}

// LoanHistory returns the loan's audit trail, most-recent first.
func (s *service) LoanHistory(ctx context.Context, loanID uuid.UUID) ([]TrackingEntry, error) {
	return s.tracking.History(ctx, loanID)
}

// GetSagaState looks up a saga record by id. Unknown ids yield
// ErrSagaNotFound, never a panic.
func (s *service) GetSagaState(ctx context.Context, sagaID uuid.UUID) (*SagaState, error) {
	return s.sagas.Get(ctx, sagaID)
}

// MarkOverdueLoans transitions active loans past their due date to overdue
// and returns how many were marked. Intended to run from a periodic sweep.
func (s *service) MarkOverdueLoans(ctx context.Context) (int, error) {
	active, err := s.loans.ListByStatus(ctx, StatusActive)
	if err != nil {
		return 0, fmt.Errorf("list active loans: %w", err)
	}

	now := s.now()
	marked := 0
	for _, loan := range active {
		if loan.DueDate == nil || !now.After(*loan.DueDate) {
			continue
		}
		loan.Status = StatusOverdue
		if err := s.loans.Update(ctx, loan); err != nil {
			// A concurrent return saga got there first; skip it.
			if err == ErrVersionConflict {
				continue
			}
			return marked, fmt.Errorf("mark loan %s overdue: %w", loan.ID, err)
		}
		if err := s.tracking.Record(ctx, loan.ID, StatusOverdue, "overdue"); err != nil {
			log.Printf("tracking append failed for loan %s: %v", loan.ID, err)
		}
		marked++
	}
	return marked, nil
}

// sagaStep records the saga's progress before the step runs, so a crash
// mid-saga leaves a discoverable record.
func (s *service) sagaStep(ctx context.Context, state *SagaState, step string) {
	state.CurrentStep = step
	if err := s.sagas.Save(ctx, state); err != nil {
		log.Printf("saga %s: state save failed at step %s: %v", state.ID, step, err)
	}
}

// sagaFinish records the terminal outcome of a saga invocation.
func (s *service) sagaFinish(ctx context.Context, state *SagaState, outcome SagaOutcome, cause error) {
	state.Outcome = outcome
	if cause != nil {
		state.Error = cause.Error()
	}
	if err := s.sagas.Save(ctx, state); err != nil {
		log.Printf("saga %s: final state save failed: %v", state.ID, err)
	}
	sagasCompleted.WithLabelValues(string(state.Type), string(outcome)).Inc()
}

// publishAsync delivers an event off the saga's critical path. Publish
// failures are logged, never propagated: delivery guarantees belong to the
// broker, not to this core.
func (s *service) publishAsync(topic string, event events.Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.publisher.Publish(ctx, topic, event); err != nil {
			log.Printf("publish %s for loan %s failed: %v", topic, event.LoanID, err)
		}
	}()
}
