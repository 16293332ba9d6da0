// internal/events/publisher.go
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Topics consumed by downstream systems (notifications, analytics).
const (
	TopicLoanCreated  = "loan.created"
	TopicLoanReturned = "loan.returned"
)

// Event is the payload published after a saga step commits. CorrelationID
// carries the saga id so downstream consumers can tie events back to the
// workflow that produced them.
type Event struct {
	EventID       uuid.UUID  `json:"event_id"`
	CorrelationID uuid.UUID  `json:"correlation_id"`
	Timestamp     time.Time  `json:"timestamp"`
	EventType     string     `json:"event_type"`
	LoanID        uuid.UUID  `json:"loan_id"`
	UserID        uuid.UUID  `json:"user_id"`
	BookID        uuid.UUID  `json:"book_id"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	ReturnDate    *time.Time `json:"return_date,omitempty"`
	WasOverdue    *bool      `json:"was_overdue,omitempty"`
}

// Publisher delivers events to downstream systems. Delivery is best-effort
// from the saga's point of view: the orchestrator publishes off the critical
// path and logs failures instead of failing the workflow. Real delivery
// guarantees belong to the broker behind the implementation.
type Publisher interface {
	Publish(ctx context.Context, topic string, event Event) error
}
