// internal/circulation/domain.go
package circulation

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a loan.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusOverdue   Status = "overdue"
	StatusReturned  Status = "returned"
	StatusCancelled Status = "cancelled"
)

// LoanPeriod is how long a borrowed copy may be kept.
const LoanPeriod = 14 * 24 * time.Hour

// validTransitions encodes the loan state machine. Active is reachable only
// after a remote reservation succeeded; returned only from an active or
// overdue loan; cancelled is terminal. The returned->cancelled edge exists
// solely for the return saga's compensation, which undoes a tentative return.
var validTransitions = map[Status][]Status{
	StatusPending:  {StatusActive, StatusCancelled},
	StatusActive:   {StatusOverdue, StatusReturned, StatusCancelled},
	StatusOverdue:  {StatusReturned, StatusCancelled},
	StatusReturned: {StatusCancelled},
}

// ValidTransition reports whether a loan may move from one status to another.
func ValidTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions leave the status.
func (s Status) Terminal() bool {
	return len(validTransitions[s]) == 0
}

// Loan represents one borrow instance. The availability count for the book
// lives in the remote inventory service; the loan record only ever reaches
// active after that service confirmed a reservation.
type Loan struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	UserID     uuid.UUID  `json:"user_id" db:"user_id"`
	BookID     uuid.UUID  `json:"book_id" db:"book_id"`
	LoanDate   *time.Time `json:"loan_date,omitempty" db:"loan_date"`
	DueDate    *time.Time `json:"due_date,omitempty" db:"due_date"`
	ReturnDate *time.Time `json:"return_date,omitempty" db:"return_date"`
	Status     Status     `json:"status" db:"status"`
	Notes      string     `json:"notes,omitempty" db:"notes"`
	Version    int        `json:"version" db:"version"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// TrackingEntry is one immutable audit record of a status transition.
// Entries are append-only and never updated or deleted.
type TrackingEntry struct {
	ID        int64     `json:"id" db:"id"`
	LoanID    uuid.UUID `json:"loan_id" db:"loan_id"`
	Status    Status    `json:"status" db:"status"`
	Notes     string    `json:"notes" db:"notes"`
	ChangedBy string    `json:"changed_by" db:"changed_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
