// internal/circulation/errors.go
package circulation

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrLoanNotFound: the loan id is unknown. Terminal, no state mutated.
	ErrLoanNotFound = errors.New("loan not found")

	// ErrBookNotFound: inventory does not know the book id. Terminal and
	// non-retryable; the creation saga compensates before raising it.
	ErrBookNotFound = errors.New("book not found")

	// ErrBookNotAvailable: the reservation could not be made because the
	// inventory dependency is unavailable (timeout, 5xx or open breaker).
	// Retryable by the caller after compensation has run.
	ErrBookNotAvailable = errors.New("book not available")

	// ErrLoanNotActive: the loan is not in a returnable state.
	ErrLoanNotActive = errors.New("loan is not active")

	// ErrVersionConflict: a concurrent saga mutated the loan first.
	ErrVersionConflict = errors.New("loan version conflict")

	// ErrSagaNotFound: the saga id is unknown.
	ErrSagaNotFound = errors.New("saga not found")
)

// ValidationError rejects malformed input before any state mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// CompensationError means the compensating action itself failed, leaving
// local and remote state potentially inconsistent. It is fatal and
// non-retryable; resolving it requires out-of-band reconciliation, so it is
// a distinct type from ordinary unavailability and is logged accordingly.
type CompensationError struct {
	SagaID uuid.UUID
	LoanID uuid.UUID
	Step   string
	Cause  error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("saga %s: compensation %q failed for loan %s: %v", e.SagaID, e.Step, e.LoanID, e.Cause)
}

func (e *CompensationError) Unwrap() error { return e.Cause }

// Retryable reports whether the caller may usefully retry the command.
func Retryable(err error) bool {
	var comp *CompensationError
	if errors.As(err, &comp) {
		return false
	}
	return errors.Is(err, ErrBookNotAvailable)
}
