// internal/circulation/saga_state.go
package circulation

import (
	"time"

	"github.com/google/uuid"
)

// SagaType distinguishes the two workflows.
type SagaType string

const (
	SagaCreation SagaType = "creation"
	SagaReturn   SagaType = "return"
)

// SagaOutcome is the overall result of a saga invocation.
type SagaOutcome string

const (
	SagaInProgress  SagaOutcome = "in_progress"
	SagaSucceeded   SagaOutcome = "succeeded"
	SagaCompensated SagaOutcome = "compensated"
	SagaFailed      SagaOutcome = "failed"
)

// Saga step names, recorded for operational visibility.
const (
	StepPersistPending = "persist_pending"
	StepReserveCopy    = "reserve_copy"
	StepReleaseCopy    = "release_copy"
	StepFinalize       = "finalize"
	StepCompensate     = "compensate"
)

// SagaState is the durable per-invocation record of a saga. It is written at
// every step transition so a crashed saga is diagnosable after restart, and
// is queryable by id while and after the saga runs.
type SagaState struct {
	ID          uuid.UUID   `json:"saga_id" db:"id"`
	Type        SagaType    `json:"type" db:"saga_type"`
	LoanID      uuid.UUID   `json:"loan_id" db:"loan_id"`
	CurrentStep string      `json:"current_step" db:"current_step"`
	Outcome     SagaOutcome `json:"outcome" db:"outcome"`
	Error       string      `json:"error,omitempty" db:"last_error"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

// NewSagaState starts a saga record with a fresh id.
func NewSagaState(sagaType SagaType, loanID uuid.UUID) *SagaState {
	now := time.Now().UTC()
	return &SagaState{
		ID:        uuid.New(),
		Type:      sagaType,
		LoanID:    loanID,
		Outcome:   SagaInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
