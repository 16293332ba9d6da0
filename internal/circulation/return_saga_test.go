// internal/circulation/return_saga_test.go
package circulation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookcirc/internal/events"
	"bookcirc/internal/inventory"
)

// seedActiveLoan inserts an active loan directly, bypassing the creation saga.
func seedActiveLoan(t *testing.T, env *testEnv, due time.Time) *Loan {
	t.Helper()
	loanDate := due.Add(-LoanPeriod)
	loan := &Loan{
		ID:       uuid.New(),
		UserID:   uuid.New(),
		BookID:   uuid.New(),
		LoanDate: &loanDate,
		DueDate:  &due,
		Status:   StatusActive,
	}
	require.NoError(t, env.loans.Insert(context.Background(), loan))
	return loan
}

func TestCreateThenReturnRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	created, err := env.svc.CreateLoan(context.Background(), uuid.New(), uuid.New(), "")
	require.NoError(t, err)

	returned, err := env.svc.ReturnLoan(context.Background(), created.ID, "")
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, returned.Status)
	require.NotNil(t, returned.ReturnDate)

	// Exactly two tracking entries, created then returned, most-recent first.
	history := env.history(t, created.ID)
	require.Len(t, history, 2)
	assert.Equal(t, StatusReturned, history[0].Status)
	assert.Equal(t, "returned", history[0].Notes)
	assert.Equal(t, StatusActive, history[1].Status)
	assert.Equal(t, "created", history[1].Notes)

	borrows, returns := env.inv.counts()
	assert.Equal(t, 1, borrows)
	assert.Equal(t, 1, returns)

	require.Eventually(t, func() bool {
		return len(env.publisher.ByTopic(events.TopicLoanReturned)) == 1
	}, time.Second, 10*time.Millisecond)
	ev := env.publisher.ByTopic(events.TopicLoanReturned)[0]
	assert.Equal(t, created.ID, ev.LoanID)
	require.NotNil(t, ev.WasOverdue)
	assert.False(t, *ev.WasOverdue)
}

func TestReturnLoanNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.ReturnLoan(context.Background(), uuid.New(), "")
	require.ErrorIs(t, err, ErrLoanNotFound)

	// Absent loan aborts the saga before any state mutation.
	assert.Empty(t, env.sagas.All())
	_, returns := env.inv.counts()
	assert.Zero(t, returns)
}

func TestReturnLoanNotActive(t *testing.T) {
	env := newTestEnv(t)

	created, err := env.svc.CreateLoan(context.Background(), uuid.New(), uuid.New(), "")
	require.NoError(t, err)
	_, err = env.svc.ReturnLoan(context.Background(), created.ID, "")
	require.NoError(t, err)

	_, err = env.svc.ReturnLoan(context.Background(), created.ID, "")
	require.ErrorIs(t, err, ErrLoanNotActive)
}

func TestReturnCompensatesWhenReleaseFails(t *testing.T) {
	env := newTestEnv(t)
	loan := seedActiveLoan(t, env, time.Now().Add(7*24*time.Hour))
	env.inv.returnErr = &inventory.TransientError{Op: "return", Cause: errors.New("unexpected status code: 503")}

	_, err := env.svc.ReturnLoan(context.Background(), loan.ID, "")
	require.ErrorIs(t, err, ErrBookNotAvailable)

	// Compensation re-asserts the reservation exactly once.
	borrows, returns := env.inv.counts()
	assert.Equal(t, 1, borrows)
	assert.Equal(t, 1, returns)

	stored, err := env.loans.Get(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status)

	history := env.history(t, loan.ID)
	require.Len(t, history, 1)
	assert.Equal(t, StatusCancelled, history[0].Status)
	assert.Equal(t, "cancelled: return failed", history[0].Notes)

	sagas := env.sagas.All()
	require.Len(t, sagas, 1)
	assert.Equal(t, SagaReturn, sagas[0].Type)
	assert.Equal(t, SagaCompensated, sagas[0].Outcome)
}

func TestReturnCompensationFailureIsFatal(t *testing.T) {
	env := newTestEnv(t)
	loan := seedActiveLoan(t, env, time.Now().Add(7*24*time.Hour))
	env.inv.returnErr = &inventory.TransientError{Op: "return", Cause: errors.New("timeout")}
	env.inv.borrowErr = &inventory.TransientError{Op: "borrow", Cause: errors.New("timeout")}

	_, err := env.svc.ReturnLoan(context.Background(), loan.ID, "")

	var comp *CompensationError
	require.ErrorAs(t, err, &comp)
	assert.Equal(t, loan.ID, comp.LoanID)
	assert.False(t, Retryable(err), "a failed compensation must not look retryable")

	sagas := env.sagas.All()
	require.Len(t, sagas, 1)
	assert.Equal(t, SagaFailed, sagas[0].Outcome)
	assert.NotEmpty(t, sagas[0].Error)
}

func TestMarkOverdueLoans(t *testing.T) {
	env := newTestEnv(t)
	overdue := seedActiveLoan(t, env, time.Now().Add(-24*time.Hour))
	current := seedActiveLoan(t, env, time.Now().Add(7*24*time.Hour))

	marked, err := env.svc.MarkOverdueLoans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	stored, err := env.loans.Get(context.Background(), overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOverdue, stored.Status)

	untouched, err := env.loans.Get(context.Background(), current.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, untouched.Status)
}

func TestReturnOverdueLoan(t *testing.T) {
	env := newTestEnv(t)
	loan := seedActiveLoan(t, env, time.Now().Add(-24*time.Hour))

	marked, err := env.svc.MarkOverdueLoans(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, marked)

	returned, err := env.svc.ReturnLoan(context.Background(), loan.ID, "")
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, returned.Status)

	history := env.history(t, loan.ID)
	require.Len(t, history, 2)
	assert.Equal(t, "returned overdue", history[0].Notes)
	assert.Equal(t, "overdue", history[1].Notes)

	require.Eventually(t, func() bool {
		return len(env.publisher.ByTopic(events.TopicLoanReturned)) == 1
	}, time.Second, 10*time.Millisecond)
	ev := env.publisher.ByTopic(events.TopicLoanReturned)[0]
	require.NotNil(t, ev.WasOverdue)
	assert.True(t, *ev.WasOverdue)
}

func TestConcurrentReturnsOnlyOneSucceeds(t *testing.T) {
	env := newTestEnv(t)
	loan := seedActiveLoan(t, env, time.Now().Add(7*24*time.Hour))

	// Simulate the race: a stale copy of the loan loses its update.
	a, err := env.loans.Get(context.Background(), loan.ID)
	require.NoError(t, err)
	b, err := env.loans.Get(context.Background(), loan.ID)
	require.NoError(t, err)

	now := time.Now()
	a.Status = StatusReturned
	a.ReturnDate = &now
	require.NoError(t, env.loans.Update(context.Background(), a))

	b.Status = StatusReturned
	b.ReturnDate = &now
	require.ErrorIs(t, env.loans.Update(context.Background(), b), ErrVersionConflict)
}
