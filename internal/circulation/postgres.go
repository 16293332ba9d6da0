// internal/circulation/postgres.go
package circulation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PostgresLoanStore persists loans with an optimistic version column.
type PostgresLoanStore struct {
	db     *sqlx.DB
	tracer trace.Tracer
}

func NewPostgresLoanStore(db *sqlx.DB) *PostgresLoanStore {
	return &PostgresLoanStore{
		db:     db,
		tracer: otel.Tracer("bookcirc/storage"),
	}
}

func (s *PostgresLoanStore) Insert(ctx context.Context, loan *Loan) error {
	ctx, span := s.tracer.Start(ctx, "loans.insert",
		trace.WithAttributes(attribute.String("loan.id", loan.ID.String())),
	)
	defer span.End()

	loan.Version = 1
	query := `
		INSERT INTO loans (id, user_id, book_id, loan_date, due_date, return_date, status, notes, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	`
	_, err := s.db.ExecContext(ctx, query,
		loan.ID, loan.UserID, loan.BookID, loan.LoanDate, loan.DueDate, loan.ReturnDate,
		loan.Status, loan.Notes, loan.Version,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("insert loan %s: %w", loan.ID, err)
	}
	return nil
}

func (s *PostgresLoanStore) Get(ctx context.Context, id uuid.UUID) (*Loan, error) {
	query := `
		SELECT id, user_id, book_id, loan_date, due_date, return_date, status, notes, version, created_at, updated_at
		FROM loans
		WHERE id = $1
	`
	loan := &Loan{}
	if err := s.db.GetContext(ctx, loan, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("get loan %s: %w", id, err)
	}
	return loan, nil
}

// Update writes the loan only if the stored version still matches, so two
// sagas racing on the same loan cannot both succeed.
func (s *PostgresLoanStore) Update(ctx context.Context, loan *Loan) error {
	ctx, span := s.tracer.Start(ctx, "loans.update",
		trace.WithAttributes(
			attribute.String("loan.id", loan.ID.String()),
			attribute.String("loan.status", string(loan.Status)),
			attribute.Int("loan.version", loan.Version),
		),
	)
	defer span.End()

	query := `
		UPDATE loans
		SET loan_date = $1, due_date = $2, return_date = $3, status = $4, notes = $5,
		    version = version + 1, updated_at = NOW()
		WHERE id = $6 AND version = $7
	`
	res, err := s.db.ExecContext(ctx, query,
		loan.LoanDate, loan.DueDate, loan.ReturnDate, loan.Status, loan.Notes,
		loan.ID, loan.Version,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("update loan %s: %w", loan.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update loan %s: %w", loan.ID, err)
	}
	if affected == 0 {
		span.RecordError(ErrVersionConflict)
		return ErrVersionConflict
	}
	loan.Version++
	return nil
}

func (s *PostgresLoanStore) ListByStatus(ctx context.Context, status Status) ([]*Loan, error) {
	query := `
		SELECT id, user_id, book_id, loan_date, due_date, return_date, status, notes, version, created_at, updated_at
		FROM loans
		WHERE status = $1
	`
	var loans []*Loan
	if err := s.db.SelectContext(ctx, &loans, query, status); err != nil {
		return nil, fmt.Errorf("list loans by status %s: %w", status, err)
	}
	return loans, nil
}

// PostgresTrackingStore is the append-only audit log table. Rows are never
// updated or deleted.
type PostgresTrackingStore struct {
	db *sqlx.DB
}

func NewPostgresTrackingStore(db *sqlx.DB) *PostgresTrackingStore {
	return &PostgresTrackingStore{db: db}
}

func (s *PostgresTrackingStore) Append(ctx context.Context, entry *TrackingEntry) error {
	query := `
		INSERT INTO loan_tracking (loan_id, status, notes, changed_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		entry.LoanID, entry.Status, entry.Notes, entry.ChangedBy, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("append tracking for loan %s: %w", entry.LoanID, err)
	}
	return nil
}

func (s *PostgresTrackingStore) ListByLoan(ctx context.Context, loanID uuid.UUID) ([]TrackingEntry, error) {
	query := `
		SELECT id, loan_id, status, notes, changed_by, created_at
		FROM loan_tracking
		WHERE loan_id = $1
		ORDER BY created_at DESC, id DESC
	`
	entries := []TrackingEntry{}
	if err := s.db.SelectContext(ctx, &entries, query, loanID); err != nil {
		return nil, fmt.Errorf("list tracking for loan %s: %w", loanID, err)
	}
	return entries, nil
}

// PostgresSagaStore keeps the durable saga records.
type PostgresSagaStore struct {
	db *sqlx.DB
}

func NewPostgresSagaStore(db *sqlx.DB) *PostgresSagaStore {
	return &PostgresSagaStore{db: db}
}

func (s *PostgresSagaStore) Save(ctx context.Context, state *SagaState) error {
	query := `
		INSERT INTO saga_states (id, saga_type, loan_id, current_step, outcome, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE
		SET current_step = EXCLUDED.current_step,
		    outcome = EXCLUDED.outcome,
		    last_error = EXCLUDED.last_error,
		    updated_at = NOW()
	`
	_, err := s.db.ExecContext(ctx, query,
		state.ID, state.Type, state.LoanID, state.CurrentStep, state.Outcome, state.Error, state.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save saga %s: %w", state.ID, err)
	}
	return nil
}

func (s *PostgresSagaStore) Get(ctx context.Context, id uuid.UUID) (*SagaState, error) {
	query := `
		SELECT id, saga_type, loan_id, current_step, outcome, last_error, created_at, updated_at
		FROM saga_states
		WHERE id = $1
	`
	state := &SagaState{}
	if err := s.db.GetContext(ctx, state, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSagaNotFound
		}
		return nil, fmt.Errorf("get saga %s: %w", id, err)
	}
	return state, nil
}
