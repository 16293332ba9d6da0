// internal/circulation/tracking.go
package circulation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TrackingService is the append-only writer/reader over the audit log.
// Record either succeeds or returns a storage error; it never drops an entry
// silently.
type TrackingService struct {
	store     TrackingStore
	changedBy string
}

func NewTrackingService(store TrackingStore) *TrackingService {
	return &TrackingService{store: store, changedBy: "circulation-service"}
}

// Record appends one audit entry for a status transition.
func (t *TrackingService) Record(ctx context.Context, loanID uuid.UUID, status Status, notes string) error {
	entry := &TrackingEntry{
		LoanID:    loanID,
		Status:    status,
		Notes:     notes,
		ChangedBy: t.changedBy,
		CreatedAt: time.Now().UTC(),
	}
	if err := t.store.Append(ctx, entry); err != nil {
		return fmt.Errorf("record tracking for loan %s: %w", loanID, err)
	}
	return nil
}

// History returns the loan's transitions, most-recent first.
func (t *TrackingService) History(ctx context.Context, loanID uuid.UUID) ([]TrackingEntry, error) {
	entries, err := t.store.ListByLoan(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("load tracking history for loan %s: %w", loanID, err)
	}
	return entries, nil
}
