// internal/inventory/client.go
package inventory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is the sentinel matched by errors.Is when the inventory
// service does not know the book id.
var ErrNotFound = errors.New("book not found in inventory")

// NotFoundError is the concrete not-found error carrying the book id. It is
// an application-level rejection: the dependency answered, so it must not
// count against the circuit breaker.
type NotFoundError struct {
	BookID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("book %s not found in inventory", e.BookID)
}

// NotFound marks the error for gateway outcome classification.
func (e *NotFoundError) NotFound() bool { return true }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// TransientError wraps faults that are expected to clear on their own:
// timeouts, connection errors and 5xx responses. Only these count against
// the circuit breaker's failure rate.
type TransientError struct {
	Op    string
	Cause error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("inventory %s: %v", e.Op, e.Cause)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// Transient marks the error for breaker failure classification.
func (e *TransientError) Transient() bool { return true }

// Client performs the remote reserve/release calls against the inventory
// service, which owns the count of available copies.
type Client interface {
	BorrowBook(ctx context.Context, bookID uuid.UUID) error
	ReturnBook(ctx context.Context, bookID uuid.UUID) error
}

// HTTPClient is the concrete transport client. Circuit breaking is layered
// on top by the gateway, not here.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) BorrowBook(ctx context.Context, bookID uuid.UUID) error {
	return c.post(ctx, "borrow", bookID)
}

func (c *HTTPClient) ReturnBook(ctx context.Context, bookID uuid.UUID) error {
	return c.post(ctx, "return", bookID)
}

func (c *HTTPClient) post(ctx context.Context, op string, bookID uuid.UUID) error {
	url := fmt.Sprintf("%s/books/%s/%s", c.baseURL, bookID, op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// Connection refused, DNS failure, deadline exceeded: all transient.
		return &TransientError{Op: op, Cause: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusNoContent:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return &NotFoundError{BookID: bookID}
	case resp.StatusCode >= http.StatusInternalServerError,
		resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusConflict:
		return &TransientError{Op: op, Cause: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	default:
		return fmt.Errorf("inventory %s: unexpected status code: %d", op, resp.StatusCode)
	}
}
