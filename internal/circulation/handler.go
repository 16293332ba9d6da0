// internal/circulation/handler.go
package circulation

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type Handler struct {
	service Service
	limiter *rate.Limiter
}

func NewHandler(service Service) *Handler {
	return &Handler{
		service: service,
		limiter: rate.NewLimiter(rate.Limit(50), 100),
	}
}

// Routes wires the circulation endpoints onto a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/loans", h.handleCreateLoan)
	r.Get("/loans/{loanID}", h.handleGetLoan)
	r.Get("/loans/{loanID}/history", h.handleLoanHistory)
	r.Post("/loans/{loanID}/return", h.handleReturnLoan)
	r.Get("/sagas/{sagaID}", h.handleGetSagaState)
	return r
}

func (h *Handler) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow() {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	var req struct {
		UserID uuid.UUID `json:"user_id"`
		BookID uuid.UUID `json:"book_id"`
		Notes  string    `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	loan, err := h.service.CreateLoan(r.Context(), req.UserID, req.BookID, req.Notes)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(loan)
}

func (h *Handler) handleReturnLoan(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow() {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	loanID, err := uuid.Parse(chi.URLParam(r, "loanID"))
	if err != nil {
		http.Error(w, "invalid loan id", http.StatusBadRequest)
		return
	}

	var req struct {
		Notes string `json:"notes"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	loan, err := h.service.ReturnLoan(r.Context(), loanID, req.Notes)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loan)
}

func (h *Handler) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := uuid.Parse(chi.URLParam(r, "loanID"))
	if err != nil {
		http.Error(w, "invalid loan id", http.StatusBadRequest)
		return
	}

	loan, err := h.service.GetLoan(r.Context(), loanID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loan)
}

func (h *Handler) handleLoanHistory(w http.ResponseWriter, r *http.Request) {
	loanID, err := uuid.Parse(chi.URLParam(r, "loanID"))
	if err != nil {
		http.Error(w, "invalid loan id", http.StatusBadRequest)
		return
	}

	history, err := h.service.LoanHistory(r.Context(), loanID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(history)
}

func (h *Handler) handleGetSagaState(w http.ResponseWriter, r *http.Request) {
	sagaID, err := uuid.Parse(chi.URLParam(r, "sagaID"))
	if err != nil {
		http.Error(w, "invalid saga id", http.StatusBadRequest)
		return
	}

	state, err := h.service.GetSagaState(r.Context(), sagaID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(state)
}

// writeError maps the error taxonomy onto HTTP statuses. Retryable
// unavailability is distinguished from terminal failures so clients can act
// on it.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var validation *ValidationError
	var comp *CompensationError

	switch {
	case errors.As(err, &validation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrLoanNotFound), errors.Is(err, ErrBookNotFound), errors.Is(err, ErrSagaNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrLoanNotActive), errors.Is(err, ErrVersionConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrBookNotAvailable):
		w.Header().Set("Retry-After", "30")
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.As(err, &comp):
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
