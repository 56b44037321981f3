package treasury

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/austral-erp/austral-erp/internal/platform/db"
	"github.com/austral-erp/austral-erp/internal/platform/httpx"
	"github.com/austral-erp/austral-erp/internal/shared"
)

// Handler exposes fund movements over HTTP.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	pool        *pgxpool.Pool
	idempotency *shared.IdempotencyStore
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, pool *pgxpool.Pool, idempotency *shared.IdempotencyStore) *Handler {
	return &Handler{logger: logger, service: service, pool: pool, idempotency: idempotency}
}

// MountRoutes attaches the treasury endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/treasury/movements", h.Apply)
	r.Post("/treasury/movements/{id}/revert", h.Revert)
}

type applyRequest struct {
	DocumentID uuid.UUID       `json:"document_id" validate:"required"`
	Kind       Kind            `json:"kind" validate:"required,oneof=receipt payment"`
	AccountID  int64           `json:"account_id" validate:"required,gt=0"`
	Amount     decimal.Decimal `json:"amount" validate:"required"`
	Currency   string          `json:"currency" validate:"required,len=3"`
}

type movementResponse struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	Kind       Kind      `json:"kind"`
	AccountID  int64     `json:"account_id"`
	Amount     string    `json:"amount"`
	Currency   string    `json:"currency"`
	State      State     `json:"state"`
}

func toMovementResponse(m Movement) movementResponse {
	return movementResponse{
		ID:         m.ID,
		DocumentID: m.DocumentID,
		Kind:       m.Kind,
		AccountID:  m.AccountID,
		Amount:     m.Amount.StringFixed(2),
		Currency:   m.Currency,
		State:      m.State,
	}
}

// Apply posts a movement. An Idempotency-Key header makes retried requests
// safe: a replay returns 409 without posting twice.
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	key := r.Header.Get("Idempotency-Key")
	if key != "" {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, "treasury"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Duplicate request", "this idempotency key was already processed")
				return
			}
			httpx.RespondError(w, err)
			return
		}
	}
	var movement Movement
	err := db.WithTx(r.Context(), h.pool, func(tx pgx.Tx) error {
		var err error
		movement, err = h.service.Apply(r.Context(), tx, ApplyInput{
			DocumentID: req.DocumentID,
			Kind:       req.Kind,
			AccountID:  req.AccountID,
			Amount:     req.Amount,
			Currency:   req.Currency,
		})
		return err
	})
	if err != nil {
		if key != "" {
			if delErr := h.idempotency.Delete(r.Context(), key); delErr != nil {
				h.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", delErr))
			}
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toMovementResponse(movement))
}

func (h *Handler) Revert(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid movement id", err.Error())
		return
	}
	err = db.WithTx(r.Context(), h.pool, func(tx pgx.Tx) error {
		return h.service.Revert(r.Context(), tx, id)
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "reverted"})
}
