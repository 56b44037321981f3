package pricing

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/austral-erp/austral-erp/internal/platform/httpx"
)

// Handler exposes effective cost resolution.
type Handler struct {
	logger   *slog.Logger
	resolver *Resolver
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, resolver *Resolver) *Handler {
	return &Handler{logger: logger, resolver: resolver}
}

// MountRoutes attaches the pricing endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/pricing/effective-cost", h.EffectiveCost)
}

type effectiveCostResponse struct {
	UnitCost string     `json:"unit_cost"`
	Currency string     `json:"currency"`
	Source   CostSource `json:"source"`
	EntryID  int64      `json:"entry_id,omitempty"`
}

func (h *Handler) EffectiveCost(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	counterpartyID, err := strconv.ParseInt(q.Get("counterparty_id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "counterparty_id must be an integer")
		return
	}
	articleID, err := strconv.ParseInt(q.Get("article_id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "article_id must be an integer")
		return
	}
	qty := decimal.NewFromInt(1)
	if raw := q.Get("quantity"); raw != "" {
		qty, err = decimal.NewFromString(raw)
		if err != nil || qty.Sign() <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid request", "quantity must be a positive number")
			return
		}
	}
	asOf := time.Now()
	if raw := q.Get("as_of"); raw != "" {
		asOf, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid request", "as_of must be RFC3339")
			return
		}
	}
	res, err := h.resolver.EffectiveCost(r.Context(), counterpartyID, articleID, qty, asOf)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, effectiveCostResponse{
		UnitCost: res.UnitCost.StringFixed(4),
		Currency: res.Currency,
		Source:   res.Source,
		EntryID:  res.EntryID,
	})
}
