package stock

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/austral-erp/austral-erp/internal/platform/httpx"
)

// Handler exposes the stock read endpoints. The card is a read model derived
// from the ledger, so it talks to the repository directly; balances go
// through the service.
type Handler struct {
	logger  *slog.Logger
	service *Service
	repo    *Repository
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, repo *Repository) *Handler {
	return &Handler{logger: logger, service: service, repo: repo}
}

// MountRoutes attaches the stock endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock/card", h.Card)
	r.Get("/stock/balance", h.Balance)
}

// Balance returns the current on-hand quantity for one (article, warehouse)
// pair.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	articleID, err := strconv.ParseInt(q.Get("article_id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "article_id must be an integer")
		return
	}
	warehouseID, err := strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "warehouse_id must be an integer")
		return
	}
	quantity, err := h.service.BalanceOf(r.Context(), articleID, warehouseID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"article_id":   articleID,
		"warehouse_id": warehouseID,
		"quantity":     quantity.String(),
	})
}

type cardEntryResponse struct {
	EntryID    string    `json:"entry_id"`
	PostedAt   time.Time `json:"posted_at"`
	SourceType string    `json:"source_type"`
	SourceID   string    `json:"source_id"`
	QtyIn      string    `json:"qty_in"`
	QtyOut     string    `json:"qty_out"`
	Balance    string    `json:"balance"`
}

func (h *Handler) Card(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	articleID, err := strconv.ParseInt(q.Get("article_id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "article_id must be an integer")
		return
	}
	filter := CardFilter{ArticleID: articleID, Limit: 100}
	if raw := q.Get("warehouse_id"); raw != "" {
		filter.WarehouseID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid request", "warehouse_id must be an integer")
			return
		}
	}
	if raw := q.Get("from"); raw != "" {
		filter.From, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid request", "from must be RFC3339")
			return
		}
	}
	if raw := q.Get("to"); raw != "" {
		filter.To, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid request", "to must be RFC3339")
			return
		}
	}
	if raw := q.Get("limit"); raw != "" {
		filter.Limit, err = strconv.Atoi(raw)
		if err != nil || filter.Limit <= 0 || filter.Limit > 500 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid request", "limit must be between 1 and 500")
			return
		}
	}
	entries, err := h.repo.GetStockCard(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]cardEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, cardEntryResponse{
			EntryID:    e.EntryID.String(),
			PostedAt:   e.PostedAt,
			SourceType: e.SourceType,
			SourceID:   e.SourceID.String(),
			QtyIn:      e.QtyIn.String(),
			QtyOut:     e.QtyOut.String(),
			Balance:    e.Balance.String(),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": out})
}
