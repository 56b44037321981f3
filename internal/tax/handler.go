package tax

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/austral-erp/austral-erp/internal/platform/httpx"
)

// Handler exposes the what-if tax preview.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes attaches the tax endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/taxes/preview", h.Preview)
}

type previewItemRequest struct {
	ArticleID  int64           `json:"article_id" validate:"required,gt=0"`
	CategoryID int64           `json:"category_id"`
	Quantity   decimal.Decimal `json:"quantity" validate:"required"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

type previewRequest struct {
	DocTypeCode string               `json:"doc_type" validate:"required"`
	Scope       Scope                `json:"scope" validate:"required,oneof=sale purchase"`
	AsOf        time.Time            `json:"as_of"`
	Items       []previewItemRequest `json:"items" validate:"required,min=1,dive"`
}

type previewResponse struct {
	Subtotal string            `json:"subtotal"`
	Taxes    map[string]string `json:"taxes"`
	Total    string            `json:"total"`
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}
	items := make([]PreviewItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, PreviewItem{
			ArticleID:  it.ArticleID,
			CategoryID: it.CategoryID,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
		})
	}
	result, err := h.service.Preview(r.Context(), items, req.DocTypeCode, req.Scope, asOf)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := previewResponse{
		Subtotal: result.Subtotal.StringFixed(2),
		Taxes:    map[string]string{},
		Total:    result.Total.StringFixed(2),
	}
	for name, amount := range result.Breakdown {
		resp.Taxes[name] = amount.StringFixed(2)
	}
	httpx.JSON(w, http.StatusOK, resp)
}
