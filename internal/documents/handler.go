package documents

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/austral-erp/austral-erp/internal/platform/httpx"
)

// Handler exposes the document lifecycle over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	registry *Registry
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, registry *Registry) *Handler {
	return &Handler{logger: logger, service: service, registry: registry}
}

// MountRoutes attaches the document endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/documents", h.List)
	r.Post("/documents", h.Create)
	r.Get("/documents/{id}", h.Show)
	r.Post("/documents/{id}/confirm", h.Confirm)
	r.Post("/documents/{id}/void", h.Void)
	r.Post("/documents/{id}/authorize", h.Authorize)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	docs, err := h.service.List(r.Context(), page, perPage)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toResponse(doc, h.letterFor(doc)))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"documents": out})
}

func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	id, ok := h.docID(w, r)
	if !ok {
		return
	}
	if err := h.service.RequestAuthorization(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	doc, err := h.service.CreateDraft(r.Context(), req.toInput())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(doc, h.letterFor(doc)))
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.docID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(doc, h.letterFor(doc)))
}

func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.docID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Confirm(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(doc, h.letterFor(doc)))
}

func (h *Handler) Void(w http.ResponseWriter, r *http.Request) {
	id, ok := h.docID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Void(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(doc, h.letterFor(doc)))
}

func (h *Handler) docID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid document id", err.Error())
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) letterFor(doc Document) string {
	cfg, err := h.registry.Get(doc.DocTypeCode)
	if err != nil {
		return ""
	}
	return cfg.Letter
}
