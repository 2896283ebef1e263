package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/clinicdesk/clinicdesk/internal/platform/httpx"
	"github.com/clinicdesk/clinicdesk/internal/rbac"
	"github.com/clinicdesk/clinicdesk/internal/shared"
)

// Handler exposes the drug catalog and stock ledger over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the inventory handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.RolePharmacist, shared.RoleCashier, shared.RoleDoctor))
		r.Get("/", h.listEntries)
		r.Get("/low", h.listLowStock)
		r.Get("/{entryID}", h.getEntry)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.RolePharmacist))
		r.Post("/", h.createEntry)
		r.Patch("/{entryID}", h.updateEntry)
		r.Post("/{entryID}/restock", h.restock)
	})
}

type listResponse struct {
	Data       []Entry           `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	page, perPage = shared.NormalizePage(page, perPage)
	entries, total, err := h.service.List(r.Context(), ListFilter{
		Search:       q.Get("search"),
		LowStockOnly: q.Get("low") == "true",
		Limit:        perPage,
		Offset:       shared.Offset(page, perPage),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: entries, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) listLowStock(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.LowStock(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": entries})
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.Get(r.Context(), chi.URLParam(r, "entryID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) createEntry(w http.ResponseWriter, r *http.Request) {
	var input CreateEntryInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.CreateEntry(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) updateEntry(w http.ResponseWriter, r *http.Request) {
	var input UpdateEntryInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.UpdateEntry(r.Context(), chi.URLParam(r, "entryID"), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) restock(w http.ResponseWriter, r *http.Request) {
	var input RestockInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.Restock(r.Context(), chi.URLParam(r, "entryID"), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrEntryNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidEntry), errors.Is(err, ErrInvalidAmount):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	default:
		h.logger.Error("inventory request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
