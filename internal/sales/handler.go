package sales

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clinicdesk/clinicdesk/internal/platform/httpx"
	"github.com/clinicdesk/clinicdesk/internal/rbac"
	"github.com/clinicdesk/clinicdesk/internal/shared"
)

// Handler exposes the sale operations over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the sales handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.RolePharmacist, shared.RoleCashier, shared.RoleDoctor))
		r.Get("/", h.listSales)
		r.Get("/{saleID}", h.getSale)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.RolePharmacist, shared.RoleCashier))
		r.Post("/", h.createSale)
		r.Put("/{saleID}", h.editSale)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.RolePharmacist))
		r.Delete("/{saleID}", h.voidSale)
	})
}

type listResponse struct {
	Data       []Sale            `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Source:        Source(q.Get("source")),
		PaymentStatus: PaymentStatus(q.Get("paymentStatus")),
		DrugOrderID:   q.Get("drugOrderId"),
		Patient:       q.Get("patient"),
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("perPage"))
	var err error
	if filter.From, err = parseDate(q.Get("from"), false); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from: "+err.Error())
		return
	}
	if filter.To, err = parseDate(q.Get("to"), true); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to: "+err.Error())
		return
	}

	sales, total, err := h.service.ListSales(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{
		Data:       sales,
		Pagination: shared.NewPagination(filter.Page, filter.PerPage, total),
	})
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	sale, err := h.service.GetSale(r.Context(), chi.URLParam(r, "saleID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var input CreateSaleInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.RecordedBy = actor(r)
	input.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))

	sale, err := h.service.CreateSale(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/sales/"+sale.SaleID)
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) editSale(w http.ResponseWriter, r *http.Request) {
	var input EditSaleInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.RecordedBy = actor(r)

	sale, err := h.service.EditSale(r.Context(), chi.URLParam(r, "saleID"), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) voidSale(w http.ResponseWriter, r *http.Request) {
	if err := h.service.VoidSale(r.Context(), chi.URLParam(r, "saleID")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch KindOf(err) {
	case KindPersistenceFailure, "":
		h.logger.Error("sales request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func actor(r *http.Request) string {
	authCtx, _ := shared.AuthorizationFromContext(r.Context())
	return authCtx.Actor()
}

// parseDate accepts RFC3339 or a plain date. A plain end date covers the whole day.
func parseDate(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24 * time.Hour)
	}
	return t, nil
}
