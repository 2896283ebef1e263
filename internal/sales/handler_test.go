package sales

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/clinicdesk/internal/platform/httpx"
	"github.com/clinicdesk/clinicdesk/internal/rbac"
	"github.com/clinicdesk/clinicdesk/internal/shared"
)

func newTestRouter(f *fixture, roles ...string) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithAuthorization(req.Context(), shared.AuthorizationContext{UserID: "u-7", Roles: roles})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/sales", NewHandler(f.service.logger, f.service, rbac.Middleware{}).MountRoutes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCreateEditVoid(t *testing.T) {
	f := newFixture()
	f.ledger.seed("A", "Amoxicillin", 10, "5.00")
	router := newTestRouter(f, shared.RolePharmacist)

	rec := do(t, router, http.MethodPost, "/sales", `{"items":[{"drugId":"A","quantity":4}],"patientName":"Jane"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, "/sales/SAL000001", rec.Header().Get("Location"))
	var created Sale
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "u-7", created.RecordedBy)
	require.True(t, dec("20").Equal(created.Total))

	rec = do(t, router, http.MethodPut, "/sales/SAL000001", `{"items":[{"drugId":"A","quantity":2}],"paymentStatus":"paid"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, 8, f.ledger.qty("A"))

	rec = do(t, router, http.MethodGet, "/sales/SAL000001", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"paymentStatus":"paid"`)

	rec = do(t, router, http.MethodDelete, "/sales/SAL000001", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, 10, f.ledger.qty("A"))

	rec = do(t, router, http.MethodGet, "/sales/SAL000001", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerMapsStockErrors(t *testing.T) {
	f := newFixture()
	f.ledger.seed("A", "Amoxicillin", 3, "5.00")
	router := newTestRouter(f, shared.RoleCashier)

	rec := do(t, router, http.MethodPost, "/sales", `{"items":[{"drugId":"A","quantity":4}]}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, string(KindInsufficientStock), problem.Title)
	require.False(t, problem.Retryable)

	rec = do(t, router, http.MethodPost, "/sales", `{"items":[{"drugId":"Z","quantity":1}]}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodPost, "/sales", `{"items":[],"bogus":true}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerIdempotencyHeaderIsPassed(t *testing.T) {
	f := newFixture()
	f.ledger.seed("A", "Amoxicillin", 3, "5.00")
	idem := &keyedIdempotency{seen: map[string]bool{}}
	f.service.idem = idem
	router := newTestRouter(f, shared.RoleCashier)

	rec := do(t, router, http.MethodPost, "/sales", `{"items":[{"drugId":"A","quantity":1}]}`, "Idempotency-Key", "abc")
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, router, http.MethodPost, "/sales", `{"items":[{"drugId":"A","quantity":1}]}`, "Idempotency-Key", "abc")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, 2, f.ledger.qty("A"))
}

func TestHandlerRoles(t *testing.T) {
	f := newFixture()
	f.ledger.seed("A", "Amoxicillin", 3, "5.00")

	doctor := newTestRouter(f, shared.RoleDoctor)
	rec := do(t, doctor, http.MethodPost, "/sales", `{"items":[{"drugId":"A","quantity":1}]}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(t, doctor, http.MethodGet, "/sales?source=otc&page=1&perPage=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"perPage":10`)

	cashier := newTestRouter(f, shared.RoleCashier)
	rec = do(t, cashier, http.MethodDelete, "/sales/SAL000001", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, cashier, http.MethodGet, "/sales?from=not-a-date", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
