package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clinicdesk/clinicdesk/internal/shared"
)

func serveWithRoles(mw func(http.Handler) http.Handler, auth *shared.AuthorizationContext) int {
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if auth != nil {
		req = req.WithContext(shared.ContextWithAuthorization(req.Context(), *auth))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestRequireAny(t *testing.T) {
	mw := Middleware{}.RequireAny(shared.RolePharmacist, shared.RoleCashier)

	assert.Equal(t, http.StatusUnauthorized, serveWithRoles(mw, nil))
	assert.Equal(t, http.StatusForbidden, serveWithRoles(mw, &shared.AuthorizationContext{UserID: "u", Roles: []string{"doctor"}}))
	assert.Equal(t, http.StatusOK, serveWithRoles(mw, &shared.AuthorizationContext{UserID: "u", Roles: []string{"CASHIER"}}))
	assert.Equal(t, http.StatusOK, serveWithRoles(mw, &shared.AuthorizationContext{UserID: "u", Roles: []string{"admin"}}))
}

func TestNormalizeRoles(t *testing.T) {
	assert.Equal(t, []string{"pharmacist", "admin"}, normalizeRoles([]string{" Pharmacist", "pharmacist", "", "ADMIN"}))
}
