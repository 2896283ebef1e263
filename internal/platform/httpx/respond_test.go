package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type conflictErr struct{}

func (conflictErr) Error() string   { return "stock changed" }
func (conflictErr) HTTPStatus() int { return http.StatusConflict }
func (conflictErr) Title() string   { return "Stock Race" }
func (conflictErr) Retryable() bool { return true }

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) ProblemDetail {
	t.Helper()
	var p ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestRespondErrorUsesStatusError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("wrap: %w", conflictErr{}))

	assert.Equal(t, http.StatusConflict, rec.Code)
	p := decodeProblem(t, rec)
	assert.Equal(t, "Stock Race", p.Title)
	assert.True(t, p.Retryable)
}

func TestRespondErrorFallsBackToSentinels(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("%w: bad", ErrValidation))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	RespondError(rec, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, decodeProblem(t, rec).Detail)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","extra":1}`))
	require.ErrorIs(t, DecodeJSON(req, &target), ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	require.ErrorIs(t, DecodeJSON(req, &target), ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ok"}`))
	require.NoError(t, DecodeJSON(req, &target))
	assert.Equal(t, "ok", target.Name)
}
