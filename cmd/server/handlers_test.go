package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lychee-technology/tabula"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEngine returns canned values; only the calls a test exercises matter.
type stubEngine struct {
	tabula.TemplateEngine

	createResult *tabula.MutationResult
	createErr    error
	record       *tabula.Record
	recordErr    error
	types        []tabula.TypeInfo
}

func (s *stubEngine) CreateTemplate(_ context.Context, _ *tabula.Template, _ []*tabula.Field) (*tabula.MutationResult, error) {
	return s.createResult, s.createErr
}

func (s *stubEngine) GetRecord(_ context.Context, _, _, _ string, _ int64) (*tabula.Record, error) {
	return s.record, s.recordErr
}

func (s *stubEngine) FieldTypes() []tabula.TypeInfo {
	return s.types
}

func newTestServer(engine tabula.TemplateEngine) *Server {
	server := NewServer(engine, nil)
	server.RegisterRoutes()
	return server
}

func TestHandleHealth(t *testing.T) {
	t.Run("no checker", func(t *testing.T) {
		server := newTestServer(&stubEngine{})

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		server.mux.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("failing checker", func(t *testing.T) {
		server := NewServer(&stubEngine{}, func(ctx context.Context) error {
			return assert.AnError
		})
		server.RegisterRoutes()

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		server.mux.ServeHTTP(rec, req)

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestHandleFieldTypes(t *testing.T) {
	server := newTestServer(&stubEngine{
		types: []tabula.TypeInfo{{Type: "string", Label: "String"}},
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/field_types", nil)
	server.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"string"`)
}

func TestHandleCreateTemplate_ScopesTenantFromPath(t *testing.T) {
	server := newTestServer(&stubEngine{
		createResult: &tabula.MutationResult{OK: true, ID: 7},
	})

	body := `{"template": {"name": "invoice"}, "fields": [{"name": "amount", "type": "integer"}]}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/acme/erp/templates", strings.NewReader(body))
	server.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":7`)
}

func TestHandleCreateTemplate_ValidationErrorIs400(t *testing.T) {
	server := newTestServer(&stubEngine{
		createErr: tabula.NewValidationError("name", "name 'Bad Name' is not valid"),
	})

	body := `{"template": {"name": "Bad Name"}}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/acme/erp/templates", strings.NewReader(body))
	server.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "not valid")
}

func TestHandleCreateTemplate_MissingBody(t *testing.T) {
	server := newTestServer(&stubEngine{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/acme/erp/templates", strings.NewReader(`{}`))
	server.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "template is required")
}

func TestHandleGetRecord_NotFoundIs404(t *testing.T) {
	server := newTestServer(&stubEngine{
		recordErr: tabula.NewTabulaError(tabula.ErrorTypeNotFound, tabula.ErrCodeRecordNotFound, "record #9 not found"),
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/acme/erp/records/invoice/9", nil)
	server.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetRecord_InvalidID(t *testing.T) {
	server := newTestServer(&stubEngine{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/acme/erp/records/invoice/abc", nil)
	server.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetRecord_Success(t *testing.T) {
	server := newTestServer(&stubEngine{
		record: &tabula.Record{"id": int64(3), "amount": 120},
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/acme/erp/records/invoice/3", nil)
	server.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"amount":120`)
}
