package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dq/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dq/pkg/auth"
	"github.com/ekaya-inc/ekaya-dq/pkg/models"
	"github.com/ekaya-inc/ekaya-dq/pkg/testhelpers"
)

type mockMetadataService struct {
	result    *models.IntegrationResult
	info      *models.EnhancedTableInfo
	err       error
	gotOpts   models.IntegrationOptions
	gotConnID string
	gotTable  string
}

func (m *mockMetadataService) GetIntegratedMetadata(ctx context.Context, connectionID string, opts models.IntegrationOptions) (*models.IntegrationResult, error) {
	m.gotConnID = connectionID
	m.gotOpts = opts
	return m.result, m.err
}

func (m *mockMetadataService) GetEnhancedTableInfo(ctx context.Context, connectionID, tableName string) (*models.EnhancedTableInfo, error) {
	m.gotConnID = connectionID
	m.gotTable = tableName
	return m.info, m.err
}

type allowAuthService struct {
	allowed string
}

func (a allowAuthService) ValidateRequest(r *http.Request) (*auth.Claims, string, error) {
	if r.Header.Get("Authorization") == "" {
		return nil, "", auth.ErrMissingAuthorization
	}
	return &auth.Claims{Connections: []string{a.allowed}}, "token", nil
}

func (a allowAuthService) AuthorizeConnection(claims *auth.Claims, connectionID string) error {
	if !claims.AllowsConnection(connectionID) {
		return auth.ErrConnectionForbidden
	}
	return nil
}

func successResult() *models.IntegrationResult {
	snapshot := models.EmptySnapshot("wh")
	snapshot.Tables = []models.Table{{Name: "orders", RowCount: 500, HealthScore: 70}}
	snapshot.Freshness = models.Freshness{Status: models.FreshnessFresh}
	return &models.IntegrationResult{Success: true, Data: snapshot, Errors: []string{}, Freshness: snapshot.Freshness}
}

func decodeAPI(t *testing.T, rec *httptest.ResponseRecorder, data any) ApiResponse {
	t.Helper()
	var raw struct {
		ApiResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return raw.ApiResponse
}

func TestMetadataHandler_GetIntegrated_Success(t *testing.T) {
	service := &mockMetadataService{result: successResult()}
	handler := NewMetadataHandler(service, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/connections/wh/metadata", nil)
	req.SetPathValue("cid", "wh")
	rec := httptest.NewRecorder()
	handler.GetIntegrated(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var result models.IntegrationResult
	resp := decodeAPI(t, rec, &result)
	assert.True(t, resp.Success)
	require.Len(t, result.Data.Tables, 1)
	assert.Equal(t, "orders", result.Data.Tables[0].Name)

	assert.Equal(t, "wh", service.gotConnID)
	assert.Equal(t, models.DefaultIntegrationOptions(), service.gotOpts)
}

func TestMetadataHandler_GetIntegrated_QueryFlags(t *testing.T) {
	service := &mockMetadataService{result: successResult()}
	handler := NewMetadataHandler(service, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/connections/wh/metadata?include_columns=false&include_statistics=0&force_fresh=true", nil)
	req.SetPathValue("cid", "wh")
	rec := httptest.NewRecorder()
	handler.GetIntegrated(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.IntegrationOptions{IncludeColumns: false, IncludeStatistics: false, ForceFresh: true}, service.gotOpts)
}

func TestMetadataHandler_GetIntegrated_InvalidFlag(t *testing.T) {
	handler := NewMetadataHandler(&mockMetadataService{result: successResult()}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/connections/wh/metadata?force_fresh=maybe", nil)
	req.SetPathValue("cid", "wh")
	rec := httptest.NewRecorder()
	handler.GetIntegrated(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_parameter", body["error"])
	assert.Contains(t, body["message"], "force_fresh")
}

func TestMetadataHandler_GetIntegrated_TablesUnavailable(t *testing.T) {
	failed := &models.IntegrationResult{
		Success:   false,
		Data:      models.EmptySnapshot("wh"),
		Errors:    []string{"tables: backend returned 503"},
		Freshness: models.Freshness{Status: models.FreshnessError},
	}
	handler := NewMetadataHandler(&mockMetadataService{result: failed}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/connections/wh/metadata", nil)
	req.SetPathValue("cid", "wh")
	rec := httptest.NewRecorder()
	handler.GetIntegrated(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var result models.IntegrationResult
	resp := decodeAPI(t, rec, &result)
	assert.False(t, resp.Success)
	assert.Equal(t, "tables_unavailable", resp.Error)
	assert.Equal(t, "tables: backend returned 503", resp.Message)
	assert.NotNil(t, result.Data, "result still attached")
	assert.Equal(t, models.FreshnessError, result.Freshness.Status)
}

func TestMetadataHandler_GetIntegrated_InvalidInput(t *testing.T) {
	service := &mockMetadataService{err: fmt.Errorf("%w: connection ID is required", apperrors.ErrInvalidInput)}
	handler := NewMetadataHandler(service, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/connections/%20/metadata", nil)
	req.SetPathValue("cid", " ")
	rec := httptest.NewRecorder()
	handler.GetIntegrated(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetadataHandler_GetTable(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"found", nil, http.StatusOK, ""},
		{"not found", fmt.Errorf("table %q: %w", "missing", apperrors.ErrNotFound), http.StatusNotFound, "table_not_found"},
		{"tables unavailable", fmt.Errorf("%w: tables: down", apperrors.ErrTablesUnavailable), http.StatusBadGateway, "tables_unavailable"},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &mockMetadataService{err: tt.err}
			if tt.err == nil {
				service.info = &models.EnhancedTableInfo{
					Table:      models.Table{Name: "orders"},
					Columns:    []models.Column{{TableName: "orders", Name: "id"}},
					Statistics: []models.Statistic{},
				}
			}
			handler := NewMetadataHandler(service, zap.NewNop())

			req := httptest.NewRequest(http.MethodGet, "/api/connections/wh/metadata/tables/orders", nil)
			req.SetPathValue("cid", "wh")
			req.SetPathValue("tableName", "orders")
			rec := httptest.NewRecorder()
			handler.GetTable(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "orders", service.gotTable)
			if tt.wantCode != "" {
				var body map[string]string
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tt.wantCode, body["error"])
				return
			}

			var info models.EnhancedTableInfo
			resp := decodeAPI(t, rec, &info)
			assert.True(t, resp.Success)
			assert.Equal(t, "orders", info.Table.Name)
			assert.Len(t, info.Columns, 1)
		})
	}
}

func TestMetadataHandler_RegisterRoutes_EnforcesConnectionAccess(t *testing.T) {
	service := &mockMetadataService{result: successResult()}
	mux := http.NewServeMux()
	middleware := auth.NewMiddleware(allowAuthService{allowed: "wh"}, zap.NewNop())
	NewMetadataHandler(service, zap.NewNop()).RegisterRoutes(mux, middleware)

	tests := []struct {
		name       string
		path       string
		authHeader string
		wantStatus int
	}{
		{"allowed", "/api/connections/wh/metadata", "Bearer token", http.StatusOK},
		{"no token", "/api/connections/wh/metadata", "", http.StatusUnauthorized},
		{"other connection", "/api/connections/crm/metadata", "Bearer token", http.StatusForbidden},
		{"table route", "/api/connections/crm/metadata/tables/orders", "Bearer token", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestMetadataHandler_RegisterRoutes_DevModeTokens(t *testing.T) {
	jwksClient, err := auth.NewJWKSClient(context.Background(), &auth.JWKSConfig{
		EnableVerification: false,
		Audience:           "dq",
	})
	require.NoError(t, err)
	authMiddleware := auth.NewMiddleware(auth.NewAuthService(jwksClient, zap.NewNop()), zap.NewNop())

	service := &mockMetadataService{result: successResult()}
	mux := http.NewServeMux()
	NewMetadataHandler(service, zap.NewNop()).RegisterRoutes(mux, authMiddleware)

	tests := []struct {
		name       string
		path       string
		authHeader string
		wantStatus int
	}{
		{"scoped token", "/api/connections/wh/metadata", testhelpers.GenerateTestJWTWithBearer("analyst", "wh"), http.StatusOK},
		{"unscoped token", "/api/connections/crm/metadata", testhelpers.GenerateTestJWTWithBearer("admin"), http.StatusOK},
		{"out of scope", "/api/connections/crm/metadata", testhelpers.GenerateTestJWTWithBearer("analyst", "wh"), http.StatusForbidden},
		{"garbage token", "/api/connections/wh/metadata", "Bearer not-a-jwt", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("Authorization", tt.authHeader)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}
