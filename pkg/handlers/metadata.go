package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dq/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dq/pkg/auth"
	"github.com/ekaya-inc/ekaya-dq/pkg/logging"
	"github.com/ekaya-inc/ekaya-dq/pkg/models"
	"github.com/ekaya-inc/ekaya-dq/pkg/services"
)

// MetadataHandler serves integrated metadata snapshots.
type MetadataHandler struct {
	metadataService services.MetadataIntegrationService
	logger          *zap.Logger
}

// NewMetadataHandler creates a new metadata handler.
func NewMetadataHandler(metadataService services.MetadataIntegrationService, logger *zap.Logger) *MetadataHandler {
	return &MetadataHandler{
		metadataService: metadataService,
		logger:          logger,
	}
}

// RegisterRoutes registers the metadata routes. Every route is
// connection-scoped and requires a token whose conns claim covers {cid}.
func (h *MetadataHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	requireConn := authMiddleware.RequireConnectionAccess("cid")
	mux.HandleFunc("GET /api/connections/{cid}/metadata", requireConn(h.GetIntegrated))
	mux.HandleFunc("GET /api/connections/{cid}/metadata/tables/{tableName}", requireConn(h.GetTable))
}

// GetIntegrated handles GET /api/connections/{cid}/metadata
// Query flags: include_columns (default true), include_statistics (default
// true), force_fresh (default false).
func (h *MetadataHandler) GetIntegrated(w http.ResponseWriter, r *http.Request) {
	connectionID := r.PathValue("cid")

	opts, err := parseIntegrationOptions(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}

	result, err := h.metadataService.GetIntegratedMetadata(r.Context(), connectionID, opts)
	if err != nil {
		h.handleServiceError(w, r, connectionID, err)
		return
	}

	if !result.Success {
		response := ApiResponse{
			Success: false,
			Data:    result,
			Error:   "tables_unavailable",
			Message: strings.Join(result.Errors, "; "),
		}
		if err := WriteJSON(w, http.StatusBadGateway, response); err != nil {
			h.logger.Error("Failed to write response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetTable handles GET /api/connections/{cid}/metadata/tables/{tableName}
func (h *MetadataHandler) GetTable(w http.ResponseWriter, r *http.Request) {
	connectionID := r.PathValue("cid")
	tableName := r.PathValue("tableName")

	info, err := h.metadataService.GetEnhancedTableInfo(r.Context(), connectionID, tableName)
	if err != nil {
		h.handleServiceError(w, r, connectionID, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: info}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *MetadataHandler) handleServiceError(w http.ResponseWriter, r *http.Request, connectionID string, err error) {
	msg := logging.SanitizeError(err)
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, "invalid_request", msg)
	case errors.Is(err, apperrors.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "table_not_found", msg)
	case errors.Is(err, apperrors.ErrTablesUnavailable):
		h.writeError(w, http.StatusBadGateway, "tables_unavailable", msg)
	case errors.Is(err, context.DeadlineExceeded):
		h.writeError(w, http.StatusGatewayTimeout, "timeout", "Metadata request timed out")
	case errors.Is(err, context.Canceled):
		h.logger.Debug("Client cancelled metadata request",
			zap.String("connection_id", connectionID),
			zap.String("path", r.URL.Path))
	default:
		h.logger.Error("Metadata request failed",
			zap.String("connection_id", connectionID),
			zap.String("error", msg))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to integrate metadata")
	}
}

func (h *MetadataHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func parseIntegrationOptions(r *http.Request) (models.IntegrationOptions, error) {
	opts := models.DefaultIntegrationOptions()
	query := r.URL.Query()

	flags := []struct {
		name string
		dst  *bool
	}{
		{"include_columns", &opts.IncludeColumns},
		{"include_statistics", &opts.IncludeStatistics},
		{"force_fresh", &opts.ForceFresh},
	}
	for _, f := range flags {
		raw := query.Get(f.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, fmt.Errorf("%s must be a boolean", f.name)
		}
		*f.dst = v
	}
	return opts, nil
}
