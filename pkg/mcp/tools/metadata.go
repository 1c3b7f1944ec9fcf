package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dq/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dq/pkg/auth"
	"github.com/ekaya-inc/ekaya-dq/pkg/models"
	"github.com/ekaya-inc/ekaya-dq/pkg/services"
)

// MetadataToolDeps contains dependencies for the metadata tools.
type MetadataToolDeps struct {
	MetadataService services.MetadataIntegrationService
	Logger          *zap.Logger
}

// RegisterMetadataTools registers get_integrated_metadata and get_table_info.
func RegisterMetadataTools(s *server.MCPServer, deps *MetadataToolDeps) {
	registerGetIntegratedMetadataTool(s, deps)
	registerGetTableInfoTool(s, deps)
}

func registerGetIntegratedMetadataTool(s *server.MCPServer, deps *MetadataToolDeps) {
	tool := mcp.NewTool(
		"get_integrated_metadata",
		mcp.WithDescription(
			"Get the integrated metadata snapshot for a connection: tables with row counts, health scores, "+
				"primary keys and column type distribution, plus columns, per-column statistics and a summary. "+
				"Partial failures are listed in 'errors'; freshness is the worst of the fetches made.",
		),
		mcp.WithString(
			"connection_id",
			mcp.Required(),
			mcp.Description("Connection ID to integrate metadata for"),
		),
		mcp.WithBoolean(
			"include_columns",
			mcp.Description("Optional - Fetch column metadata (default true)"),
		),
		mcp.WithBoolean(
			"include_statistics",
			mcp.Description("Optional - Fetch column statistics (default true)"),
		),
		mcp.WithBoolean(
			"force_fresh",
			mcp.Description("Optional - Bypass caches and request fresh metadata (default false)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		connectionID, errResult := requireConnection(ctx, req)
		if errResult != nil {
			return errResult, nil
		}

		opts := models.IntegrationOptions{
			IncludeColumns:    getOptionalBool(req, "include_columns", true),
			IncludeStatistics: getOptionalBool(req, "include_statistics", true),
			ForceFresh:        getOptionalBool(req, "force_fresh", false),
		}

		result, err := deps.MetadataService.GetIntegratedMetadata(ctx, connectionID, opts)
		if err != nil {
			if errors.Is(err, apperrors.ErrInvalidInput) {
				return NewErrorResult("invalid_parameters", err.Error()), nil
			}
			return nil, fmt.Errorf("integrate metadata for %s: %w", connectionID, err)
		}

		if !result.Success {
			deps.Logger.Info("get_integrated_metadata: tables unavailable",
				zap.String("connection_id", connectionID),
				zap.Strings("errors", result.Errors))
			return NewErrorResultWithDetails("tables_unavailable",
				"table metadata could not be fetched for this connection",
				map[string]any{"errors": result.Errors, "freshness": result.Freshness}), nil
		}

		return jsonResult(result)
	})
}

func registerGetTableInfoTool(s *server.MCPServer, deps *MetadataToolDeps) {
	tool := mcp.NewTool(
		"get_table_info",
		mcp.WithDescription(
			"Get one table from the integrated metadata snapshot with its columns and statistics. "+
				"Example: get_table_info(connection_id='warehouse', table='orders')",
		),
		mcp.WithString(
			"connection_id",
			mcp.Required(),
			mcp.Description("Connection ID the table belongs to"),
		),
		mcp.WithString(
			"table",
			mcp.Required(),
			mcp.Description("Exact table name (e.g., 'orders')"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		connectionID, errResult := requireConnection(ctx, req)
		if errResult != nil {
			return errResult, nil
		}

		table, err := req.RequireString("table")
		if err != nil {
			return NewErrorResult("invalid_parameters", "parameter 'table' is required"), nil
		}
		table = trimString(table)
		if table == "" {
			return NewErrorResult("invalid_parameters", "parameter 'table' cannot be empty"), nil
		}

		info, err := deps.MetadataService.GetEnhancedTableInfo(ctx, connectionID, table)
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			return NewErrorResult("table_not_found",
				fmt.Sprintf("table %q not found for connection %q", table, connectionID)), nil
		case errors.Is(err, apperrors.ErrTablesUnavailable):
			return NewErrorResult("tables_unavailable", strings.TrimPrefix(err.Error(), apperrors.ErrTablesUnavailable.Error()+": ")), nil
		case errors.Is(err, apperrors.ErrInvalidInput):
			return NewErrorResult("invalid_parameters", err.Error()), nil
		case err != nil:
			return nil, fmt.Errorf("get table %s for %s: %w", table, connectionID, err)
		}

		return jsonResult(info)
	})
}

// requireConnection reads connection_id and checks it against the caller's
// conns claim when the request is authenticated.
func requireConnection(ctx context.Context, req mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	connectionID, err := req.RequireString("connection_id")
	if err != nil {
		return "", NewErrorResult("invalid_parameters", "parameter 'connection_id' is required")
	}
	connectionID = trimString(connectionID)
	if connectionID == "" {
		return "", NewErrorResult("invalid_parameters", "parameter 'connection_id' cannot be empty")
	}

	if claims, ok := auth.GetClaims(ctx); ok && !claims.AllowsConnection(connectionID) {
		return "", NewErrorResult("forbidden", fmt.Sprintf("token does not grant access to connection %q", connectionID))
	}
	return connectionID, nil
}
