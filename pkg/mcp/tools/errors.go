package tools

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

// ErrorResponse represents a structured error in tool results.
// Actionable errors are returned as successful tool results flagged
// IsError so the client sees the code and message.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for errors the caller can act on (bad parameters, unknown table,
// upstream unavailable). Internal failures still return Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}
