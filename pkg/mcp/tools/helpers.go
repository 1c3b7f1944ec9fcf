package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

func trimString(s string) string {
	return strings.TrimSpace(s)
}

// getOptionalBool returns the boolean argument key, or defaultVal when it is
// absent or not a boolean.
func getOptionalBool(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	if args, ok := req.Params.Arguments.(map[string]any); ok {
		if val, ok := args[key].(bool); ok {
			return val
		}
	}
	return defaultVal
}

// jsonResult marshals v into a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
