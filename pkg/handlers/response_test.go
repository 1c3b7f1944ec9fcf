package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		errorCode  string
		message    string
	}{
		{"bad request", http.StatusBadRequest, "invalid_parameter", "include_columns must be a boolean"},
		{"not found", http.StatusNotFound, "table_not_found", "table \"orders\" not found"},
		{"bad gateway", http.StatusBadGateway, "tables_unavailable", "tables: backend returned 503"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			if err := ErrorResponse(w, tt.statusCode, tt.errorCode, tt.message); err != nil {
				t.Fatalf("ErrorResponse returned error: %v", err)
			}

			resp := w.Result()
			defer resp.Body.Close()

			if resp.StatusCode != tt.statusCode {
				t.Errorf("status code = %d, want %d", resp.StatusCode, tt.statusCode)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want %q", ct, "application/json")
			}

			var body map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response body: %v", err)
			}
			if body["error"] != tt.errorCode {
				t.Errorf("body[error] = %q, want %q", body["error"], tt.errorCode)
			}
			if body["message"] != tt.message {
				t.Errorf("body[message] = %q, want %q", body["message"], tt.message)
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: map[string]int{"tables": 3}}); err != nil {
		t.Fatalf("WriteJSON returned error: %v", err)
	}

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}

	var body struct {
		Success bool           `json:"success"`
		Data    map[string]int `json:"data"`
		Error   *string        `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if !body.Success || body.Data["tables"] != 3 {
		t.Errorf("unexpected body %+v", body)
	}
	if body.Error != nil {
		t.Error("expected error field to be omitted")
	}
}
