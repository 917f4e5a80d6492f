package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/rssroll/internal/model"
)

// TestWriteErrorResponse はAPIErrorがステータスコードとJSONで書き込まれることを検証する。
func TestWriteErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		apiErr     *model.APIError
	}{
		{"Forbidden", http.StatusForbidden, model.NewSSRFBlockedError()},
		{"Conflict", http.StatusConflict, model.NewChannelExistsError("http://example.com/feed.xml")},
		{"BadGateway", http.StatusBadGateway, model.NewFetchFailedError("timeout")},
		{"Unavailable", http.StatusServiceUnavailable, model.NewUnavailableError("connection refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteErrorResponse(w, tt.statusCode, tt.apiErr)

			resp := w.Result()
			if resp.StatusCode != tt.statusCode {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.statusCode)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}

			var body ErrorResponseBody
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body != NewErrorResponseBody(tt.apiErr) {
				t.Errorf("body = %+v, want %+v", body, NewErrorResponseBody(tt.apiErr))
			}
		})
	}
}

// TestErrorResponseBody_FieldNames はJSONのフィールド名を検証する。
func TestErrorResponseBody_FieldNames(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalServerError(w)

	var raw map[string]interface{}
	if err := json.NewDecoder(w.Result().Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	for _, field := range []string{"code", "message", "category", "action"} {
		if v, ok := raw[field].(string); !ok || v == "" {
			t.Errorf("missing field: %s", field)
		}
	}
	if raw["code"] != model.ErrCodeInternal {
		t.Errorf("code = %v, want %s", raw["code"], model.ErrCodeInternal)
	}
}
