package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		err      *APIError
		wantType ErrorType
		wantText string
	}{
		{NewInvalidRequestError("question", "is required"), ErrorTypeInvalidRequest, "invalid_request: is required (param: question)"},
		{NewNotFoundError("analysis not found"), ErrorTypeNotFound, "not_found: analysis not found"},
		{NewServerError("internal failure"), ErrorTypeServerError, "server_error: internal failure"},
		{NewModelError("model overloaded"), ErrorTypeModelError, "model_error: model overloaded"},
		{NewTooManyRequestsError("slow down"), ErrorTypeTooManyRequests, "too_many_requests: slow down"},
		{NewAuthenticationError("invalid key"), ErrorTypeAuthentication, "authentication_error: invalid key"},
		{NewSandboxError("runtime failed to start"), ErrorTypeSandboxError, "sandbox_error: runtime failed to start"},
		{NewTimeoutError("round 3 timed out"), ErrorTypeTimeout, "timeout: round 3 timed out"},
	}
	for _, tt := range tests {
		t.Run(string(tt.wantType), func(t *testing.T) {
			if tt.err.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", tt.err.Type, tt.wantType)
			}
			if got := tt.err.Error(); got != tt.wantText {
				t.Errorf("Error() = %q, want %q", got, tt.wantText)
			}
		})
	}
}

func TestAPIErrorUnwrapsThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("round 2: %w", NewTimeoutError("expired"))

	var apiErr *APIError
	if !errors.As(wrapped, &apiErr) {
		t.Fatal("errors.As did not find the APIError")
	}
	if apiErr.Type != ErrorTypeTimeout {
		t.Errorf("Type = %q", apiErr.Type)
	}
}

func TestErrorResponseWireShape(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		wantKeys []string
		noKeys   []string
	}{
		{
			name:     "param present",
			err:      NewInvalidRequestError("table", "ragged row"),
			wantKeys: []string{"type", "param", "message"},
			noKeys:   []string{"code"},
		},
		{
			name:     "optional fields omitted",
			err:      NewServerError("fail"),
			wantKeys: []string{"type", "message"},
			noKeys:   []string{"code", "param"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(ErrorResponse{Error: tt.err})
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			var body struct {
				Error map[string]any `json:"error"`
			}
			if err := json.Unmarshal(data, &body); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			for _, k := range tt.wantKeys {
				if _, ok := body.Error[k]; !ok {
					t.Errorf("key %q missing from %s", k, data)
				}
			}
			for _, k := range tt.noKeys {
				if _, ok := body.Error[k]; ok {
					t.Errorf("key %q should be omitted from %s", k, data)
				}
			}
		})
	}
}
