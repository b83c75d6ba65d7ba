package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name       string
		errorClass ErrorClass
		expected   bool
	}{
		{"client error should not retry", ErrorClassClient, false},
		{"server error should retry", ErrorClassServer, true},
		{"rate limit should retry", ErrorClassRateLimit, true},
		{"network error should retry", ErrorClassNetwork, true},
		{"cancelled should not retry", ErrorClassCancelled, false},
		{"empty error class should not retry", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := shouldRetry(tt.errorClass)
			if result != tt.expected {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.errorClass, result, tt.expected)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status   int
		expected ErrorClass
	}{
		{200, ""},
		{400, ErrorClassClient},
		{401, ErrorClassClient},
		{404, ErrorClassClient},
		{429, ErrorClassRateLimit},
		{500, ErrorClassServer},
		{503, ErrorClassServer},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			if got := classifyStatus(tt.status); got != tt.expected {
				t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.expected)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"nil", nil, ""},
		{"context canceled", context.Canceled, ErrorClassCancelled},
		{"wrapped context canceled", fmt.Errorf("fetch: %w", context.Canceled), ErrorClassCancelled},
		{"retry cancelled", fmt.Errorf("%w: boom", ErrContextCancelled), ErrorClassCancelled},
		{"rate limited", ErrRateLimited, ErrorClassRateLimit},
		{"api client error", &APIError{StatusCode: 404, ErrorClass: ErrorClassClient}, ErrorClassClient},
		{"api server error wrapped", fmt.Errorf("page 2: %w", &APIError{StatusCode: 502, ErrorClass: ErrorClassServer}), ErrorClassServer},
		{"plain error", io.ErrUnexpectedEOF, ErrorClassNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.expected {
				t.Errorf("Classify() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		apiError *APIError
		expected string
	}{
		{
			name: "error with wrapped error",
			apiError: &APIError{
				Method:     "GET",
				Path:       "/api/contests",
				ErrorClass: ErrorClassNetwork,
				Message:    "transport failure",
				Err:        io.EOF,
			},
			expected: "GET /api/contests: network error (status 0): transport failure: EOF",
		},
		{
			name: "error without wrapped error",
			apiError: &APIError{
				Method:     "PUT",
				Path:       "/api/admin/users/7/role",
				StatusCode: 403,
				ErrorClass: ErrorClassClient,
				Message:    "forbidden",
			},
			expected: "PUT /api/admin/users/7/role: client error (status 403): forbidden",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.apiError.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	wrapped := errors.New("dial tcp: connection refused")
	apiErr := &APIError{ErrorClass: ErrorClassNetwork, Err: wrapped}

	if !errors.Is(apiErr, wrapped) {
		t.Error("errors.Is should find the wrapped error")
	}

	var target *APIError
	if !errors.As(fmt.Errorf("outer: %w", apiErr), &target) {
		t.Fatal("errors.As should find *APIError")
	}
	if target.ErrorClass != ErrorClassNetwork {
		t.Errorf("ErrorClass = %q, want network", target.ErrorClass)
	}
}

func TestStatusCode(t *testing.T) {
	if got := StatusCode(fmt.Errorf("x: %w", &APIError{StatusCode: 404})); got != 404 {
		t.Errorf("StatusCode() = %d, want 404", got)
	}
	if got := StatusCode(io.EOF); got != 0 {
		t.Errorf("StatusCode() = %d, want 0", got)
	}
}
