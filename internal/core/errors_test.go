package core

import (
	"errors"
	"net/http"
	"testing"
)

func TestParseAPIError(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantType   ErrorType
		retryable  bool
	}{
		{
			name:       "rate limit",
			statusCode: http.StatusTooManyRequests,
			body:       `{"error":{"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`,
			wantType:   ErrorTypeRateLimit,
			retryable:  true,
		},
		{
			name:       "server error",
			statusCode: http.StatusInternalServerError,
			body:       `{"error":{"message":"internal"}}`,
			wantType:   ErrorTypeUpstream,
			retryable:  true,
		},
		{
			name:       "unauthorized",
			statusCode: http.StatusUnauthorized,
			body:       `{"error":{"message":"API key not valid"}}`,
			wantType:   ErrorTypeAuthentication,
			retryable:  false,
		},
		{
			name:       "bad request",
			statusCode: http.StatusBadRequest,
			body:       `{"error":{"message":"invalid argument"}}`,
			wantType:   ErrorTypeInvalidInput,
			retryable:  false,
		},
		{
			name:       "non-json body",
			statusCode: http.StatusBadGateway,
			body:       "upstream timeout",
			wantType:   ErrorTypeUpstream,
			retryable:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ParseAPIError(tt.statusCode, []byte(tt.body), nil)
			if err.Type != tt.wantType {
				t.Errorf("type = %s, want %s", err.Type, tt.wantType)
			}
			if err.Retryable() != tt.retryable {
				t.Errorf("retryable = %v, want %v", err.Retryable(), tt.retryable)
			}
		})
	}
}

func TestParseAPIErrorExtractsMessage(t *testing.T) {
	err := ParseAPIError(429, []byte(`{"error":{"message":"slow down"}}`), nil)
	if err.Message != "slow down" {
		t.Errorf("message = %q, want %q", err.Message, "slow down")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(errors.New("connection reset")) {
		t.Error("plain errors should be treated as transient")
	}
	if IsRetryable(NewInvalidInputError("empty answer", nil)) {
		t.Error("invalid input must not be retried")
	}
	if !IsRetryable(NewParseError("bad json", nil)) {
		t.Error("parse errors should be retried")
	}
	wrapped := NewExhaustedError(3, NewRateLimitError("quota"))
	if IsRetryable(wrapped) {
		t.Error("exhausted errors must not be retried")
	}
}

func TestGradingResultClamp(t *testing.T) {
	t.Run("OverMax", func(t *testing.T) {
		r := GradingResult{Mark: 1e9, SimilarityScore: 1.5}
		r.Clamp(10)
		if r.Mark != 10 {
			t.Errorf("mark = %v, want 10", r.Mark)
		}
		if r.SimilarityScore != 1 {
			t.Errorf("similarity = %v, want 1", r.SimilarityScore)
		}
	})

	t.Run("UnderMin", func(t *testing.T) {
		r := GradingResult{Mark: -3, SimilarityScore: -5}
		r.Clamp(10)
		if r.Mark != 0 {
			t.Errorf("mark = %v, want 0", r.Mark)
		}
		if r.SimilarityScore != 0 {
			t.Errorf("similarity = %v, want 0", r.SimilarityScore)
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		r := GradingResult{Mark: 7.5, SimilarityScore: 0.8}
		r.Clamp(10)
		r.Clamp(10)
		if r.Mark != 7.5 || r.SimilarityScore != 0.8 {
			t.Errorf("in-range values changed: mark=%v similarity=%v", r.Mark, r.SimilarityScore)
		}
	})

	t.Run("Confidence", func(t *testing.T) {
		c := 2.0
		r := GradingResult{Mark: 5, Confidence: &c}
		r.Clamp(10)
		if *r.Confidence != 1 {
			t.Errorf("confidence = %v, want 1", *r.Confidence)
		}
	})
}
