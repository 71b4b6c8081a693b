package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gradeflow/internal/core"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := New("test-key", 5*time.Second)
	client.SetBaseURL(srv.URL)
	return client
}

func TestGenerateContent(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		var gotPath, gotKey string
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotKey = r.Header.Get("x-goog-api-key")

			var req map[string]any
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("request body was not valid JSON: %v", err)
			}
			if _, ok := req["safetySettings"]; !ok {
				t.Error("request missing safetySettings")
			}

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"The answer "},{"text":"is 42."}]},"finishReason":"STOP"}]}`))
		})

		text, err := client.GenerateContent(context.Background(), "gemini-3-flash-preview",
			[]Part{TextPart("grade this")}, GenerationConfig{Temperature: 0, TopP: 0.3})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if text != "The answer is 42." {
			t.Errorf("text = %q", text)
		}
		if gotPath != "/models/gemini-3-flash-preview:generateContent" {
			t.Errorf("path = %q", gotPath)
		}
		if gotKey != "test-key" {
			t.Errorf("api key header = %q", gotKey)
		}
	})

	t.Run("RateLimitIsRetryable", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
		})

		_, err := client.GenerateContent(context.Background(), "gemini-3-flash-preview",
			[]Part{TextPart("p")}, GenerationConfig{})

		var ge *core.GraderError
		if !errors.As(err, &ge) {
			t.Fatalf("expected GraderError, got %v", err)
		}
		if ge.Type != core.ErrorTypeRateLimit {
			t.Errorf("type = %s, want rate_limit_error", ge.Type)
		}
		if !ge.Retryable() {
			t.Error("rate limit must be retryable")
		}
	})

	t.Run("AuthErrorIsFatal", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error":{"message":"API key not valid"}}`))
		})

		_, err := client.GenerateContent(context.Background(), "gemini-3-flash-preview",
			[]Part{TextPart("p")}, GenerationConfig{})

		var ge *core.GraderError
		if !errors.As(err, &ge) {
			t.Fatalf("expected GraderError, got %v", err)
		}
		if ge.Type != core.ErrorTypeAuthentication {
			t.Errorf("type = %s, want authentication_error", ge.Type)
		}
		if ge.Retryable() {
			t.Error("auth errors must not be retried")
		}
	})

	t.Run("EmptyCandidateIsParseError", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"candidates":[]}`))
		})

		_, err := client.GenerateContent(context.Background(), "gemini-3-flash-preview",
			[]Part{TextPart("p")}, GenerationConfig{})

		var ge *core.GraderError
		if !errors.As(err, &ge) {
			t.Fatalf("expected GraderError, got %v", err)
		}
		if ge.Type != core.ErrorTypeParse {
			t.Errorf("type = %s, want parse_error", ge.Type)
		}
	})

	t.Run("BlockedPromptIsNotRetryable", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`))
		})

		_, err := client.GenerateContent(context.Background(), "gemini-3-flash-preview",
			[]Part{TextPart("p")}, GenerationConfig{})

		var ge *core.GraderError
		if !errors.As(err, &ge) {
			t.Fatalf("expected GraderError, got %v", err)
		}
		if ge.Type != core.ErrorTypeInvalidInput {
			t.Errorf("type = %s, want invalid_input_error", ge.Type)
		}
	})

	t.Run("TimeoutRespectsContext", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			// Drain the body so the server can observe the client
			// disconnect; otherwise srv.Close blocks on this handler.
			_, _ = io.Copy(io.Discard, r.Body)
			<-r.Context().Done()
		})

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := client.GenerateContent(ctx, "gemini-3-flash-preview",
			[]Part{TextPart("p")}, GenerationConfig{})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})
}
