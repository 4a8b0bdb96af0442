// Package llm tests document the expected behavior of the analysis client.
//
// Test requirements (this file serves as documentation):
// - Client posts the built request and returns the raw body
// - Client classifies non-success statuses with user-friendly messages
// - Client retries transient failures only when enabled
// - Client never retries authentication failures
// - Client stops as soon as its context is cancelled
package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"

	"github.com/gauthierbraillon/threadlens/internal/thread"
)

func testRequest(t *testing.T, endpoint string) *Request {
	t.Helper()
	req, err := NewBuilder(Settings{Endpoint: endpoint, APIKey: "sk-test"}).Build([]thread.Comment{
		thread.NewComment("1", "First reply in the thread", "alice", 1, 0, 0, 0),
	})
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	return req
}

func noWait() backoff.BackOff { return &backoff.ZeroBackOff{} }

func TestClient_Complete_PostsRequest(t *testing.T) {
	var gotMethod, gotPath, gotAuth, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	}))
	defer server.Close()

	body, err := NewClient().Complete(context.Background(), testRequest(t, server.URL))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("expected POST, got %s", gotMethod)
	}
	if gotPath != "/v1/chat/completions" {
		t.Errorf("expected completions path, got %s", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("expected bearer credential, got %q", gotAuth)
	}
	if !strings.Contains(gotBody, `"model":"gpt-4"`) {
		t.Errorf("body should carry the model, got %s", gotBody)
	}
	if !strings.Contains(string(body), "choices") {
		t.Errorf("raw response body should be returned, got %s", body)
	}
}

func TestAC403_AnalysisAPI_ReturnsUserFriendlyErrorOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Service temporarily unavailable"))
	}))
	defer server.Close()

	_, err := NewClient().Complete(context.Background(), testRequest(t, server.URL))

	if err == nil {
		t.Fatal("user should see error message when the analysis API is down")
	}
	errMsg := strings.ToLower(err.Error())
	if !strings.Contains(errMsg, "api") {
		t.Errorf("error should mention the API for user clarity, got: %v", err)
	}
	if !strings.Contains(errMsg, "service temporarily unavailable") {
		t.Errorf("error should include the service's own message, got: %v", err)
	}
}

func TestAC404_AnalysisAPI_ReturnsUserFriendlyErrorOnAuthFailure(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"Invalid API key"}}`))
		}))

		_, err := NewClient().Complete(context.Background(), testRequest(t, server.URL))
		server.Close()

		if err == nil {
			t.Fatalf("status %d: user should see error when authentication fails", status)
		}
		errMsg := strings.ToLower(err.Error())
		if !strings.Contains(errMsg, "auth") && !strings.Contains(errMsg, "denied") && !strings.Contains(errMsg, "key") {
			t.Errorf("status %d: error should indicate an authentication issue, got: %v", status, err)
		}
	}
}

func TestAC405_AnalysisAPI_HandlesRateLimitGracefully(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := NewClient().Complete(context.Background(), testRequest(t, server.URL))

	if err == nil {
		t.Fatal("user should see error when rate limit exceeded")
	}
	var te *TransportError
	if !errors.As(err, &te) || te.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected TransportError with status 429, got %v", err)
	}
	if !strings.Contains(strings.ToLower(err.Error()), "rate limit") {
		t.Errorf("error should indicate rate limiting, got: %v", err)
	}
}

// TestAC406_AnalysisAPI_QuotesLongErrorBodyOnRuneBoundary verifies a long
// error body is cut without splitting a multi-byte character.
func TestAC406_AnalysisAPI_QuotesLongErrorBodyOnRuneBoundary(t *testing.T) {
	body := strings.Repeat("a", maxErrorBody-1) + strings.Repeat("é", 10)

	err := handleAPIError(http.StatusBadGateway, []byte(body))

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %T", err)
	}
	if !utf8.ValidString(te.Body) {
		t.Errorf("quoted body should stay valid UTF-8, got %q", te.Body[len(te.Body)-8:])
	}
	if !strings.HasSuffix(te.Body, "a...") {
		t.Errorf("body should be cut before the split character, got suffix %q", te.Body[len(te.Body)-8:])
	}
	if len(te.Body) > maxErrorBody+len("...") {
		t.Errorf("quoted body too long: %d bytes", len(te.Body))
	}
}

func TestClient_Complete_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"summary":"ok"}`))
	}))
	defer server.Close()

	client := NewClient(WithMaxRetries(3), WithBackOff(noWait))
	body, err := client.Complete(context.Background(), testRequest(t, server.URL))

	if err != nil {
		t.Fatalf("transient failures should be retried, got: %v", err)
	}
	if string(body) != `{"summary":"ok"}` {
		t.Errorf("expected final body, got %s", body)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestClient_Complete_NeverRetriesAuthFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(WithMaxRetries(5), WithBackOff(noWait))
	_, err := client.Complete(context.Background(), testRequest(t, server.URL))

	if err == nil {
		t.Fatal("expected authentication error")
	}
	if calls.Load() != 1 {
		t.Errorf("authentication failures must not be retried, got %d attempts", calls.Load())
	}
}

func TestClient_Complete_SingleAttemptByDefault(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewClient().Complete(context.Background(), testRequest(t, server.URL))

	if err == nil {
		t.Fatal("expected server error")
	}
	if calls.Load() != 1 {
		t.Errorf("retries are opt-in, got %d attempts", calls.Load())
	}
}

func TestClient_Complete_StopsWhenContextCancelled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	client := NewClient(WithMaxRetries(3), WithBackOff(noWait))
	_, err := client.Complete(ctx, testRequest(t, server.URL))

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTransportError_Retryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{0, true},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusUnauthorized, false},
		{http.StatusForbidden, false},
		{http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		if got := (&TransportError{StatusCode: tt.status}).Retryable(); got != tt.want {
			t.Errorf("status %d: Retryable() = %v, want %v", tt.status, got, tt.want)
		}
	}
}
