package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fractalmind-ai/voidbots/pkg/protocol"
)

func newTestServer(t *testing.T, votes *[]protocol.Payload) *Server {
	t.Helper()
	srv, err := NewServer(0, "", "s3cret", func(payload protocol.Payload) {
		*votes = append(*votes, payload)
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

func TestVoteWithValidSecret(t *testing.T) {
	var votes []protocol.Payload
	srv := newTestServer(t, &votes)

	req := httptest.NewRequest(http.MethodPost, "/vote", strings.NewReader(`{"user":"123","bot":"456"}`))
	req.Header.Set("Authorization", "s3cret")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(votes) != 1 {
		t.Fatalf("expected one vote, got %d", len(votes))
	}
	if got := votes[0].Get("user").String(); got != "123" {
		t.Fatalf("expected forwarded user 123, got %q", got)
	}
	if string(votes[0]) != `{"user":"123","bot":"456"}` {
		t.Fatalf("expected verbatim body, got %s", votes[0])
	}
}

func TestVoteWithWrongSecret(t *testing.T) {
	var votes []protocol.Payload
	srv := newTestServer(t, &votes)

	for _, header := range []string{"", "wrong", "s3cret ", "S3CRET"} {
		req := httptest.NewRequest(http.MethodPost, "/vote", strings.NewReader(`{"user":"123"}`))
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		srv.Router().ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, w.Code)
		}
	}
	if len(votes) != 0 {
		t.Fatalf("expected no votes, got %d", len(votes))
	}
}

func TestVoteWithMalformedBody(t *testing.T) {
	var votes []protocol.Payload
	srv := newTestServer(t, &votes)

	req := httptest.NewRequest(http.MethodPost, "/vote", strings.NewReader(`{"user":`))
	req.Header.Set("Authorization", "s3cret")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if len(votes) != 0 {
		t.Fatalf("expected no votes, got %d", len(votes))
	}
}

func TestVoteRouteRejectsGet(t *testing.T) {
	var votes []protocol.Payload
	srv := newTestServer(t, &votes)

	req := httptest.NewRequest(http.MethodGet, "/vote", nil)
	req.Header.Set("Authorization", "s3cret")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestNewServerValidation(t *testing.T) {
	if _, err := NewServer(-1, "", "secret", nil); err == nil {
		t.Fatal("expected error for negative port")
	}
	if _, err := NewServer(5600, "", "", nil); err == nil {
		t.Fatal("expected error for empty secret")
	}
	srv, err := NewServer(5600, "", "secret", nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if srv.Path() != DefaultPath {
		t.Fatalf("expected default path, got %q", srv.Path())
	}
}

func TestStartServesAndRejectsSecondStart(t *testing.T) {
	var votes []protocol.Payload
	srv := newTestServer(t, &votes)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop(context.Background())

	if err := srv.Start(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", srv.Port()))
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestGenerateSecret(t *testing.T) {
	secret, err := GenerateSecret(SecretLength)
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	if len(secret) != SecretLength {
		t.Fatalf("expected %d chars, got %d", SecretLength, len(secret))
	}
	for _, ch := range secret {
		if !strings.ContainsRune(secretAlphabet, ch) {
			t.Fatalf("unexpected character %q in %q", ch, secret)
		}
	}

	other, err := GenerateSecret(SecretLength)
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	if other == secret {
		t.Fatal("expected distinct secrets")
	}

	if _, err := GenerateSecret(0); err == nil {
		t.Fatal("expected error for zero length")
	}
}

func TestLifecycle(t *testing.T) {
	var l Lifecycle
	if l.State() != NotStarted {
		t.Fatalf("expected NotStarted, got %s", l.State())
	}
	if !l.Begin() {
		t.Fatal("expected first Begin to succeed")
	}
	if l.Begin() {
		t.Fatal("expected second Begin to fail")
	}
	if l.State() != Started {
		t.Fatalf("expected Started, got %s", l.State())
	}
}
