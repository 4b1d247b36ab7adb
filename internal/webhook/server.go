// Package webhook runs the local listener that receives vote notifications.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fractalmind-ai/voidbots/pkg/protocol"
)

const (
	DefaultPort = 5600
	DefaultPath = "/vote"

	maxVoteBody = 1 << 20
)

// ErrAlreadyStarted is returned when Start is called on a running server.
var ErrAlreadyStarted = errors.New("webhook server already started")

// VoteHandler receives the body of every authenticated vote request.
type VoteHandler func(payload protocol.Payload)

// Server accepts vote notifications authenticated by a shared secret.
type Server struct {
	port    int
	path    string
	secret  string
	onVote  VoteHandler
	router  chi.Router
	started Lifecycle

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// NewServer builds a listener for port and path. An empty path means /vote.
func NewServer(port int, path, secret string, onVote VoteHandler) (*Server, error) {
	if port < 0 {
		return nil, fmt.Errorf("invalid webhook port %d", port)
	}
	if secret == "" {
		return nil, errors.New("webhook secret is required")
	}
	if path == "" {
		path = DefaultPath
	}
	s := &Server{
		port:   port,
		path:   path,
		secret: secret,
		onVote: onVote,
	}
	s.router = s.buildRouter()
	return s, nil
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Post(s.path, s.handleVote)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return r
}

// Router exposes the HTTP handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Path returns the route votes are posted to.
func (s *Server) Path() string {
	return s.path
}

// Start binds the port and serves in the background. It may be called once.
func (s *Server) Start(ctx context.Context) error {
	if !s.started.Begin() {
		return ErrAlreadyStarted
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.port, err)
	}

	srv := &http.Server{
		Handler:           s.router,
		ErrorLog:          log.New(os.Stderr, "WEBHOOK: ", log.LstdFlags),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.mu.Lock()
	s.listener = listener
	s.httpServer = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Webhook server error: %v", err)
		}
	}()

	log.Printf("📡 Webhook server listening on %s", listener.Addr())
	return nil
}

// Port reports the bound port, which differs from the configured one when it
// was 0.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.port
	}
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return s.port
}

// Stop shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("webhook shutdown error: %w", err)
	}
	return nil
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r.Header.Get("Authorization")) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxVoteBody))
	if err != nil {
		log.Printf("Failed to read vote body: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !json.Valid(body) {
		log.Printf("Rejected vote with malformed JSON body")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if s.onVote != nil {
		s.onVote(protocol.Payload(body))
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) authorized(header string) bool {
	if header == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(header), []byte(s.secret)) == 1
}
