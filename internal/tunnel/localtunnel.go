package tunnel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	localtunnel "github.com/localtunnel/go-localtunnel"
)

const (
	DefaultLocaltunnelHost = "https://localtunnel.me"

	defaultOpenTimeout = 45 * time.Second
)

// Localtunnel publishes a local port through a localtunnel server.
type Localtunnel struct {
	Host      string
	Subdomain string
	LocalHost string
	// OpenTimeout bounds the lease and the first pooled connection.
	OpenTimeout time.Duration

	mu     sync.Mutex
	opened bool
	lt     *localtunnel.LocalTunnel
}

// NewLocaltunnel creates a tunnel against host, or the public localtunnel
// server when host is empty.
func NewLocaltunnel(host, subdomain string) *Localtunnel {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		host = DefaultLocaltunnelHost
	}
	return &Localtunnel{
		Host:        host,
		Subdomain:   strings.TrimSpace(subdomain),
		LocalHost:   "127.0.0.1",
		OpenTimeout: defaultOpenTimeout,
	}
}

type openResult struct {
	lt  *localtunnel.LocalTunnel
	err error
}

// Open leases a public URL and starts forwarding to port. The forwarding
// goroutines outlive ctx; they stop on Close.
func (l *Localtunnel) Open(ctx context.Context, port int) (string, error) {
	if port <= 0 {
		return "", fmt.Errorf("invalid local port %d", port)
	}

	l.mu.Lock()
	if l.opened {
		l.mu.Unlock()
		return "", errors.New("localtunnel already open")
	}
	l.opened = true
	l.mu.Unlock()

	timeout := l.OpenTimeout
	if timeout <= 0 {
		timeout = defaultOpenTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := localtunnel.Options{
		Subdomain: l.Subdomain,
		BaseURL:   l.Host,
		Log:       log.New(log.Writer(), "🚇 localtunnel: ", log.Flags()),
	}

	// The library neither takes a context nor gives up on an unreachable
	// tunnel port, so the handshake runs aside and is abandoned on ctx.
	results := make(chan openResult, 1)
	go func() {
		lt, err := localtunnel.New(port, l.LocalHost, opts)
		results <- openResult{lt: lt, err: err}
	}()

	var res openResult
	select {
	case res = <-results:
	case <-ctx.Done():
		go func() {
			if late := <-results; late.lt != nil {
				_ = late.lt.Close()
			}
		}()
		l.reset()
		return "", fmt.Errorf("localtunnel handshake: %w", ctx.Err())
	}
	if res.err != nil {
		l.reset()
		return "", fmt.Errorf("localtunnel: %w", res.err)
	}

	publicURL := strings.TrimRight(res.lt.URL(), "/")
	if publicURL == "" {
		_ = res.lt.Close()
		l.reset()
		return "", errors.New("localtunnel lease is missing a url")
	}

	l.mu.Lock()
	l.lt = res.lt
	l.mu.Unlock()

	log.Printf("🚇 Localtunnel %s -> %s:%d", publicURL, l.LocalHost, port)
	return publicURL, nil
}

// Close stops all forwarding connections.
func (l *Localtunnel) Close() error {
	l.mu.Lock()
	lt := l.lt
	l.lt = nil
	l.mu.Unlock()

	if lt == nil {
		return nil
	}
	if err := lt.Close(); err != nil && !errors.Is(err, localtunnel.ErrListenerClosed) {
		return err
	}
	return nil
}

func (l *Localtunnel) reset() {
	l.mu.Lock()
	l.opened = false
	l.mu.Unlock()
}
