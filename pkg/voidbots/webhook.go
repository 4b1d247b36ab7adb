package voidbots

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/fractalmind-ai/voidbots/internal/tunnel"
	"github.com/fractalmind-ai/voidbots/internal/webhook"
	"github.com/fractalmind-ai/voidbots/pkg/protocol"
)

// Tunnel publishes the local webhook port under a public URL.
type Tunnel interface {
	Open(ctx context.Context, port int) (string, error)
	Close() error
}

// StaticTunnel uses a public URL that already forwards to the webhook port.
func StaticTunnel(publicURL string) Tunnel {
	return tunnel.Static{URL: publicURL}
}

// Localtunnel publishes the webhook port through a localtunnel server; an
// empty host means the public one.
func Localtunnel(host, subdomain string) Tunnel {
	return tunnel.NewLocaltunnel(host, subdomain)
}

// Registration is the webhook URL and shared secret sent to VoidBots.
type Registration struct {
	PublicURL string
	Secret    string
}

type webhookPayload struct {
	URL  string `json:"webhook_url"`
	Auth string `json:"webhook_auth"`
}

type bridge struct {
	lifecycle webhook.Lifecycle

	mu           sync.Mutex
	closed       bool
	cancel       context.CancelFunc
	server       *webhook.Server
	tunnel       Tunnel
	registration *Registration
}

// EnableWebhook starts the vote listener, publishes it through the tunnel and
// registers the public URL and a fresh secret with VoidBots. Authenticated
// votes are then delivered to OnVoted handlers. It may be called once per
// client; later calls return ErrWebhookStarted. Close aborts an activation
// still in flight.
func (c *Client) EnableWebhook(ctx context.Context) error {
	if !c.bridge.lifecycle.Begin() {
		return ErrWebhookStarted
	}
	ctx, cancel, err := c.bridge.activate(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if err := c.tokenAvailable(); err != nil {
		return err
	}
	botID, err := c.resolveBotID()
	if err != nil {
		return err
	}

	opts := c.options.Webhook
	tun := opts.Tunnel
	if tun == nil {
		tun = Localtunnel("", "")
	}

	secret, err := webhook.GenerateSecret(webhook.SecretLength)
	if err != nil {
		return err
	}

	server, err := webhook.NewServer(opts.Port, opts.Path, secret, c.handleVote)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWebhookUnavailable, err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrWebhookUnavailable, err)
	}

	publicURL, err := tun.Open(ctx, server.Port())
	if err != nil {
		stopServer(server)
		if c.bridge.isClosed() {
			return ErrClientClosed
		}
		return fmt.Errorf("%w: tunnel: %v", ErrWebhookUnavailable, err)
	}
	if c.bridge.isClosed() {
		_ = tun.Close()
		stopServer(server)
		return ErrClientClosed
	}

	reg := &Registration{PublicURL: publicURL + server.Path(), Secret: secret}
	resp, err := c.request(ctx, http.MethodPost, "/bot/votewebhook/"+url.PathEscape(botID), webhookPayload{
		URL:  reg.PublicURL,
		Auth: reg.Secret,
	})
	if err != nil {
		_ = tun.Close()
		stopServer(server)
		if c.bridge.isClosed() {
			return ErrClientClosed
		}
		return fmt.Errorf("failed to register webhook: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	c.bridge.mu.Lock()
	if c.bridge.closed {
		c.bridge.mu.Unlock()
		_ = tun.Close()
		stopServer(server)
		return ErrClientClosed
	}
	c.bridge.server = server
	c.bridge.tunnel = tun
	c.bridge.registration = reg
	c.bridge.mu.Unlock()

	c.logger.Printf("🔗 Vote webhook registered: %s", reg.PublicURL)
	return nil
}

// Webhook returns the active registration, or nil before EnableWebhook
// succeeds.
func (c *Client) Webhook() *Registration {
	c.bridge.mu.Lock()
	defer c.bridge.mu.Unlock()
	if c.bridge.registration == nil {
		return nil
	}
	reg := *c.bridge.registration
	return &reg
}

func (c *Client) handleVote(payload protocol.Payload) {
	c.events.emitVoted(Vote{Payload: payload, ReceivedAt: time.Now().UTC()})
}

// activate derives the context for one activation; close cancels it.
func (b *bridge) activate(ctx context.Context) (context.Context, context.CancelFunc, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, nil, ErrClientClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	return ctx, cancel, nil
}

func (b *bridge) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *bridge) close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	server := b.server
	tun := b.tunnel
	b.server = nil
	b.tunnel = nil
	b.mu.Unlock()

	var errs []error
	if tun != nil {
		if err := tun.Close(); err != nil {
			errs = append(errs, fmt.Errorf("tunnel close: %w", err))
		}
	}
	if server != nil {
		if err := server.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func stopServer(server *webhook.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Stop(ctx)
}
