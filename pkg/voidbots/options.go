package voidbots

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/fractalmind-ai/voidbots/internal/webhook"
)

const (
	// DefaultBaseURL is the VoidBots API endpoint.
	DefaultBaseURL = "https://api.voidbots.net"
	// DefaultStatsInterval is used when Options.StatsInterval is zero.
	DefaultStatsInterval = 30 * time.Minute
	// MinStatsInterval is the shortest accepted Options.StatsInterval.
	MinStatsInterval = 15 * time.Minute
)

// Options configures autoposting and the vote webhook.
type Options struct {
	// AutoPost posts stats once the bot client is ready, then every StatsInterval.
	AutoPost bool
	// StatsInterval defaults to DefaultStatsInterval.
	StatsInterval time.Duration
	// WebhookEnabled starts the vote webhook once the bot client is ready.
	WebhookEnabled bool
	Webhook        WebhookOptions
}

// WebhookOptions configures the local vote listener.
type WebhookOptions struct {
	// Port defaults to 5600.
	Port int
	// Path defaults to /vote.
	Path string
	// Tunnel publishes the listener. Nil means the public localtunnel server.
	Tunnel Tunnel
}

func (o *Options) normalize() error {
	if o.StatsInterval == 0 {
		o.StatsInterval = DefaultStatsInterval
	}
	if o.StatsInterval < MinStatsInterval {
		return fmt.Errorf("%w (got %s)", ErrIntervalTooShort, o.StatsInterval)
	}
	if o.Webhook.Port < 0 {
		return fmt.Errorf("%w: webhook port %d", ErrInvalidArgument, o.Webhook.Port)
	}
	if o.Webhook.Port == 0 {
		o.Webhook.Port = webhook.DefaultPort
	}
	path := strings.TrimSpace(o.Webhook.Path)
	if path == "" {
		path = webhook.DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	o.Webhook.Path = path
	return nil
}

// Option overrides a client dependency. Options are passed to New alongside
// the Options struct and the bot client.
type Option func(*Client)

// WithBaseURL points the client at another API endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
}

// WithHTTPClient replaces the HTTP client used for API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger replaces the logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBotID sets the bot identifier used when no bot client is bound.
func WithBotID(id string) Option {
	return func(c *Client) {
		c.botID = strings.TrimSpace(id)
	}
}

// WithRateLimit caps outbound API requests at r per second with the given burst.
func WithRateLimit(r float64, burst int) Option {
	return func(c *Client) {
		if r <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// WithCache keeps GetBot, GetPack and GetUser responses for ttl.
func WithCache(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl <= 0 {
			c.cache = nil
			return
		}
		c.cache = cache.New(ttl, 2*ttl)
	}
}
