// Package voidbots is a client for the VoidBots bot-listing API. It posts
// server and shard counts, queries votes and listing metadata, and can run a
// webhook listener that turns vote notifications into local events.
package voidbots

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/fractalmind-ai/voidbots/internal/host"
	"github.com/fractalmind-ai/voidbots/pkg/protocol"
)

// Version is reported in the User-Agent header.
const Version = "1.0.0"

// Client talks to the VoidBots API on behalf of one bot.
type Client struct {
	tokenMu sync.RWMutex
	token   string

	options Options
	host    host.Client
	botID   string

	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *cache.Cache
	logger     *log.Logger
	newTicker  tickerFunc

	events     *emitter
	autoposter *Autoposter
	bridge     bridge
}

// New creates a client for token. Each of args may be an Options value (or
// pointer), a supported bot client (a *discordgo.Session, a host.ShardGroup, or
// any value with OnReady, BotID and Counts methods), or an Option.
//
// When a bot client is bound, New subscribes to its readiness; autoposting and
// the webhook start from there according to Options. New itself performs no
// network calls.
func New(token string, args ...any) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: token must be a non-empty string", ErrInvalidArgument)
	}

	c := &Client{
		token:      token,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Inf, 0),
		logger:     log.Default(),
		newTicker:  newTimeTicker,
		events:     newEmitter(),
	}

	var opts *Options
	for _, arg := range args {
		switch v := arg.(type) {
		case nil:
			continue
		case Options:
			o := v
			opts = &o
		case *Options:
			if v != nil {
				o := *v
				opts = &o
			}
		case Option:
			if v != nil {
				v(c)
			}
		default:
			bound, ok := host.Bind(v)
			if !ok {
				return nil, fmt.Errorf("%w: %T", ErrUnsupportedClient, arg)
			}
			if c.host != nil {
				return nil, fmt.Errorf("%w: more than one bot client given", ErrInvalidArgument)
			}
			c.host = bound
		}
	}

	if opts == nil {
		opts = &Options{}
	}
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	c.options = *opts
	c.events.logger = c.logger
	c.autoposter = newAutoposter(c.options.StatsInterval, c.postAuto, c.newTicker)
	c.autoposter.onPosted = c.events.emitPosted
	c.autoposter.onFailed = c.events.emitError

	if c.host != nil {
		c.host.OnReady(c.onReady)
	}
	return c, nil
}

func (c *Client) onReady() {
	c.logger.Printf("🤖 VoidBots client ready (bot %s)", c.host.BotID())

	if c.options.WebhookEnabled {
		go func() {
			if err := c.EnableWebhook(context.Background()); err != nil && !errors.Is(err, ErrClientClosed) {
				c.events.emitError(err)
			}
		}()
	}
	if c.options.AutoPost {
		c.autoposter.Start()
	}
}

// Options returns the normalized options.
func (c *Client) Options() Options {
	return c.options
}

// SetToken replaces the API token. An empty token makes authenticated calls
// fail with ErrMissingToken.
func (c *Client) SetToken(token string) {
	c.tokenMu.Lock()
	c.token = token
	c.tokenMu.Unlock()
}

func (c *Client) currentToken() string {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.token
}

// String keeps the token out of formatted output.
func (c *Client) String() string {
	return fmt.Sprintf("voidbots.Client{baseURL: %q, token: [redacted]}", c.baseURL)
}

// GoString keeps the token out of %#v output.
func (c *Client) GoString() string {
	return c.String()
}

// Autoposter returns the stats task; it is idle until the bot client is ready.
func (c *Client) Autoposter() *Autoposter {
	return c.autoposter
}

// StopAutopost cancels autoposting, including an in-flight attempt.
func (c *Client) StopAutopost() {
	c.autoposter.Stop()
}

// Close stops autoposting, the webhook listener and the tunnel.
func (c *Client) Close(ctx context.Context) error {
	c.autoposter.Stop()
	return c.bridge.close(ctx)
}

func (c *Client) tokenAvailable() error {
	if c.currentToken() == "" {
		return ErrMissingToken
	}
	return nil
}

func (c *Client) resolveBotID() (string, error) {
	if c.host != nil {
		if id := c.host.BotID(); id != "" {
			return id, nil
		}
	}
	if c.botID != "" {
		return c.botID, nil
	}
	return "", ErrMissingBotID
}

// request sends an authenticated call to the API. An empty method means POST;
// a nil body sends no payload. Statuses of 400 and above become *APIError.
func (c *Client) request(ctx context.Context, method, path string, body any) (*http.Response, error) {
	if err := c.tokenAvailable(); err != nil {
		return nil, err
	}
	if method == "" {
		method = http.MethodPost
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", c.currentToken())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "voidbots-go/"+Version)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return resp, nil
}

func readText(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	return string(data), nil
}

func decodeJSON(resp *http.Response) (json.RawMessage, error) {
	defer resp.Body.Close()
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return raw, nil
}

func (c *Client) getJSON(ctx context.Context, path string) (json.RawMessage, error) {
	resp, err := c.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON(resp)
}

func (c *Client) getCachedJSON(ctx context.Context, path string) (json.RawMessage, error) {
	if c.cache != nil {
		if hit, ok := c.cache.Get(path); ok {
			return hit.(json.RawMessage), nil
		}
	}
	raw, err := c.getJSON(ctx, path)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.SetDefault(path, raw)
	}
	return raw, nil
}

// HasVoted reports, as the API's raw text, whether userID voted for the bot in
// the last 12 hours.
func (c *Client) HasVoted(ctx context.Context, userID string) (string, error) {
	if err := c.tokenAvailable(); err != nil {
		return "", err
	}
	if err := requireID("userID", userID); err != nil {
		return "", err
	}
	botID, err := c.resolveBotID()
	if err != nil {
		return "", err
	}
	resp, err := c.request(ctx, http.MethodGet, "/bot/voted/"+url.PathEscape(botID)+"/"+url.PathEscape(userID), nil)
	if err != nil {
		return "", err
	}
	return readText(resp)
}

// GetReviews returns the bot's reviews.
func (c *Client) GetReviews(ctx context.Context) (json.RawMessage, error) {
	return c.botScoped(ctx, "/bot/reviews/")
}

// GetAnalytics returns the bot's analytics.
func (c *Client) GetAnalytics(ctx context.Context) (json.RawMessage, error) {
	return c.botScoped(ctx, "/bot/analytics/")
}

func (c *Client) botScoped(ctx context.Context, prefix string) (json.RawMessage, error) {
	if err := c.tokenAvailable(); err != nil {
		return nil, err
	}
	botID, err := c.resolveBotID()
	if err != nil {
		return nil, err
	}
	return c.getJSON(ctx, prefix+url.PathEscape(botID))
}

// GetBot returns listing information for any bot.
func (c *Client) GetBot(ctx context.Context, botID string) (json.RawMessage, error) {
	return c.lookup(ctx, "/bot/info/", "botID", botID)
}

// GetPack returns information about a bot pack.
func (c *Client) GetPack(ctx context.Context, packID string) (json.RawMessage, error) {
	return c.lookup(ctx, "/pack/info/", "packID", packID)
}

// GetUser returns information about a VoidBots user.
func (c *Client) GetUser(ctx context.Context, userID string) (json.RawMessage, error) {
	return c.lookup(ctx, "/user/info/", "userID", userID)
}

func (c *Client) lookup(ctx context.Context, prefix, name, id string) (json.RawMessage, error) {
	if err := c.tokenAvailable(); err != nil {
		return nil, err
	}
	if err := requireID(name, id); err != nil {
		return nil, err
	}
	return c.getCachedJSON(ctx, prefix+url.PathEscape(strings.TrimSpace(id)))
}

func requireID(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidArgument, name)
	}
	return nil
}

// Status summarizes the autoposter and webhook for status endpoints.
func (c *Client) Status() protocol.StatusInfo {
	info := protocol.StatusInfo{
		Autopost: c.autoposter.State().String(),
		Attempts: c.autoposter.Attempts(),
		Webhook:  c.bridge.lifecycle.State().String(),
	}
	if last := c.autoposter.LastPost(); !last.IsZero() {
		info.LastPost = last.Format(time.RFC3339)
	}
	if last, _ := c.autoposter.LastError(); !last.IsZero() {
		info.LastFail = last.Format(time.RFC3339)
	}
	return info
}
