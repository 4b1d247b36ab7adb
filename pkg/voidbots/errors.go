package voidbots

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument reports a malformed argument to New or a call.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrRange reports a numeric option outside its allowed range.
	ErrRange = errors.New("value out of range")
	// ErrIntervalTooShort is returned by New for a StatsInterval under MinStatsInterval.
	ErrIntervalTooShort = fmt.Errorf("%w: statsInterval may not be shorter than %s", ErrRange, MinStatsInterval)
	// ErrUnsupportedClient is returned by New for an argument that is neither
	// options nor a recognized bot runtime.
	ErrUnsupportedClient = errors.New("unsupported client type")
	// ErrMissingToken is returned by authenticated calls when no token is set.
	ErrMissingToken = errors.New("no VoidBots token found in this instance")
	// ErrMissingBotID is returned when the bot identifier cannot be resolved.
	ErrMissingBotID = errors.New("bot ID is not known yet")
	// ErrNoHostClient is returned by calls that need a bound bot runtime.
	ErrNoHostClient = errors.New("no bot client bound")
	// ErrWebhookStarted is returned by a second EnableWebhook call.
	ErrWebhookStarted = errors.New("webhook may only be enabled once")
	// ErrWebhookUnavailable is returned when the listener or tunnel cannot be brought up.
	ErrWebhookUnavailable = errors.New("webhook unavailable")
	// ErrClientClosed is returned by EnableWebhook once Close has been called.
	ErrClientClosed = errors.New("client closed")
)

// APIError is a non-success HTTP status from the VoidBots API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("voidbots API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("voidbots API returned status %d: %s", e.StatusCode, e.Body)
}
