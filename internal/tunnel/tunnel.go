// Package tunnel exposes a local port under a public URL.
package tunnel

import (
	"context"
	"errors"
	"strings"
)

// Tunnel publishes a local port and reports the public base URL.
type Tunnel interface {
	Open(ctx context.Context, port int) (string, error)
	Close() error
}

// Static is a tunnel whose public URL is provisioned elsewhere, e.g. a
// reverse proxy already forwarding to the listener.
type Static struct {
	URL string
}

func (s Static) Open(context.Context, int) (string, error) {
	url := strings.TrimRight(strings.TrimSpace(s.URL), "/")
	if url == "" {
		return "", errors.New("static tunnel URL is required")
	}
	return url, nil
}

func (s Static) Close() error {
	return nil
}
