package voidbots

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

type statsPayload struct {
	ServerCount int `json:"server_count"`
	ShardCount  int `json:"shard_count"`
}

// PostStats reports serverCount and shardCount for the bot and returns the
// API's text acknowledgment.
func (c *Client) PostStats(ctx context.Context, serverCount, shardCount int) (string, error) {
	if err := c.tokenAvailable(); err != nil {
		return "", err
	}
	if serverCount < 0 {
		return "", fmt.Errorf("%w: serverCount must be a non-negative number", ErrInvalidArgument)
	}
	if shardCount < 0 {
		return "", fmt.Errorf("%w: shardCount must be a non-negative number", ErrInvalidArgument)
	}

	botID, err := c.resolveBotID()
	if err != nil {
		return "", err
	}

	resp, err := c.request(ctx, http.MethodPost, "/bot/stats/"+url.PathEscape(botID), statsPayload{
		ServerCount: serverCount,
		ShardCount:  shardCount,
	})
	if err != nil {
		return "", err
	}
	return readText(resp)
}

// PostStatsAuto reports the counts read from the bound bot client.
func (c *Client) PostStatsAuto(ctx context.Context) (string, error) {
	if c.host == nil {
		return "", ErrNoHostClient
	}
	servers, shards := c.host.Counts()
	return c.PostStats(ctx, servers, shards)
}

func (c *Client) postAuto(ctx context.Context) error {
	_, err := c.PostStatsAuto(ctx)
	return err
}
