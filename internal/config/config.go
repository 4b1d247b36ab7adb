package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix marks environment overrides. A double underscore separates
// nested keys: VOIDBOTS_WEBHOOK__PORT sets webhook.port.
const EnvPrefix = "VOIDBOTS_"

// Config represents the main configuration
type Config struct {
	Token         string        `yaml:"token" koanf:"token"`
	BotID         string        `yaml:"bot_id,omitempty" koanf:"bot_id"`
	BaseURL       string        `yaml:"base_url,omitempty" koanf:"base_url"`
	Autopost      bool          `yaml:"autopost" koanf:"autopost"`
	StatsInterval time.Duration `yaml:"stats_interval" koanf:"stats_interval"`
	CacheTTL      time.Duration `yaml:"cache_ttl" koanf:"cache_ttl"`
	RateLimit     float64       `yaml:"rate_limit" koanf:"rate_limit"`
	Discord       DiscordConfig `yaml:"discord" koanf:"discord"`
	Webhook       WebhookConfig `yaml:"webhook" koanf:"webhook"`
	Gateway       GatewayConfig `yaml:"gateway" koanf:"gateway"`
}

// DiscordConfig contains Discord session settings
type DiscordConfig struct {
	Token      string `yaml:"token,omitempty" koanf:"token"`
	ShardCount int    `yaml:"shard_count,omitempty" koanf:"shard_count"`
	// VoteChannelID receives a message for every vote when set.
	VoteChannelID string `yaml:"vote_channel_id,omitempty" koanf:"vote_channel_id"`
	VoteMessage   string `yaml:"vote_message,omitempty" koanf:"vote_message"`
}

// WebhookConfig contains vote webhook settings
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled" koanf:"enabled"`
	Port    int    `yaml:"port" koanf:"port"`
	Path    string `yaml:"path" koanf:"path"`
	// PublicURL skips the tunnel when the listener is already reachable.
	PublicURL  string `yaml:"public_url,omitempty" koanf:"public_url"`
	TunnelHost string `yaml:"tunnel_host,omitempty" koanf:"tunnel_host"`
	Subdomain  string `yaml:"subdomain,omitempty" koanf:"subdomain"`
}

// GatewayConfig contains gateway settings
type GatewayConfig struct {
	Enabled        bool     `yaml:"enabled" koanf:"enabled"`
	Port           int      `yaml:"port" koanf:"port"`
	Bind           string   `yaml:"bind" koanf:"bind"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty" koanf:"allowed_origins"`
}

// LoadConfig loads configuration from file over the defaults, then applies
// VOIDBOTS_* environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, path string) error {
	data, err := yamlv3.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		BaseURL:       "https://api.voidbots.net",
		StatsInterval: 30 * time.Minute,
		Webhook: WebhookConfig{
			Port: 5600,
			Path: "/vote",
		},
		Gateway: GatewayConfig{
			Enabled: true,
			Port:    18790,
			Bind:    "127.0.0.1",
		},
	}
}

// Validate checks value ranges. Credentials are checked by the commands that
// need them.
func (c *Config) Validate() error {
	if c.StatsInterval != 0 && c.StatsInterval < 15*time.Minute {
		return fmt.Errorf("stats_interval must be at least 15m, got %s", c.StatsInterval)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl must be non-negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must be non-negative")
	}
	if c.Discord.ShardCount < 0 {
		return fmt.Errorf("discord.shard_count must be non-negative")
	}
	if c.BaseURL != "" {
		if err := validateHTTPURL(c.BaseURL); err != nil {
			return fmt.Errorf("base_url: %w", err)
		}
	}
	if c.Webhook.Port < 0 || c.Webhook.Port > 65535 {
		return fmt.Errorf("webhook.port must be between 0 and 65535, got %d", c.Webhook.Port)
	}
	if c.Webhook.PublicURL != "" {
		if err := validateHTTPURL(c.Webhook.PublicURL); err != nil {
			return fmt.Errorf("webhook.public_url: %w", err)
		}
	}
	if c.Webhook.TunnelHost != "" {
		if err := validateHTTPURL(c.Webhook.TunnelHost); err != nil {
			return fmt.Errorf("webhook.tunnel_host: %w", err)
		}
	}
	if c.Gateway.Enabled && (c.Gateway.Port <= 0 || c.Gateway.Port > 65535) {
		return fmt.Errorf("gateway.port must be between 1 and 65535, got %d", c.Gateway.Port)
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
