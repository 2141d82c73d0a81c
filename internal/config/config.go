package config

import (
	"sync"
	"time"
)

// Config is the root configuration for the relay.
type Config struct {
	mu sync.RWMutex `json:"-"`

	Server    ServerConfig    `json:"server"`
	GitHub    GitHubConfig    `json:"github"`
	AI        AIConfig        `json:"ai"`
	Chat      ChatConfig      `json:"chat"`
	Proxy     ProxyConfig     `json:"proxy"`
	Notify    NotifyConfig    `json:"notification"`
	Storage   StorageConfig   `json:"storage"`
	Telemetry TelemetryConfig `json:"telemetry"`

	// Repos maps "owner/repo" to its per-repository settings.
	Repos map[string]*RepoConfig `json:"repo_mappings"`

	// Users maps GitHub usernames to chat user ids for mention rewriting.
	Users map[string]string `json:"user_mappings"`

	// Superusers lists chat user ids with unconditional admin rights.
	Superusers []string `json:"superusers"`
}

// ServerConfig holds the webhook HTTP listener settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	MaxBodyBytes int64  `json:"max_body_bytes"`
	RateLimitRPS int    `json:"rate_limit_rps"`
}

// GitHubConfig holds API access settings.
type GitHubConfig struct {
	Token      string `json:"token"`
	APIBaseURL string `json:"api_base_url,omitempty"` // for GitHub Enterprise
}

// AIConfig holds the model provider settings for chat and review.
type AIConfig struct {
	Enabled     bool    `json:"enabled"`
	Provider    string  `json:"provider"`
	APIKey      string  `json:"api_key"`
	BaseURL     string  `json:"base_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	TimeoutSec  int     `json:"timeout_sec"`
}

// ChatConfig holds the IM platform connection (OneBot-compatible gateway).
type ChatConfig struct {
	WSURL        string `json:"ws_url"`
	AccessToken  string `json:"access_token"`
	BotID        string `json:"bot_id"`
	BotName      string `json:"bot_name"`
	DebugGroupID string `json:"debug_group_id,omitempty"`
}

// ProxyConfig optionally routes outbound GitHub/AI traffic through a proxy.
type ProxyConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
}

// NotifyConfig controls aggregation and milestone behavior.
type NotifyConfig struct {
	AggregationDelaySec int             `json:"aggregation_delay_sec"`
	MaxPerGroup         int             `json:"max_per_group"`
	StarMilestones      MilestoneConfig `json:"star_milestones"`
}

// MilestoneConfig picks which stargazer counts produce a notification.
type MilestoneConfig struct {
	Enabled bool  `json:"enabled"`
	Targets []int `json:"targets"`
}

// StorageConfig holds on-disk state locations.
type StorageConfig struct {
	DataDir string `json:"data_dir"`
}

// TelemetryConfig enables OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled"`
	Endpoint    string `json:"endpoint,omitempty"` // e.g. "localhost:4317"
	Protocol    string `json:"protocol,omitempty"` // "grpc" or "http"
	ServiceName string `json:"service_name,omitempty"`
	Insecure    bool   `json:"insecure,omitempty"`
}

// RepoConfig is the per-repository section of repo_mappings.
type RepoConfig struct {
	Alias           string       `json:"alias,omitempty"`
	Enabled         *bool        `json:"enabled,omitempty"` // nil means enabled
	WebhookSecret   string       `json:"webhook_secret,omitempty"`
	VerifySignature bool         `json:"verify_signature"`
	GroupIDs        []string     `json:"qq_group_ids"`
	Channels        []string     `json:"notification_channels"`
	AllowedTypes    []string     `json:"allowed_message_types"` // empty means all
	AutoTag         bool         `json:"auto_tag"`
	AllowReview     ReviewConfig `json:"allow_review"`
}

// ReviewConfig enables automated pull request review for a repository.
type ReviewConfig struct {
	Enabled     bool   `json:"enabled"`
	BotUsername string `json:"bot_username,omitempty"`
}

// Replace swaps the live configuration contents with those of next.
// Components keep their *Config pointer across hot reloads.
func (c *Config) Replace(next *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Server = next.Server
	c.GitHub = next.GitHub
	c.AI = next.AI
	c.Chat = next.Chat
	c.Proxy = next.Proxy
	c.Notify = next.Notify
	c.Storage = next.Storage
	c.Telemetry = next.Telemetry
	c.Repos = next.Repos
	c.Users = next.Users
	c.Superusers = next.Superusers
}

// AggregationDelay returns the configured aggregation window.
func (c *Config) AggregationDelay() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Notify.AggregationDelaySec <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Notify.AggregationDelaySec) * time.Second
}

// BotID returns the bot's own chat account id, used to detect mentions.
func (c *Config) BotID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Chat.BotID
}

// BotDisplayName returns the name rendered in bot signatures and used
// to recognize the bot's own comments.
func (c *Config) BotDisplayName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Chat.BotName != "" {
		return c.Chat.BotName
	}
	return "ghrelay"
}

// AITimeout returns the per-call model timeout.
func (c *Config) AITimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.AI.TimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.AI.TimeoutSec) * time.Second
}
