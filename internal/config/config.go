// Package config loads process configuration (viper) and feed definitions (yaml).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sevigo/revision-warden/internal/core"
	"github.com/sevigo/revision-warden/internal/logger"
)

// Config holds the application's configuration values.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   logger.Config   `mapstructure:"logging"`
	Database  DBConfig        `mapstructure:"database"`
	Wiki      WikiConfig      `mapstructure:"wiki"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	FeedStore FeedStoreConfig `mapstructure:"feed_store"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Hooks     HooksConfig     `mapstructure:"hooks"`
	Revert    RevertConfig    `mapstructure:"revert"`
	FeedsFile string          `mapstructure:"feeds_file"`

	// Feeds is populated from FeedsFile, not from viper.
	Feeds []core.FeedDefinition `mapstructure:"-"`
}

type ServerConfig struct {
	Port       string `mapstructure:"port"`
	PublicHost string `mapstructure:"public_host"`
}

// DBConfig describes the interaction store backend. Driver "memory" keeps
// everything in process and is meant for development.
type DBConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN renders the lib/pq connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.Database, c.SSLMode)
}

type WikiConfig struct {
	UserAgent         string            `mapstructure:"user_agent"`
	RequestsPerSecond float64           `mapstructure:"requests_per_second"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	APIOverrides      map[string]string `mapstructure:"api_overrides"`
}

type StreamConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Transport      string        `mapstructure:"transport"`
	URL            string        `mapstructure:"url"`
	CheckpointPath string        `mapstructure:"checkpoint_path"`
	BufferSize     int           `mapstructure:"buffer_size"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type CrawlerConfig struct {
	MaxDepth    int           `mapstructure:"max_depth"`
	MaxPages    int           `mapstructure:"max_pages"`
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// FeedStoreConfig is the candidate eviction policy.
type FeedStoreConfig struct {
	MaxEntries int           `mapstructure:"max_entries"`
	MaxAge     time.Duration `mapstructure:"max_age"`
}

type ScheduleConfig struct {
	TraverseInterval time.Duration `mapstructure:"traverse_interval"`
	PopulateInterval time.Duration `mapstructure:"populate_interval"`
}

type HooksConfig struct {
	Workers   int           `mapstructure:"workers"`
	QueueSize int           `mapstructure:"queue_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Discord   DiscordConfig `mapstructure:"discord"`
	Jade      JadeConfig    `mapstructure:"jade"`
}

// DiscordConfig enables the chat hook when both id and token are present.
type DiscordConfig struct {
	WebhookID    string `mapstructure:"webhook_id"`
	WebhookToken string `mapstructure:"webhook_token"`
	BaseURL      string `mapstructure:"base_url"`
}

// Enabled reports whether the chat hook is configured.
func (d DiscordConfig) Enabled() bool {
	return d.WebhookID != "" && d.WebhookToken != ""
}

// JadeConfig enables the annotation proposal hook when an endpoint is set.
type JadeConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Wiki     string `mapstructure:"wiki"`
	Token    string `mapstructure:"token"`
	Origin   string `mapstructure:"origin"`
}

// Enabled reports whether the annotation hook is configured.
func (j JadeConfig) Enabled() bool {
	return j.Endpoint != ""
}

type RevertConfig struct {
	Window     time.Duration     `mapstructure:"window"`
	MaxActions int               `mapstructure:"max_actions"`
	AllowList  []string          `mapstructure:"allow_list"`
	Tags       map[string]string `mapstructure:"tags"`
	ToolName   string            `mapstructure:"tool_name"`
	Version    string            `mapstructure:"version"`
}

var envKeyReplacer = strings.NewReplacer(".", "_")

func setDefaults() {
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.public_host", "localhost:8000")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.output", "stdout")
	viper.SetDefault("logging.file", "")

	viper.SetDefault("database.driver", "postgres")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.username", "warden")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.database", "revision_warden")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	viper.SetDefault("database.conn_max_idle_time", 5*time.Minute)

	viper.SetDefault("wiki.user_agent", "revision-warden/1.0 (https://github.com/sevigo/revision-warden)")
	viper.SetDefault("wiki.requests_per_second", 10.0)
	viper.SetDefault("wiki.timeout", 30*time.Second)

	viper.SetDefault("stream.enabled", false)
	viper.SetDefault("stream.transport", "sse")
	viper.SetDefault("stream.url", "https://stream.wikimedia.org/v2/stream/revision-score")
	viper.SetDefault("stream.checkpoint_path", "")
	viper.SetDefault("stream.buffer_size", 10000)
	viper.SetDefault("stream.initial_backoff", time.Second)
	viper.SetDefault("stream.max_backoff", time.Minute)
	viper.SetDefault("stream.connect_timeout", 30*time.Second)

	viper.SetDefault("crawler.max_depth", 5)
	viper.SetDefault("crawler.max_pages", 10000)
	viper.SetDefault("crawler.concurrency", 4)
	viper.SetDefault("crawler.timeout", 10*time.Minute)

	viper.SetDefault("feed_store.max_entries", 5000)
	viper.SetDefault("feed_store.max_age", 7*24*time.Hour)

	viper.SetDefault("schedule.traverse_interval", 24*time.Hour)
	viper.SetDefault("schedule.populate_interval", 5*time.Minute)

	viper.SetDefault("hooks.workers", 4)
	viper.SetDefault("hooks.queue_size", 256)
	viper.SetDefault("hooks.timeout", 10*time.Second)
	viper.SetDefault("hooks.discord.webhook_id", "")
	viper.SetDefault("hooks.discord.webhook_token", "")
	viper.SetDefault("hooks.discord.base_url", "https://discordapp.com/api/webhooks")
	viper.SetDefault("hooks.jade.endpoint", "")
	viper.SetDefault("hooks.jade.wiki", "enwiki")
	viper.SetDefault("hooks.jade.token", `+\`)
	viper.SetDefault("hooks.jade.origin", "WikiLoop Battlefield")

	viper.SetDefault("revert.window", 3*time.Minute)
	viper.SetDefault("revert.max_actions", 30)
	viper.SetDefault("revert.allow_list", []string{})
	viper.SetDefault("revert.tags", map[string]string{"enwiki": "WikiLoop Battlefield"})
	viper.SetDefault("revert.tool_name", "[[m:WikiLoop DoubleCheck]]")
	viper.SetDefault("revert.version", "dev")

	viper.SetDefault("feeds_file", "feeds.yml")
}

// LoadConfig reads configuration from an optional config.yaml, environment
// variables (RW_ prefix) and defaults, then loads the feed definitions. It
// uses the Viper library to handle configuration loading and precedence.
func LoadConfig() (*Config, error) {
	setDefaults()

	if path := os.Getenv("RW_CONFIG_FILE"); path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("RW")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	// Names used by earlier deployments.
	_ = viper.BindEnv("hooks.discord.webhook_id", "RW_HOOKS_DISCORD_WEBHOOK_ID", "DISCORD_WEBHOOK_ID")
	_ = viper.BindEnv("hooks.discord.webhook_token", "RW_HOOKS_DISCORD_WEBHOOK_TOKEN", "DISCORD_WEBHOOK_TOKEN")
	_ = viper.BindEnv("server.public_host", "RW_SERVER_PUBLIC_HOST", "PUBLIC_HOST")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	feeds, err := LoadFeeds(cfg.FeedsFile, cfg.Crawler)
	if err != nil && !errors.Is(err, ErrFeedsNotFound) {
		return nil, err
	}
	if errors.Is(err, ErrFeedsNotFound) {
		slog.Warn("feeds file not found, using built-in feeds", "path", cfg.FeedsFile)
	}
	cfg.Feeds = feeds
	return &cfg, nil
}

// Validate checks the values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port must be set")
	}
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	switch c.Stream.Transport {
	case "sse", "websocket":
	default:
		return fmt.Errorf("unsupported stream.transport %q", c.Stream.Transport)
	}
	if c.Stream.InitialBackoff <= 0 || c.Stream.MaxBackoff < c.Stream.InitialBackoff {
		return fmt.Errorf("stream backoff bounds are invalid: initial=%s max=%s", c.Stream.InitialBackoff, c.Stream.MaxBackoff)
	}
	if c.Crawler.MaxDepth <= 0 || c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_depth and crawler.max_pages must be positive")
	}
	if c.FeedStore.MaxEntries <= 0 {
		return fmt.Errorf("feed_store.max_entries must be positive")
	}
	if c.Revert.MaxActions <= 0 || c.Revert.Window <= 0 {
		return fmt.Errorf("revert.max_actions and revert.window must be positive")
	}
	return nil
}

// StreamWikis returns the distinct wikis referenced by the configured feeds.
func (c *Config) StreamWikis() []string {
	seen := make(map[string]struct{})
	var wikis []string
	for _, f := range c.Feeds {
		if _, ok := seen[f.Wiki]; ok {
			continue
		}
		seen[f.Wiki] = struct{}{}
		wikis = append(wikis, f.Wiki)
	}
	return wikis
}

// Feed returns the feed definition with the given name.
func (c *Config) Feed(name string) (core.FeedDefinition, bool) {
	for _, f := range c.Feeds {
		if f.Name == name {
			return f, true
		}
	}
	return core.FeedDefinition{}, false
}
