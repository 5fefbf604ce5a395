package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/agent-racer/sessionizer/internal/session"
)

// EnvPrefix prefixes every environment override, e.g. SESSIONIZE_LOG_LEVEL.
const EnvPrefix = "SESSIONIZE_"

type Config struct {
	Parser ParserConfig `yaml:"parser" envPrefix:"PARSER_"`
	Output OutputConfig `yaml:"output" envPrefix:"OUTPUT_"`
	Feed   FeedConfig   `yaml:"feed" envPrefix:"FEED_"`
	Stats  StatsConfig  `yaml:"stats" envPrefix:"STATS_"`
	Log    LogConfig    `yaml:"log" envPrefix:"LOG_"`
}

type ParserConfig struct {
	MaxLineBytes int  `yaml:"max_line_bytes" env:"MAX_LINE_BYTES"`
	SkipHeader   bool `yaml:"skip_header" env:"SKIP_HEADER"`
}

type OutputConfig struct {
	// SQLitePath, when set, also stores every completed session in a
	// SQLite database.
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH"`
}

type FeedConfig struct {
	Enabled        bool          `yaml:"enabled" env:"ENABLED"`
	Host           string        `yaml:"host" env:"HOST"`
	Port           int           `yaml:"port" env:"PORT"`
	Token          string        `yaml:"token" env:"TOKEN"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	Linger         time.Duration `yaml:"linger" env:"LINGER"`
	Recent         int           `yaml:"recent" env:"RECENT"`
	MaxClients     int           `yaml:"max_clients" env:"MAX_CLIENTS"`
	Privacy        PrivacyConfig `yaml:"privacy" envPrefix:"PRIVACY_"`
}

type PrivacyConfig struct {
	MaskIPs    bool     `yaml:"mask_ips" env:"MASK_IPS"`
	AllowedIPs []string `yaml:"allowed_ips" env:"ALLOWED_IPS" envSeparator:","`
	BlockedIPs []string `yaml:"blocked_ips" env:"BLOCKED_IPS" envSeparator:","`
}

type StatsConfig struct {
	Disabled bool   `yaml:"disabled" env:"DISABLED"`
	Dir      string `yaml:"dir" env:"DIR"`
	History  int    `yaml:"history" env:"HISTORY"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

func defaultConfig() *Config {
	return &Config{
		Parser: ParserConfig{
			MaxLineBytes: 64 * 1024,
			SkipHeader:   true,
		},
		Feed: FeedConfig{
			Host:       "127.0.0.1",
			Port:       8090,
			Recent:     256,
			MaxClients: 32,
		},
		Stats: StatsConfig{
			History: 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Default returns the built-in configuration with environment overrides
// applied.
func Default() (*Config, error) {
	cfg := defaultConfig()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadOrDefault is Load for an optional file: an empty path or a file that
// does not exist yields Default.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default()
	}
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default()
	}
	return cfg, err
}

func applyEnv(cfg *Config) error {
	// The .env file is optional.
	_ = godotenv.Load()
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return errors.Join(ErrParsingEnv, err)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Parser.MaxLineBytes <= 0 {
		return fmt.Errorf("%w: parser.max_line_bytes must be positive", ErrInvalidConfig)
	}
	if c.Feed.Port < 0 || c.Feed.Port > 65535 {
		return fmt.Errorf("%w: feed.port %d out of range", ErrInvalidConfig, c.Feed.Port)
	}
	if c.Feed.Linger < 0 {
		return fmt.Errorf("%w: feed.linger must not be negative", ErrInvalidConfig)
	}
	if c.Feed.Recent < 0 || c.Feed.MaxClients < 0 || c.Stats.History < 0 {
		return fmt.Errorf("%w: feed.recent, feed.max_clients and stats.history must not be negative", ErrInvalidConfig)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalidConfig, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be text or json, got %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

// SlogLevel parses Level ("debug", "info", "warn", "error").
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	err := lvl.UnmarshalText([]byte(l.Level))
	return lvl, err
}

// FeedAddr returns the host:port the live feed listens on.
func (c *Config) FeedAddr() string {
	return fmt.Sprintf("%s:%d", c.Feed.Host, c.Feed.Port)
}

// NewPrivacyFilter converts the privacy settings into a session filter.
func (pc PrivacyConfig) NewPrivacyFilter() *session.PrivacyFilter {
	return &session.PrivacyFilter{
		MaskIPs:    pc.MaskIPs,
		AllowedIPs: append([]string(nil), pc.AllowedIPs...),
		BlockedIPs: append([]string(nil), pc.BlockedIPs...),
	}
}
