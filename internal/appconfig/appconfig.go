// Package appconfig defines the configuration tree shared by feedd and
// feedctl.
package appconfig

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/RobinCoderZhao/optimist-daily/internal/feed"
	"github.com/RobinCoderZhao/optimist-daily/pkg/config"
	"github.com/RobinCoderZhao/optimist-daily/pkg/storage"
)

// DefaultPath is the config file read when none is given.
const DefaultPath = "optimist.yaml"

// Preference store backends.
const (
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
)

// Config is the root configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    storage.Config    `yaml:"database"`
	Preferences PreferencesConfig `yaml:"preferences"`
	Feed        FeedConfig        `yaml:"feed"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Addr       string        `yaml:"addr" env:"FEED_ADDR"`
	JWTSecret  string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	CORSOrigin string        `yaml:"cors_origin" env:"CORS_ORIGIN"`
	SessionTTL time.Duration `yaml:"session_ttl" env:"SESSION_TTL"`
}

// PreferencesConfig selects where category preferences live.
type PreferencesConfig struct {
	Backend       string `yaml:"backend" env:"PREFS_BACKEND"` // "sqlite" or "mongo"
	MongoURI      string `yaml:"mongo_uri" env:"MONGO_URI"`
	MongoDatabase string `yaml:"mongo_database" env:"MONGO_DATABASE"`
}

// FeedConfig holds the aggregation engine settings.
type FeedConfig struct {
	Timeout      time.Duration        `yaml:"timeout" env:"FEED_TIMEOUT"`
	MaxBodyBytes int64                `yaml:"max_body_bytes"`
	UserAgent    string               `yaml:"user_agent"`
	Providers    feed.ProvidersConfig `yaml:"providers"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" env:"LOG_FORMAT"` // text or json
}

// Default returns a Config with sensible defaults. The mediastack, GNews and
// NewsAPI providers are enabled; they still need an API key to become active.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:       ":8080",
			CORSOrigin: "*",
			SessionTTL: 30 * time.Minute,
		},
		Database: storage.Config{
			Driver: storage.SQLite,
			DSN:    "optimist.db",
		},
		Preferences: PreferencesConfig{
			Backend:       BackendSQLite,
			MongoDatabase: "optimist",
		},
		Feed: FeedConfig{
			Timeout:      8 * time.Second,
			MaxBodyBytes: 2 << 20,
			Providers: feed.ProvidersConfig{
				MediaStack: feed.ProviderConfig{Enabled: true},
				GNews:      feed.ProviderConfig{Enabled: true},
				NewsAPI:    feed.ProviderConfig{Enabled: true},
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults, applies env overrides and validates
// the result. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}
	if err := config.LoadOrDefault(path, &cfg); err != nil {
		return cfg, err
	}
	applyProviderKeys(&cfg.Feed.Providers)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// applyProviderKeys reads provider API keys from the environment. Both
// NewsAPI adapters share one key.
func applyProviderKeys(p *feed.ProvidersConfig) {
	keys := []struct {
		env  string
		dsts []*string
	}{
		{"MEDIASTACK_API_KEY", []*string{&p.MediaStack.APIKey}},
		{"GNEWS_API_KEY", []*string{&p.GNews.APIKey}},
		{"NEWSAPI_API_KEY", []*string{&p.NewsAPI.APIKey, &p.NewsAPIHeadlines.APIKey}},
		{"NYTIMES_API_KEY", []*string{&p.NYTimes.APIKey}},
	}
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k.env)); v != "" {
			for _, dst := range k.dsts {
				*dst = v
			}
		}
	}
}

// Validate checks the settings every binary depends on.
func (c Config) Validate() error {
	var errs []error
	switch c.Preferences.Backend {
	case BackendSQLite:
	case BackendMongo:
		if c.Preferences.MongoURI == "" {
			errs = append(errs, errors.New("preferences.mongo_uri is required for the mongo backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown preferences.backend %q", c.Preferences.Backend))
	}
	if c.Server.SessionTTL <= 0 {
		errs = append(errs, errors.New("server.session_ttl must be positive"))
	}
	if c.Feed.Timeout <= 0 {
		errs = append(errs, errors.New("feed.timeout must be positive"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// ValidateServer adds the checks only the API server needs.
func (c Config) ValidateServer() error {
	if c.Server.JWTSecret == "" {
		return errors.New("server.jwt_secret (or JWT_SECRET) is required")
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	return nil
}

// ExecutorOptions translates the feed settings into executor options.
func (c FeedConfig) ExecutorOptions() []feed.ExecutorOption {
	return []feed.ExecutorOption{
		feed.WithTimeout(c.Timeout),
		feed.WithMaxBodyBytes(c.MaxBodyBytes),
		feed.WithUserAgent(c.UserAgent),
	}
}

// NewLogger builds a slog logger writing to w.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log.level %q", s)
	}
	return level, nil
}
