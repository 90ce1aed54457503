package appconfig

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "optimist.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Server.SessionTTL != 30*time.Minute {
		t.Fatalf("unexpected server defaults %+v", cfg.Server)
	}
	if cfg.Feed.Timeout != 8*time.Second || cfg.Feed.MaxBodyBytes != 2<<20 {
		t.Fatalf("unexpected feed defaults %+v", cfg.Feed)
	}
	p := cfg.Feed.Providers
	if !p.MediaStack.Enabled || !p.GNews.Enabled || !p.NewsAPI.Enabled || p.NewsAPIHeadlines.Enabled || p.NYTimes.Enabled {
		t.Fatalf("unexpected default provider set %+v", p)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeFile(t, `
server:
  addr: ":9000"
  session_ttl: 5m
feed:
  timeout: 3s
  providers:
    nytimes:
      enabled: true
      page_size: 10
    gnews:
      enabled: false
log:
  level: debug
  format: json
`)
	t.Setenv("MEDIASTACK_API_KEY", "ms-key")
	t.Setenv("NEWSAPI_API_KEY", "na-key")
	t.Setenv("NYTIMES_API_KEY", "ny-key")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":9000" || cfg.Server.SessionTTL != 5*time.Minute || cfg.Server.JWTSecret != "s3cret" {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Feed.Timeout != 3*time.Second {
		t.Fatalf("timeout = %v", cfg.Feed.Timeout)
	}
	p := cfg.Feed.Providers
	if p.MediaStack.APIKey != "ms-key" || p.NewsAPI.APIKey != "na-key" || p.NewsAPIHeadlines.APIKey != "na-key" {
		t.Fatalf("keys not applied: %+v", p)
	}
	if !p.NYTimes.Enabled || p.NYTimes.APIKey != "ny-key" || p.NYTimes.PageSize != 10 {
		t.Fatalf("nytimes = %+v", p.NYTimes)
	}
	if p.GNews.Enabled {
		t.Fatal("gnews should be disabled by the file")
	}
	// Defaults not mentioned in the file survive.
	if !p.MediaStack.Enabled || cfg.Database.DSN != "optimist.db" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if err := cfg.ValidateServer(); err != nil {
		t.Fatal(err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"mongo without uri", func(c *Config) { c.Preferences.Backend = BackendMongo }, "mongo_uri"},
		{"mongo with uri", func(c *Config) {
			c.Preferences.Backend = BackendMongo
			c.Preferences.MongoURI = "mongodb://localhost:27017"
		}, ""},
		{"unknown backend", func(c *Config) { c.Preferences.Backend = "redis" }, "preferences.backend"},
		{"zero ttl", func(c *Config) { c.Server.SessionTTL = 0 }, "session_ttl"},
		{"zero timeout", func(c *Config) { c.Feed.Timeout = 0 }, "feed.timeout"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateServerRequiresSecret(t *testing.T) {
	if err := Default().ValidateServer(); err == nil {
		t.Fatal("expected error without jwt secret")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "provider", "gnews")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record should be filtered: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"provider":"gnews"`) {
		t.Fatalf("unexpected output: %s", out)
	}
}
