package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RobinCoderZhao/optimist-daily/internal/session"
)

// writeTestConfig enables only mediastack, pointed at baseURL.
func writeTestConfig(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`
database:
  dsn: %s
feed:
  timeout: 2s
  providers:
    mediastack:
      enabled: true
      api_key: ms-secret
      base_url: %s
    gnews:
      enabled: false
    newsapi:
      enabled: false
log:
  level: error
`, filepath.Join(dir, "feedctl.db"), baseURL)
	path := filepath.Join(dir, "optimist.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestPlanRedactsKeys(t *testing.T) {
	t.Setenv("MEDIASTACK_API_KEY", "")
	cfg := writeTestConfig(t, "https://api.mediastack.test")

	out, _, err := execute(t, "plan", "--config", cfg, "--prefs", "Sports,Business")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "intent: preferred(Sports, Business)") {
		t.Errorf("intent missing from output:\n%s", out)
	}
	if !strings.Contains(out, "https://api.mediastack.test/v1/news?") || !strings.Contains(out, "keywords=Sports+OR+Business") {
		t.Errorf("request missing from output:\n%s", out)
	}
	if strings.Contains(out, "ms-secret") || !strings.Contains(out, "access_key=REDACTED") {
		t.Errorf("key not redacted:\n%s", out)
	}
}

func TestFetchJSON(t *testing.T) {
	t.Setenv("MEDIASTACK_API_KEY", "")
	keywords := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keywords <- r.URL.Query().Get("keywords")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data": [
			{"title": "Older", "url": "https://news.example/1", "published_at": "2024-01-01T00:00:00Z"},
			{"title": "Newer", "url": "https://news.example/2", "published_at": "2024-01-02T00:00:00Z", "description": "<p>Body</p>"}
		]}`)
	}))
	defer srv.Close()
	cfg := writeTestConfig(t, srv.URL)

	out, _, err := execute(t, "fetch", "--config", cfg, "--search", "eclipse", "--json")
	if err != nil {
		t.Fatal(err)
	}
	if got := <-keywords; got != "eclipse" {
		t.Errorf("keywords = %q", got)
	}

	var snap session.Snapshot
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("decode %s: %v", out, err)
	}
	if snap.Status != session.StatusReady || len(snap.Feed) != 2 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.Feed[0].Title != "Newer" || snap.Feed[0].Description != "Body" {
		t.Errorf("feed not sorted or cleaned: %+v", snap.Feed)
	}
}

func TestFetchTotalFailure(t *testing.T) {
	t.Setenv("MEDIASTACK_API_KEY", "")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	cfg := writeTestConfig(t, srv.URL)

	_, stderr, err := execute(t, "fetch", "--config", cfg)
	if err == nil {
		t.Fatal("expected an error when every provider fails")
	}
	if !strings.Contains(stderr, "provider mediastack failed") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestPrefsSetGet(t *testing.T) {
	cfg := writeTestConfig(t, "https://unused.test")

	out, _, err := execute(t, "prefs", "get", "--config", cfg, "--user", "3")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "(none)" {
		t.Fatalf("get before set = %q", out)
	}

	if _, _, err := execute(t, "prefs", "set", "--config", cfg, "--user", "3", "sports", "Health"); err != nil {
		t.Fatal(err)
	}
	out, _, err = execute(t, "prefs", "get", "--config", cfg, "--user", "3")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "Sports, Health" {
		t.Fatalf("get after set = %q", out)
	}

	if _, _, err := execute(t, "prefs", "set", "--config", cfg, "--user", "3", "Astrology"); err == nil {
		t.Fatal("expected unknown category error")
	}
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "feedctl ") {
		t.Fatalf("version output = %q", out)
	}
}
