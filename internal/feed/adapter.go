package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrSoftFailure marks a recoverable per-provider failure: the provider
// contributes no articles to the cycle but the cycle carries on.
var ErrSoftFailure = errors.New("provider soft failure")

// Adapter translates an Intent into one provider's request dialect and that
// provider's response into Articles.
type Adapter interface {
	// ID returns the provider identifier.
	ID() ProviderID

	// BuildRequest encodes the intent as a provider request.
	BuildRequest(intent Intent) RequestSpec

	// ParseResponse converts a raw provider response into articles. A
	// non-success status or malformed body yields no articles and an error
	// wrapping ErrSoftFailure.
	ParseResponse(resp RawResponse) ([]Article, error)
}

// RawResponse is the undecoded result of one provider call.
type RawResponse struct {
	StatusCode int
	Body       []byte
}

// RequestSpec is a fully resolved provider request. It is built once per
// intent per adapter and only read afterwards.
type RequestSpec struct {
	Provider ProviderID
	Endpoint string
	Params   url.Values

	// secret lists parameter names masked by Redacted.
	secret []string
}

// URL renders the endpoint with its encoded query parameters.
func (s RequestSpec) URL() string {
	if len(s.Params) == 0 {
		return s.Endpoint
	}
	return s.Endpoint + "?" + s.Params.Encode()
}

// Redacted renders the URL with credential parameters masked.
func (s RequestSpec) Redacted() string {
	if len(s.secret) == 0 {
		return s.URL()
	}
	masked := make(url.Values, len(s.Params))
	for k, v := range s.Params {
		masked[k] = v
	}
	for _, k := range s.secret {
		if masked.Has(k) {
			masked.Set(k, "REDACTED")
		}
	}
	return s.Endpoint + "?" + masked.Encode()
}

// ProviderConfig carries the per-provider settings injected into an adapter.
type ProviderConfig struct {
	Enabled  bool   `yaml:"enabled"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Country  string `yaml:"country"`
	Language string `yaml:"language"`
	PageSize int    `yaml:"page_size"`
}

func (c ProviderConfig) withDefaults(baseURL string) ProviderConfig {
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Country == "" {
		c.Country = "in"
	}
	if c.Language == "" {
		c.Language = "en"
	}
	if c.PageSize <= 0 {
		c.PageSize = 20
	}
	return c
}

func softFailure(p ProviderID, format string, args ...any) error {
	return fmt.Errorf("%s: %s: %w", p, fmt.Sprintf(format, args...), ErrSoftFailure)
}

// decodeBody checks the status code and unmarshals the body into out.
func decodeBody(p ProviderID, resp RawResponse, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return softFailure(p, "HTTP %d", resp.StatusCode)
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return softFailure(p, "decode response: %v", err)
	}
	return nil
}
