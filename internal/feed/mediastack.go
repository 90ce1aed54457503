package feed

import (
	"net/url"
	"strconv"
)

// MediaStackAdapter talks to the mediastack news endpoint. It only accepts a
// flat keyword string, so categories are OR-joined.
type MediaStackAdapter struct {
	cfg ProviderConfig
}

// NewMediaStackAdapter creates a mediastack adapter.
func NewMediaStackAdapter(cfg ProviderConfig) *MediaStackAdapter {
	return &MediaStackAdapter{cfg: cfg.withDefaults("https://api.mediastack.com")}
}

func (m *MediaStackAdapter) ID() ProviderID { return MediaStack }

func (m *MediaStackAdapter) BuildRequest(intent Intent) RequestSpec {
	params := url.Values{}
	params.Set("access_key", m.cfg.APIKey)
	params.Set("countries", m.cfg.Country)
	params.Set("limit", strconv.Itoa(m.cfg.PageSize))
	if kw := intent.Keywords(); kw != "" {
		params.Set("keywords", kw)
	}
	return RequestSpec{
		Provider: MediaStack,
		Endpoint: m.cfg.BaseURL + "/v1/news",
		Params:   params,
		secret:   []string{"access_key"},
	}
}

type mediaStackResponse struct {
	Data  []mediaStackItem `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type mediaStackItem struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Image       string `json:"image"`
	PublishedAt string `json:"published_at"`
	Source      string `json:"source"`
}

func (m *MediaStackAdapter) ParseResponse(resp RawResponse) ([]Article, error) {
	var body mediaStackResponse
	if err := decodeBody(MediaStack, resp, &body); err != nil {
		return nil, err
	}
	if body.Error != nil {
		return nil, softFailure(MediaStack, "api error %s: %s", body.Error.Code, body.Error.Message)
	}

	articles := make([]Article, 0, len(body.Data))
	for _, item := range body.Data {
		a, ok := normalize(MediaStack, rawItem{
			title:       item.Title,
			description: item.Description,
			url:         item.URL,
			imageURLs:   []string{item.Image},
			dates:       []string{item.PublishedAt},
			sourceName:  item.Source,
		})
		if ok {
			articles = append(articles, a)
		}
	}
	return articles, nil
}
