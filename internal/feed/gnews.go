package feed

import (
	"net/url"
	"strconv"
	"strings"
)

// GNewsAdapter routes keyword queries to the GNews search endpoint and
// everything else to top headlines for the configured country.
type GNewsAdapter struct {
	cfg ProviderConfig
}

// NewGNewsAdapter creates a GNews adapter.
func NewGNewsAdapter(cfg ProviderConfig) *GNewsAdapter {
	return &GNewsAdapter{cfg: cfg.withDefaults("https://gnews.io")}
}

func (g *GNewsAdapter) ID() ProviderID { return GNews }

func (g *GNewsAdapter) BuildRequest(intent Intent) RequestSpec {
	params := url.Values{}
	endpoint := g.cfg.BaseURL + "/api/v4/top-headlines"
	if kw := intent.Keywords(); kw != "" {
		endpoint = g.cfg.BaseURL + "/api/v4/search"
		params.Set("q", kw)
	} else {
		params.Set("country", g.cfg.Country)
	}
	params.Set("token", g.cfg.APIKey)
	params.Set("lang", g.cfg.Language)
	params.Set("max", strconv.Itoa(g.cfg.PageSize))
	return RequestSpec{
		Provider: GNews,
		Endpoint: endpoint,
		Params:   params,
		secret:   []string{"token"},
	}
}

type gnewsResponse struct {
	Articles []gnewsItem `json:"articles"`
	Errors   []string    `json:"errors"`
}

type gnewsItem struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Image       string `json:"image"`
	PublishedAt string `json:"publishedAt"`
	Source      struct {
		Name string `json:"name"`
	} `json:"source"`
}

func (g *GNewsAdapter) ParseResponse(resp RawResponse) ([]Article, error) {
	var body gnewsResponse
	if err := decodeBody(GNews, resp, &body); err != nil {
		return nil, err
	}
	if len(body.Errors) > 0 {
		return nil, softFailure(GNews, "api error: %s", strings.Join(body.Errors, "; "))
	}

	articles := make([]Article, 0, len(body.Articles))
	for _, item := range body.Articles {
		a, ok := normalize(GNews, rawItem{
			title:       item.Title,
			description: item.Description,
			url:         item.URL,
			imageURLs:   []string{item.Image},
			dates:       []string{item.PublishedAt},
			sourceName:  item.Source.Name,
		})
		if ok {
			articles = append(articles, a)
		}
	}
	return articles, nil
}
