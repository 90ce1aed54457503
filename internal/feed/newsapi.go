package feed

import (
	"net/url"
	"strconv"
	"strings"
)

// defaultNewsAPIQuery is sent to the everything endpoint when the intent has
// no keywords, since that endpoint rejects requests without a query.
const defaultNewsAPIQuery = "latest"

// headlineCategories is the fixed category set accepted by the NewsAPI
// top-headlines endpoint.
var headlineCategories = map[string]bool{
	"business":      true,
	"entertainment": true,
	"general":       true,
	"health":        true,
	"science":       true,
	"sports":        true,
	"technology":    true,
}

// NewsAPIAdapter queries the NewsAPI everything endpoint for every intent.
type NewsAPIAdapter struct {
	cfg ProviderConfig
}

// NewNewsAPIAdapter creates an adapter for the NewsAPI everything endpoint.
func NewNewsAPIAdapter(cfg ProviderConfig) *NewsAPIAdapter {
	return &NewsAPIAdapter{cfg: cfg.withDefaults("https://newsapi.org")}
}

func (n *NewsAPIAdapter) ID() ProviderID { return NewsAPI }

func (n *NewsAPIAdapter) BuildRequest(intent Intent) RequestSpec {
	q := intent.Keywords()
	if q == "" {
		q = defaultNewsAPIQuery
	}
	return newsAPIEverything(NewsAPI, n.cfg, q)
}

func (n *NewsAPIAdapter) ParseResponse(resp RawResponse) ([]Article, error) {
	return parseNewsAPI(NewsAPI, resp)
}

// NewsAPIHeadlinesAdapter sends single-category intents whose category is in
// the provider's enumerated set to top-headlines, and everything else to the
// free-text everything endpoint.
type NewsAPIHeadlinesAdapter struct {
	cfg ProviderConfig
}

// NewNewsAPIHeadlinesAdapter creates the category-routing NewsAPI adapter.
func NewNewsAPIHeadlinesAdapter(cfg ProviderConfig) *NewsAPIHeadlinesAdapter {
	return &NewsAPIHeadlinesAdapter{cfg: cfg.withDefaults("https://newsapi.org")}
}

func (n *NewsAPIHeadlinesAdapter) ID() ProviderID { return NewsAPIHeadlines }

func (n *NewsAPIHeadlinesAdapter) BuildRequest(intent Intent) RequestSpec {
	if category, ok := headlineCategory(intent); ok {
		params := url.Values{}
		params.Set("apiKey", n.cfg.APIKey)
		params.Set("pageSize", strconv.Itoa(n.cfg.PageSize))
		params.Set("language", n.cfg.Language)
		params.Set("category", category)
		return RequestSpec{
			Provider: NewsAPIHeadlines,
			Endpoint: n.cfg.BaseURL + "/v2/top-headlines",
			Params:   params,
			secret:   []string{"apiKey"},
		}
	}
	q := intent.Keywords()
	if q == "" {
		q = defaultNewsAPIQuery
	}
	return newsAPIEverything(NewsAPIHeadlines, n.cfg, q)
}

func (n *NewsAPIHeadlinesAdapter) ParseResponse(resp RawResponse) ([]Article, error) {
	return parseNewsAPI(NewsAPIHeadlines, resp)
}

// headlineCategory returns the enumerated category an intent maps to, if any.
func headlineCategory(intent Intent) (string, bool) {
	switch intent.Mode {
	case ModeAllGeneric:
		return "general", true
	case ModeCategorySet, ModeAllPreferred:
		if len(intent.Categories) != 1 {
			return "", false
		}
		c := strings.ToLower(strings.TrimSpace(intent.Categories[0]))
		return c, headlineCategories[c]
	default:
		return "", false
	}
}

func newsAPIEverything(p ProviderID, cfg ProviderConfig, q string) RequestSpec {
	params := url.Values{}
	params.Set("apiKey", cfg.APIKey)
	params.Set("pageSize", strconv.Itoa(cfg.PageSize))
	params.Set("language", cfg.Language)
	params.Set("q", q)
	return RequestSpec{
		Provider: p,
		Endpoint: cfg.BaseURL + "/v2/everything",
		Params:   params,
		secret:   []string{"apiKey"},
	}
}

type newsAPIResponse struct {
	Status   string        `json:"status"`
	Code     string        `json:"code"`
	Message  string        `json:"message"`
	Articles []newsAPIItem `json:"articles"`
}

type newsAPIItem struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	URL          string `json:"url"`
	URLToImage   string `json:"urlToImage"`
	Image        string `json:"image"`
	PublishedAt  string `json:"publishedAt"`
	PublishedAt2 string `json:"published_at"`
	Source       struct {
		Name string `json:"name"`
	} `json:"source"`
}

// removedTitle is the placeholder NewsAPI returns for withdrawn articles.
const removedTitle = "[Removed]"

func parseNewsAPI(p ProviderID, resp RawResponse) ([]Article, error) {
	var body newsAPIResponse
	if err := decodeBody(p, resp, &body); err != nil {
		return nil, err
	}
	if body.Status == "error" {
		return nil, softFailure(p, "api error %s: %s", body.Code, body.Message)
	}

	articles := make([]Article, 0, len(body.Articles))
	for _, item := range body.Articles {
		if strings.TrimSpace(item.Title) == removedTitle {
			continue
		}
		a, ok := normalize(p, rawItem{
			title:       item.Title,
			description: item.Description,
			url:         item.URL,
			imageURLs:   []string{item.URLToImage, item.Image},
			dates:       []string{item.PublishedAt, item.PublishedAt2},
			sourceName:  item.Source.Name,
		})
		if ok {
			articles = append(articles, a)
		}
	}
	return articles, nil
}
