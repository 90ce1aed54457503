package feed

import (
	"net/url"
	"strconv"
	"strings"
)

const nytimesSiteURL = "https://www.nytimes.com/"

// NYTimesAdapter queries the NYT Article Search API. Free text goes to q;
// categories become a news_desk filter query.
type NYTimesAdapter struct {
	cfg ProviderConfig
}

// NewNYTimesAdapter creates an NYT Article Search adapter.
func NewNYTimesAdapter(cfg ProviderConfig) *NYTimesAdapter {
	return &NYTimesAdapter{cfg: cfg.withDefaults("https://api.nytimes.com")}
}

func (n *NYTimesAdapter) ID() ProviderID { return NYTimes }

func (n *NYTimesAdapter) BuildRequest(intent Intent) RequestSpec {
	params := url.Values{}
	params.Set("api-key", n.cfg.APIKey)
	switch intent.Mode {
	case ModeSearchTerm:
		params.Set("q", intent.Text)
	case ModeCategorySet, ModeAllPreferred:
		params.Set("fq", newsDeskFilter(intent.Categories))
	}
	params.Set("sort", "newest")
	return RequestSpec{
		Provider: NYTimes,
		Endpoint: n.cfg.BaseURL + "/svc/search/v2/articlesearch.json",
		Params:   params,
		secret:   []string{"api-key"},
	}
}

// newsDeskFilter renders categories as a Lucene field filter, e.g.
// news_desk:("Sports" "Business").
func newsDeskFilter(categories []string) string {
	quoted := make([]string, 0, len(categories))
	for _, c := range categories {
		quoted = append(quoted, strconv.Quote(c))
	}
	return "news_desk:(" + strings.Join(quoted, " ") + ")"
}

type nytimesResponse struct {
	Status   string `json:"status"`
	Fault    any    `json:"fault"`
	Response struct {
		Docs []nytimesDoc `json:"docs"`
	} `json:"response"`
}

type nytimesDoc struct {
	Headline struct {
		Main string `json:"main"`
	} `json:"headline"`
	Abstract   string `json:"abstract"`
	Snippet    string `json:"snippet"`
	WebURL     string `json:"web_url"`
	PubDate    string `json:"pub_date"`
	Source     string `json:"source"`
	Multimedia []struct {
		URL string `json:"url"`
	} `json:"multimedia"`
}

func (n *NYTimesAdapter) ParseResponse(resp RawResponse) ([]Article, error) {
	var body nytimesResponse
	if err := decodeBody(NYTimes, resp, &body); err != nil {
		return nil, err
	}
	if body.Fault != nil || (body.Status != "" && body.Status != "OK") {
		return nil, softFailure(NYTimes, "api status %q", body.Status)
	}

	articles := make([]Article, 0, len(body.Response.Docs))
	for _, doc := range body.Response.Docs {
		var images []string
		for _, m := range doc.Multimedia {
			images = append(images, absoluteNYTimesURL(m.URL))
		}
		a, ok := normalize(NYTimes, rawItem{
			title:       doc.Headline.Main,
			description: firstNonEmpty(doc.Abstract, doc.Snippet),
			url:         doc.WebURL,
			imageURLs:   images,
			dates:       []string{doc.PubDate},
			sourceName:  doc.Source,
		})
		if ok {
			articles = append(articles, a)
		}
	}
	return articles, nil
}

func absoluteNYTimesURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" || isAbsoluteURL(u) {
		return u
	}
	return nytimesSiteURL + strings.TrimLeft(u, "/")
}
