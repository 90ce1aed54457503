package feed

import "log/slog"

// ProvidersConfig holds the settings of every supported provider.
type ProvidersConfig struct {
	MediaStack       ProviderConfig `yaml:"mediastack"`
	GNews            ProviderConfig `yaml:"gnews"`
	NewsAPI          ProviderConfig `yaml:"newsapi"`
	NewsAPIHeadlines ProviderConfig `yaml:"newsapi_headlines"`
	NYTimes          ProviderConfig `yaml:"nytimes"`
}

// BuildAdapters returns the adapters that are enabled and have an API key,
// in the fixed provider call order.
func BuildAdapters(cfg ProvidersConfig) []Adapter {
	candidates := []struct {
		id  ProviderID
		cfg ProviderConfig
		new func(ProviderConfig) Adapter
	}{
		{MediaStack, cfg.MediaStack, func(c ProviderConfig) Adapter { return NewMediaStackAdapter(c) }},
		{GNews, cfg.GNews, func(c ProviderConfig) Adapter { return NewGNewsAdapter(c) }},
		{NewsAPI, cfg.NewsAPI, func(c ProviderConfig) Adapter { return NewNewsAPIAdapter(c) }},
		{NewsAPIHeadlines, cfg.NewsAPIHeadlines, func(c ProviderConfig) Adapter { return NewNewsAPIHeadlinesAdapter(c) }},
		{NYTimes, cfg.NYTimes, func(c ProviderConfig) Adapter { return NewNYTimesAdapter(c) }},
	}

	var adapters []Adapter
	for _, c := range candidates {
		switch {
		case !c.cfg.Enabled:
			slog.Debug("provider disabled", "provider", c.id)
		case c.cfg.APIKey == "":
			slog.Warn("provider enabled without API key, skipping", "provider", c.id)
		default:
			adapters = append(adapters, c.new(c.cfg))
		}
	}
	return adapters
}
