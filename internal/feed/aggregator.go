package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/RobinCoderZhao/optimist-daily/internal/metrics"
)

// Fetcher executes provider request specs. *Executor is the production
// implementation.
type Fetcher interface {
	Execute(ctx context.Context, specs []RequestSpec) Result
}

// Cycle is the outcome of one full aggregation pass.
type Cycle struct {
	Articles []Article
	Failures []ProviderID
	Failed   bool
}

// Aggregator runs the pipeline for one intent: build a request per adapter,
// fan out, dedupe, sort.
type Aggregator struct {
	adapters []Adapter
	fetcher  Fetcher
	logger   *slog.Logger
}

// NewAggregator creates an aggregator over the given adapters.
func NewAggregator(adapters []Adapter, fetcher Fetcher) *Aggregator {
	return &Aggregator{
		adapters: adapters,
		fetcher:  fetcher,
		logger:   slog.Default(),
	}
}

// Adapters returns the configured adapters in call order.
func (a *Aggregator) Adapters() []Adapter {
	return a.adapters
}

// Requests builds one request spec per adapter for the intent.
func (a *Aggregator) Requests(intent Intent) []RequestSpec {
	specs := make([]RequestSpec, 0, len(a.adapters))
	for _, ad := range a.adapters {
		specs = append(specs, ad.BuildRequest(intent))
	}
	return specs
}

// Run executes one aggregation cycle. On total failure the cycle is marked
// Failed and carries no articles.
func (a *Aggregator) Run(ctx context.Context, intent Intent, order SortOrder) Cycle {
	start := time.Now()
	specs := a.Requests(intent)
	res := a.fetcher.Execute(ctx, specs)

	cycle := Cycle{Failures: res.FailedProviders(specs)}
	if res.TotalFailure() {
		cycle.Failed = true
		metrics.ObserveCycle("failed", time.Since(start))
		a.logger.Warn("all providers failed", "intent", intent.String(), "providers", len(specs))
		return cycle
	}

	cycle.Articles = Sort(Dedupe(res.Articles), order)
	metrics.ObserveCycle("ready", time.Since(start))
	a.logger.Info("feed cycle complete",
		"intent", intent.String(),
		"order", order,
		"fetched", len(res.Articles),
		"unique", len(cycle.Articles),
		"failed_providers", len(cycle.Failures),
		"duration", time.Since(start),
	)
	return cycle
}
