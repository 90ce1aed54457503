package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/RobinCoderZhao/optimist-daily/internal/metrics"
)

// ErrNoProviders is recorded when a cycle has no provider requests at all.
var ErrNoProviders = errors.New("no providers configured")

const (
	defaultTimeout   = 8 * time.Second
	defaultMaxBody   = 2 << 20
	defaultUserAgent = "OptimistDaily/1.0 (+https://github.com/RobinCoderZhao/optimist-daily)"
)

// Result is the fan-in of one cycle's provider calls.
type Result struct {
	// Articles is the union of every successful provider's articles in
	// request order. It is empty on total failure.
	Articles []Article

	// Failures maps each failed provider to the reason.
	Failures map[ProviderID]error

	requested int
}

// TotalFailure reports whether no provider succeeded.
func (r Result) TotalFailure() bool {
	return r.requested == 0 || len(r.Failures) >= r.requested
}

// FailedProviders returns the failed provider IDs in request order.
func (r Result) FailedProviders(specs []RequestSpec) []ProviderID {
	var ids []ProviderID
	for _, s := range specs {
		if _, failed := r.Failures[s.Provider]; failed {
			ids = append(ids, s.Provider)
		}
	}
	return ids
}

// Executor issues provider requests concurrently and collects whichever
// succeed.
type Executor struct {
	adapters  map[ProviderID]Adapter
	client    *http.Client
	timeout   time.Duration
	maxBody   int64
	userAgent string
	logger    *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithHTTPClient sets the client used for provider calls.
func WithHTTPClient(c *http.Client) ExecutorOption {
	return func(e *Executor) { e.client = c }
}

// WithTimeout bounds each individual provider call.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithMaxBodyBytes caps how much of a provider response is read.
func WithMaxBodyBytes(n int64) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxBody = n
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ExecutorOption {
	return func(e *Executor) {
		if ua != "" {
			e.userAgent = ua
		}
	}
}

// NewExecutor creates an executor that parses responses with the given adapters.
func NewExecutor(adapters []Adapter, opts ...ExecutorOption) *Executor {
	e := &Executor{
		adapters:  make(map[ProviderID]Adapter, len(adapters)),
		client:    &http.Client{},
		timeout:   defaultTimeout,
		maxBody:   defaultMaxBody,
		userAgent: defaultUserAgent,
		logger:    slog.Default(),
	}
	for _, a := range adapters {
		e.adapters[a.ID()] = a
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs every spec concurrently. One provider's failure or timeout
// never prevents the others' results from being used.
func (e *Executor) Execute(ctx context.Context, specs []RequestSpec) Result {
	type callResult struct {
		index    int
		articles []Article
		err      error
	}

	ch := make(chan callResult, len(specs))
	for i, spec := range specs {
		go func(i int, spec RequestSpec) {
			defer func() {
				if r := recover(); r != nil {
					ch <- callResult{index: i, err: fmt.Errorf("%s: panic: %v: %w", spec.Provider, r, ErrSoftFailure)}
				}
			}()
			articles, err := e.call(ctx, spec)
			ch <- callResult{index: i, articles: articles, err: err}
		}(i, spec)
	}

	perSpec := make([][]Article, len(specs))
	res := Result{Failures: make(map[ProviderID]error), requested: len(specs)}
	for range specs {
		r := <-ch
		p := specs[r.index].Provider
		if r.err != nil {
			if ctx.Err() != nil {
				e.logger.Debug("provider call abandoned", "provider", p, "error", r.err)
			} else {
				e.logger.Warn("provider skipped", "provider", p, "error", r.err)
			}
			res.Failures[p] = r.err
			continue
		}
		perSpec[r.index] = r.articles
	}

	if len(specs) == 0 {
		e.logger.Warn("fetch cycle has no providers", "error", ErrNoProviders)
		return res
	}
	if res.TotalFailure() {
		return res
	}
	for _, articles := range perSpec {
		res.Articles = append(res.Articles, articles...)
	}
	return res
}

func (e *Executor) call(ctx context.Context, spec RequestSpec) (articles []Article, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveProviderCall(string(spec.Provider), outcome(err), time.Since(start), len(articles))
	}()

	adapter, ok := e.adapters[spec.Provider]
	if !ok {
		return nil, fmt.Errorf("%s: no adapter registered: %w", spec.Provider, ErrSoftFailure)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w: %w", spec.Provider, ErrSoftFailure, err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request: %w: %w", spec.Provider, ErrSoftFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBody))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w: %w", spec.Provider, ErrSoftFailure, err)
	}

	return adapter.ParseResponse(RawResponse{StatusCode: resp.StatusCode, Body: body})
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "failed"
	}
}
