// Package session implements the aggregation session: the state machine that
// owns a reader's query inputs, runs a fetch cycle on every change and
// publishes the resulting feed.
//
// A single coordinator goroutine owns all mutable state. Fetch cycles run in
// their own goroutines, are tagged with the generation they were started for
// and report back over a channel; a result is applied only if no newer cycle
// has started since ("last request wins").
package session

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RobinCoderZhao/optimist-daily/internal/feed"
	"github.com/RobinCoderZhao/optimist-daily/internal/metrics"
)

var (
	ErrClosed         = errors.New("session closed")
	ErrNotStarted     = errors.New("session not started")
	ErrAlreadyStarted = errors.New("session already started")
)

// Status is the externally visible state of the session.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Settled reports whether the status is a cycle outcome.
func (s Status) Settled() bool {
	return s == StatusReady || s == StatusFailed
}

// Snapshot is an immutable view of the session. Feed and Status always come
// from the same cycle.
type Snapshot struct {
	Generation uint64            `json:"generation"`
	Intent     feed.Intent       `json:"intent"`
	Order      feed.SortOrder    `json:"order"`
	Status     Status            `json:"status"`
	Feed       []feed.Article    `json:"feed"`
	Failures   []feed.ProviderID `json:"failures,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Pipeline runs one aggregation cycle. *feed.Aggregator implements it.
type Pipeline interface {
	Run(ctx context.Context, intent feed.Intent, order feed.SortOrder) feed.Cycle
}

// PreferenceSource returns the reader's stored categories; nil means none.
type PreferenceSource func(ctx context.Context) ([]string, error)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithClock overrides the time source used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithInitialInputs seeds the search text, category and sort order used by
// the first cycle.
func WithInitialInputs(search, category string, order feed.SortOrder) Option {
	return func(s *Session) {
		s.search = search
		s.category = category
		if order != "" {
			s.order = order
		}
	}
}

// Session is one reader's aggregation state machine.
type Session struct {
	pipeline Pipeline
	prefs    PreferenceSource
	logger   *slog.Logger
	now      func() time.Time

	events  chan event
	results chan cycleResult
	done    chan struct{}
	stopped chan struct{}

	started   atomic.Bool
	closeOnce sync.Once
	cycles    sync.WaitGroup

	current atomic.Pointer[Snapshot]

	subMu   sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int

	// Owned by the coordinator goroutine once started.
	search      string
	category    string
	order       feed.SortOrder
	storedPrefs []string
	generation  uint64
	intent      feed.Intent
	cancelCycle context.CancelFunc
}

type event struct {
	apply func(s *Session)
	force bool
	reply chan Snapshot
}

type cycleResult struct {
	generation uint64
	cycle      feed.Cycle
}

// New creates an idle session. Call Start to load preferences and run the
// first cycle.
func New(pipeline Pipeline, prefs PreferenceSource, opts ...Option) *Session {
	s := &Session{
		pipeline: pipeline,
		prefs:    prefs,
		logger:   slog.Default(),
		now:      time.Now,
		events:   make(chan event),
		results:  make(chan cycleResult),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		subs:     make(map[int]chan Snapshot),
		order:    feed.Newest,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(&Snapshot{
		Order:     s.order,
		Status:    StatusIdle,
		Feed:      []feed.Article{},
		UpdatedAt: s.now(),
	})
	return s
}

// Start loads the stored preferences and starts the first fetch cycle. ctx
// bounds the lifetime of the session.
func (s *Session) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	select {
	case <-s.done:
		close(s.stopped)
		return ErrClosed
	default:
	}

	s.storedPrefs = s.loadPrefs(ctx)
	metrics.ActiveSessions.Inc()
	go s.run(ctx)

	_, err := s.send(event{force: true})
	return err
}

// SetSearchText changes the free-text query.
func (s *Session) SetSearchText(text string) (Snapshot, error) {
	return s.send(event{apply: func(s *Session) { s.search = text }})
}

// SetCategory changes the selected category; "All" selects the stored
// preferences.
func (s *Session) SetCategory(category string) (Snapshot, error) {
	return s.send(event{apply: func(s *Session) { s.category = category }})
}

// SetSortOrder changes the feed ordering.
func (s *Session) SetSortOrder(order feed.SortOrder) (Snapshot, error) {
	return s.send(event{apply: func(s *Session) { s.order = order }})
}

// Reload starts a new cycle for the current inputs.
func (s *Session) Reload() (Snapshot, error) {
	return s.send(event{force: true})
}

// RefreshPreferences re-reads the stored preferences. A new cycle starts only
// if the change affects the current query.
func (s *Session) RefreshPreferences(ctx context.Context) (Snapshot, error) {
	if !s.started.Load() {
		return s.Snapshot(), ErrNotStarted
	}
	prefs := s.loadPrefs(ctx)
	return s.send(event{apply: func(s *Session) { s.storedPrefs = prefs }})
}

// Snapshot returns the latest published state.
func (s *Session) Snapshot() Snapshot {
	return *s.current.Load()
}

// Subscribe returns a channel that always holds the most recent unread
// snapshot, starting with the current one. The channel is closed when the
// session closes or cancel is called.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.subMu.Lock()
	select {
	case <-s.done:
		s.subMu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.Snapshot()
	s.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

// Wait blocks until the cycle for the given generation, or a newer one, has
// settled.
func (s *Session) Wait(ctx context.Context, generation uint64) (Snapshot, error) {
	ch, cancel := s.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return s.Snapshot(), ctx.Err()
		case snap, ok := <-ch:
			if !ok {
				return s.Snapshot(), ErrClosed
			}
			if snap.Generation > generation || (snap.Generation == generation && snap.Status.Settled()) {
				return snap, nil
			}
		}
	}
}

// Close stops the coordinator, cancels any in-flight cycle and closes all
// subscriptions. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.started.Load() {
			<-s.stopped
			metrics.ActiveSessions.Dec()
		}
		s.cycles.Wait()

		s.subMu.Lock()
		for id, ch := range s.subs {
			delete(s.subs, id)
			close(ch)
		}
		s.subMu.Unlock()
	})
}

func (s *Session) send(ev event) (Snapshot, error) {
	if !s.started.Load() {
		return s.Snapshot(), ErrNotStarted
	}
	ev.reply = make(chan Snapshot, 1)
	select {
	case s.events <- ev:
	case <-s.done:
		return s.Snapshot(), ErrClosed
	case <-s.stopped:
		return s.Snapshot(), ErrClosed
	}
	return <-ev.reply, nil
}

func (s *Session) run(ctx context.Context) {
	defer close(s.stopped)
	defer func() {
		if s.cancelCycle != nil {
			s.cancelCycle()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case ev := <-s.events:
			if ev.apply != nil {
				ev.apply(s)
			}
			intent := feed.Plan(s.search, s.category, s.storedPrefs)
			cur := s.current.Load()
			if ev.force || !intent.Equal(s.intent) || s.order != cur.Order {
				s.startCycle(ctx, intent)
			}
			ev.reply <- s.Snapshot()
		case r := <-s.results:
			s.apply(r)
		}
	}
}

func (s *Session) startCycle(ctx context.Context, intent feed.Intent) {
	if s.cancelCycle != nil {
		s.cancelCycle()
	}
	s.generation++
	s.intent = intent
	gen, order := s.generation, s.order

	cycleCtx, cancel := context.WithCancel(ctx)
	s.cancelCycle = cancel

	prev := s.current.Load()
	s.publish(&Snapshot{
		Generation: gen,
		Intent:     intent,
		Order:      order,
		Status:     StatusLoading,
		Feed:       feed.Sort(prev.Feed, order),
		Failures:   prev.Failures,
		UpdatedAt:  s.now(),
	})
	s.logger.Debug("fetch cycle started", "generation", gen, "intent", intent.String(), "order", order)

	s.cycles.Add(1)
	go func() {
		defer s.cycles.Done()
		cycle := s.pipeline.Run(cycleCtx, intent, order)
		select {
		case s.results <- cycleResult{generation: gen, cycle: cycle}:
		case <-s.stopped:
		}
	}()
}

func (s *Session) apply(r cycleResult) {
	if r.generation != s.generation {
		s.logger.Debug("discarding stale cycle", "generation", r.generation, "current", s.generation)
		return
	}
	s.cancelCycle()
	s.cancelCycle = nil

	status := StatusReady
	articles := r.cycle.Articles
	if r.cycle.Failed {
		status = StatusFailed
		articles = nil
	}
	if articles == nil {
		articles = []feed.Article{}
	}

	cur := s.current.Load()
	s.publish(&Snapshot{
		Generation: r.generation,
		Intent:     cur.Intent,
		Order:      cur.Order,
		Status:     status,
		Feed:       articles,
		Failures:   slices.Clone(r.cycle.Failures),
		UpdatedAt:  s.now(),
	})
}

func (s *Session) publish(snap *Snapshot) {
	s.current.Store(snap)

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- *snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- *snap
		}
	}
}

func (s *Session) loadPrefs(ctx context.Context) []string {
	if s.prefs == nil {
		return nil
	}
	prefs, err := s.prefs(ctx)
	if err != nil {
		s.logger.Warn("failed to load category preferences", "error", err)
		return nil
	}
	return prefs
}
