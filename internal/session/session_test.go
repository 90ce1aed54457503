package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/RobinCoderZhao/optimist-daily/internal/feed"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakePipeline records every call and delegates to fn.
type fakePipeline struct {
	mu    sync.Mutex
	calls []feed.Intent
	fn    func(ctx context.Context, intent feed.Intent, order feed.SortOrder) feed.Cycle
}

func (f *fakePipeline) Run(ctx context.Context, intent feed.Intent, order feed.SortOrder) feed.Cycle {
	f.mu.Lock()
	f.calls = append(f.calls, intent)
	f.mu.Unlock()
	return f.fn(ctx, intent, order)
}

func (f *fakePipeline) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func article(url string, day int) feed.Article {
	return feed.Article{
		Title:       url,
		URL:         url,
		PublishedAt: time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
	}
}

// echoPipeline returns one article named after the intent.
func echoPipeline() *fakePipeline {
	return &fakePipeline{fn: func(_ context.Context, intent feed.Intent, order feed.SortOrder) feed.Cycle {
		return feed.Cycle{Articles: []feed.Article{article("https://example.com/"+intent.Mode.String()+"/"+intent.Keywords(), 1)}}
	}}
}

func staticPrefs(cats ...string) PreferenceSource {
	return func(context.Context) ([]string, error) { return cats, nil }
}

func startSession(t *testing.T, p Pipeline, prefs PreferenceSource, opts ...Option) *Session {
	t.Helper()
	s := New(p, prefs, opts...)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func waitSettled(t *testing.T, s *Session, gen uint64) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := s.Wait(ctx, gen)
	if err != nil {
		t.Fatalf("Wait(%d): %v (last status %s, generation %d)", gen, err, snap.Status, snap.Generation)
	}
	return snap
}

func TestNew_IsIdle(t *testing.T) {
	s := New(echoPipeline(), nil)
	defer s.Close()

	snap := s.Snapshot()
	if snap.Status != StatusIdle {
		t.Fatalf("expected idle, got %s", snap.Status)
	}
	if _, err := s.SetSearchText("x"); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestStart_UsesStoredPreferences(t *testing.T) {
	p := echoPipeline()
	s := startSession(t, p, staticPrefs("Sports", "Health"))

	snap := waitSettled(t, s, 1)
	if snap.Status != StatusReady {
		t.Fatalf("expected ready, got %s", snap.Status)
	}
	want := feed.Intent{Mode: feed.ModeAllPreferred, Categories: []string{"Sports", "Health"}}
	if diff := cmp.Diff(want, snap.Intent); diff != "" {
		t.Fatalf("intent mismatch (-want +got):\n%s", diff)
	}
	if len(snap.Feed) != 1 || snap.Feed[0].URL != "https://example.com/preferred/Sports OR Health" {
		t.Fatalf("unexpected feed: %+v", snap.Feed)
	}
}

func TestStart_PreferenceErrorFallsBackToGeneric(t *testing.T) {
	prefs := func(context.Context) ([]string, error) { return nil, errors.New("store down") }
	s := startSession(t, echoPipeline(), prefs)

	snap := waitSettled(t, s, 1)
	if snap.Intent.Mode != feed.ModeAllGeneric {
		t.Fatalf("expected generic intent, got %s", snap.Intent)
	}
}

func TestStart_Twice(t *testing.T) {
	s := startSession(t, echoPipeline(), nil)
	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestInputChangeStartsNewCycle(t *testing.T) {
	p := echoPipeline()
	s := startSession(t, p, nil)
	waitSettled(t, s, 1)

	snap, err := s.SetSearchText("  climate  ")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Generation != 2 {
		t.Fatalf("expected generation 2, got %d", snap.Generation)
	}
	if snap.Intent.Mode != feed.ModeSearchTerm || snap.Intent.Text != "climate" {
		t.Fatalf("unexpected intent %s", snap.Intent)
	}

	snap = waitSettled(t, s, 2)
	if snap.Feed[0].URL != "https://example.com/search/climate" {
		t.Fatalf("unexpected feed: %+v", snap.Feed)
	}
}

func TestUnchangedIntentIsNoop(t *testing.T) {
	p := echoPipeline()
	s := startSession(t, p, nil)
	waitSettled(t, s, 1)

	// Whitespace-only text plans to the same generic intent.
	snap, err := s.SetSearchText("   ")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Generation != 1 {
		t.Fatalf("expected no new cycle, got generation %d", snap.Generation)
	}
	if _, err := s.SetCategory("All"); err != nil {
		t.Fatal(err)
	}
	if got := s.Snapshot().Generation; got != 1 {
		t.Fatalf("expected generation 1, got %d", got)
	}
	if n := p.callCount(); n != 1 {
		t.Fatalf("expected 1 pipeline call, got %d", n)
	}
}

func TestSortOrderChange(t *testing.T) {
	p := &fakePipeline{fn: func(_ context.Context, _ feed.Intent, order feed.SortOrder) feed.Cycle {
		return feed.Cycle{Articles: feed.Sort([]feed.Article{article("https://a", 1), article("https://b", 2)}, order)}
	}}
	s := startSession(t, p, nil)
	first := waitSettled(t, s, 1)
	if first.Feed[0].URL != "https://b" {
		t.Fatalf("expected newest first, got %+v", first.Feed)
	}

	snap, err := s.SetSortOrder(feed.Oldest)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Status != StatusLoading || snap.Order != feed.Oldest {
		t.Fatalf("expected loading with oldest order, got %s/%s", snap.Status, snap.Order)
	}
	// The feed shown while loading is already in the new order.
	if snap.Feed[0].URL != "https://a" {
		t.Fatalf("loading feed not re-sorted: %+v", snap.Feed)
	}

	done := waitSettled(t, s, snap.Generation)
	if done.Feed[0].URL != "https://a" {
		t.Fatalf("expected oldest first, got %+v", done.Feed)
	}
}

func TestTotalFailureClearsFeed(t *testing.T) {
	p := &fakePipeline{fn: func(_ context.Context, intent feed.Intent, _ feed.SortOrder) feed.Cycle {
		if intent.Mode == feed.ModeCategorySet {
			return feed.Cycle{Failed: true, Failures: []feed.ProviderID{feed.MediaStack, feed.GNews}}
		}
		return feed.Cycle{Articles: []feed.Article{article("https://ok", 1)}}
	}}
	s := startSession(t, p, nil)
	if snap := waitSettled(t, s, 1); len(snap.Feed) != 1 {
		t.Fatalf("expected one article, got %d", len(snap.Feed))
	}

	snap, err := s.SetCategory("Sports")
	if err != nil {
		t.Fatal(err)
	}
	snap = waitSettled(t, s, snap.Generation)
	if snap.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", snap.Status)
	}
	if len(snap.Feed) != 0 {
		t.Fatalf("expected empty feed after total failure, got %+v", snap.Feed)
	}
	if diff := cmp.Diff([]feed.ProviderID{feed.MediaStack, feed.GNews}, snap.Failures); diff != "" {
		t.Fatalf("failures mismatch (-want +got):\n%s", diff)
	}

	// Failed is not terminal.
	snap, _ = s.SetCategory("All")
	if snap = waitSettled(t, s, snap.Generation); snap.Status != StatusReady {
		t.Fatalf("expected ready after recovery, got %s", snap.Status)
	}
}

// recordHandler forwards log records to a channel.
type recordHandler struct {
	ch chan slog.Record
}

func (h *recordHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *recordHandler) Handle(_ context.Context, r slog.Record) error {
	select {
	case h.ch <- r:
	default:
	}
	return nil
}
func (h *recordHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordHandler) WithGroup(string) slog.Handler      { return h }

func TestStaleResultDiscarded(t *testing.T) {
	gates := map[string]chan struct{}{
		"first":  make(chan struct{}),
		"second": make(chan struct{}),
	}
	p := &fakePipeline{fn: func(_ context.Context, intent feed.Intent, _ feed.SortOrder) feed.Cycle {
		// Deliberately ignores cancellation: correctness must not depend on it.
		if gate, ok := gates[intent.Text]; ok {
			<-gate
		}
		return feed.Cycle{Articles: []feed.Article{article("https://example.com/"+intent.Text, 1)}}
	}}
	logs := &recordHandler{ch: make(chan slog.Record, 64)}
	s := startSession(t, p, nil, WithLogger(slog.New(logs)))
	waitSettled(t, s, 1)

	first, _ := s.SetSearchText("first")
	second, _ := s.SetSearchText("second")
	if second.Generation != first.Generation+1 {
		t.Fatalf("expected consecutive generations, got %d and %d", first.Generation, second.Generation)
	}

	close(gates["second"])
	snap := waitSettled(t, s, second.Generation)
	if snap.Feed[0].URL != "https://example.com/second" {
		t.Fatalf("expected second cycle's feed, got %+v", snap.Feed)
	}

	close(gates["first"])
	deadline := time.After(2 * time.Second)
	for discarded := false; !discarded; {
		select {
		case r := <-logs.ch:
			if r.Message != "discarding stale cycle" {
				continue
			}
			r.Attrs(func(a slog.Attr) bool {
				if a.Key == "generation" && a.Value.Uint64() == first.Generation {
					discarded = true
				}
				return true
			})
		case <-deadline:
			t.Fatal("stale cycle was never discarded")
		}
	}

	final := s.Snapshot()
	if final.Generation != second.Generation || final.Feed[0].URL != "https://example.com/second" {
		t.Fatalf("stale result overwrote newer feed: %+v", final)
	}
}

func TestSupersededCycleIsCanceled(t *testing.T) {
	canceled := make(chan struct{})
	p := &fakePipeline{fn: func(ctx context.Context, intent feed.Intent, _ feed.SortOrder) feed.Cycle {
		if intent.Text == "slow" {
			<-ctx.Done()
			close(canceled)
			return feed.Cycle{Failed: true}
		}
		return feed.Cycle{}
	}}
	s := startSession(t, p, nil)
	waitSettled(t, s, 1)

	s.SetSearchText("slow")
	s.SetSearchText("fast")

	select {
	case <-canceled:
	case <-time.After(2 * time.Second):
		t.Fatal("superseded cycle context was not canceled")
	}
	if snap := waitSettled(t, s, 3); snap.Status != StatusReady {
		t.Fatalf("expected ready, got %s", snap.Status)
	}
}

func TestRefreshPreferences(t *testing.T) {
	var mu sync.Mutex
	cats := []string{"Sports"}
	prefs := func(context.Context) ([]string, error) {
		mu.Lock()
		defer mu.Unlock()
		return cats, nil
	}
	s := startSession(t, echoPipeline(), prefs)
	waitSettled(t, s, 1)

	mu.Lock()
	cats = []string{"Business", "Crime"}
	mu.Unlock()

	snap, err := s.RefreshPreferences(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.Generation != 2 {
		t.Fatalf("expected a new cycle, got generation %d", snap.Generation)
	}
	want := feed.Intent{Mode: feed.ModeAllPreferred, Categories: []string{"Business", "Crime"}}
	if diff := cmp.Diff(want, snap.Intent); diff != "" {
		t.Fatalf("intent mismatch (-want +got):\n%s", diff)
	}

	// With a search term active, preferences do not affect the query.
	s.SetSearchText("elections")
	before := s.Snapshot().Generation
	snap, _ = s.RefreshPreferences(context.Background())
	if snap.Generation != before {
		t.Fatalf("expected no new cycle, got generation %d (was %d)", snap.Generation, before)
	}
}

func TestReloadForcesCycle(t *testing.T) {
	p := echoPipeline()
	s := startSession(t, p, nil)
	waitSettled(t, s, 1)

	snap, err := s.Reload()
	if err != nil {
		t.Fatal(err)
	}
	waitSettled(t, s, snap.Generation)
	if n := p.callCount(); n != 2 {
		t.Fatalf("expected 2 pipeline calls, got %d", n)
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	s := startSession(t, echoPipeline(), nil)
	waitSettled(t, s, 1)

	ch, cancel := s.Subscribe()
	defer cancel()

	if snap := <-ch; snap.Generation != 1 {
		t.Fatalf("expected current snapshot first, got generation %d", snap.Generation)
	}
	s.SetCategory("Health")

	timeout := time.After(2 * time.Second)
	for {
		select {
		case snap := <-ch:
			if snap.Generation == 2 && snap.Status == StatusReady {
				return
			}
		case <-timeout:
			t.Fatal("did not observe the ready snapshot")
		}
	}
}

func TestCloseEndsSession(t *testing.T) {
	block := make(chan struct{})
	p := &fakePipeline{fn: func(ctx context.Context, _ feed.Intent, _ feed.SortOrder) feed.Cycle {
		select {
		case <-ctx.Done():
		case <-block:
		}
		return feed.Cycle{}
	}}
	s := New(p, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	ch, _ := s.Subscribe()

	s.Close()
	s.Close()

	for range ch {
	}
	if _, err := s.SetSearchText("x"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := s.Wait(context.Background(), 99); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from Wait, got %v", err)
	}
}
