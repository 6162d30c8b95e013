package live

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/openquant/feedbridge/internal/feed"
	"github.com/openquant/feedbridge/internal/model"
	"github.com/openquant/feedbridge/internal/sink"
)

type fakeFeed struct {
	mu        sync.Mutex
	watched   []string
	unwatched []string
	watchErr  error
	events    chan feed.PushedEvent
	state     func(bool)
}

func (f *fakeFeed) SetStateHandler(fn func(bool)) { f.state = fn }

func (f *fakeFeed) Watch(_ context.Context, sym string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watchErr != nil {
		return f.watchErr
	}
	f.watched = append(f.watched, sym)
	return nil
}

func (f *fakeFeed) Unwatch(_ context.Context, sym string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unwatched = append(f.unwatched, sym)
	return nil
}

func (f *fakeFeed) Events() <-chan feed.PushedEvent { return f.events }

func (f *fakeFeed) watchedSymbols() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.watched...)
}

func (f *fakeFeed) unwatchedSymbols() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.unwatched...)
}

func newTestSession(t *testing.T) (*Session, *fakeFeed) {
	t.Helper()
	f := &fakeFeed{events: make(chan feed.PushedEvent, 64)}
	logger := slog.New(slog.DiscardHandler)
	s := NewSession(f, sink.NewFanout(logger), time.UTC, logger)
	s.Start(context.Background())
	t.Cleanup(func() { s.Close() })
	return s, f
}

func recv(t *testing.T, ch <-chan model.BaseData) model.BaseData {
	t.Helper()
	select {
	case d, ok := <-ch:
		if !ok {
			t.Fatal("stream closed")
		}
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return nil
}

func expectNone(t *testing.T, ch <-chan model.BaseData) {
	t.Helper()
	select {
	case d := <-ch:
		t.Fatalf("unexpected event: %+v", d)
	case <-time.After(100 * time.Millisecond):
	}
}

func expectClosed(t *testing.T, ch <-chan model.BaseData) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream never closed")
		}
	}
}

func TestSubscribeUnsupportedMarket(t *testing.T) {
	s, _ := newTestSession(t)

	_, err := s.Subscribe(model.NewEquity("SHOP", "tsx"))
	if !errors.Is(err, ErrSubscriptionValidationFailed) {
		t.Fatalf("err = %v, want ErrSubscriptionValidationFailed", err)
	}
}

func TestSubscribeDeliversTrade(t *testing.T) {
	s, f := newTestSession(t)

	ch, err := s.Subscribe(model.NewEquity("AAPL", "usa"))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if got := f.watchedSymbols(); len(got) != 1 || got[0] != "AAPL" {
		t.Fatalf("watched = %v, want [AAPL]", got)
	}

	f.events <- feed.PushedEvent{Type: feed.EventTrade, Quote: feed.QuoteEvent{
		Symbol: "AAPL", Price: 190.5, Size: 100, Bid: 190.4, Ask: 190.6,
		Ts: "2025-01-02 15:00:00",
	}}

	tick, ok := recv(t, ch).(*model.Tick)
	if !ok {
		t.Fatal("expected a tick")
	}
	if tick.Kind != model.TickTrade || tick.Price != 190.5 || tick.Size != 100 {
		t.Errorf("unexpected tick: %+v", tick)
	}
	want := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	if !tick.TS.Equal(want) {
		t.Errorf("tick time = %v, want %v", tick.TS, want)
	}
}

func TestForexTradesClassifiedAsQuotes(t *testing.T) {
	s, _ := newTestSession(t)

	ch, err := s.Subscribe(model.NewForex("EURUSD", "fxcm"))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	s.handleEvent(feed.PushedEvent{Type: feed.EventTrade, Quote: feed.QuoteEvent{
		Symbol: "EURUSD", Price: 1.0842, Ts: "2025-01-02 15:00:00",
	}})

	tick := recv(t, ch).(*model.Tick)
	if tick.Kind != model.TickQuote {
		t.Errorf("tick kind = %v, want quote", tick.Kind)
	}
}

func TestCanonicalSubscribesUnderlying(t *testing.T) {
	s, f := newTestSession(t)

	canonical := model.NewCanonical("NG", "usa", model.KindFuture)
	ch, err := s.Subscribe(canonical)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if got := f.watchedSymbols(); len(got) != 1 || got[0] != "QNG" {
		t.Fatalf("watched = %v, want [QNG]", got)
	}

	f.events <- feed.PushedEvent{Type: feed.EventQuote, Quote: feed.QuoteEvent{
		Symbol: "QNG", Bid: 2.91, Ask: 2.93, Ts: "2025-01-02 15:00:00",
	}}

	tick := recv(t, ch).(*model.Tick)
	if tick.Inst != canonical {
		t.Errorf("tick dispatched to %v, want %v", tick.Inst, canonical)
	}
}

func TestUnsubscribeUnknownIsNoop(t *testing.T) {
	s, f := newTestSession(t)

	if err := s.Unsubscribe(model.NewEquity("AAPL", "usa")); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if got := f.unwatchedSymbols(); len(got) != 0 {
		t.Errorf("unwatched = %v, want none", got)
	}
}

func TestUnsubscribeClosesStream(t *testing.T) {
	s, f := newTestSession(t)

	inst := model.NewEquity("AAPL", "usa")
	ch, err := s.Subscribe(inst)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := s.Unsubscribe(inst); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if got := f.unwatchedSymbols(); len(got) != 1 || got[0] != "AAPL" {
		t.Errorf("unwatched = %v, want [AAPL]", got)
	}
	expectClosed(t, ch)
}

func TestOpenInterestDeduplicated(t *testing.T) {
	s, _ := newTestSession(t)

	inst := model.NewFuture("NG", "usa", time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC))
	ch, err := s.Subscribe(inst)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	for _, oi := range []int64{100, 100, 200} {
		s.handleEvent(feed.PushedEvent{Type: feed.EventOpenInterest, Quote: feed.QuoteEvent{
			Symbol: "QNGU25", OpenInterest: oi,
		}})
	}

	first := recv(t, ch).(*model.Tick)
	if first.Kind != model.TickOpenInterest || first.Value != 100 {
		t.Errorf("first oi = %+v", first)
	}
	second := recv(t, ch).(*model.Tick)
	if second.Value != 200 {
		t.Errorf("second oi = %+v", second)
	}
	expectNone(t, ch)
}

func TestSplitEmittedOnlyPreMarketOnEffectiveDate(t *testing.T) {
	s, _ := newTestSession(t)

	inst := model.NewEquity("AAPL", "usa")
	ch, err := s.Subscribe(inst)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	split := feed.PushedEvent{Type: feed.EventSplit, Quote: feed.QuoteEvent{
		Symbol: "AAPL", SplitFactor: 0.25, SplitDate: "2025-03-03",
		Ts: "2025-03-03 08:00:00",
	}}

	s.now = func() time.Time { return time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC) }
	s.handleEvent(split)
	ev, ok := recv(t, ch).(*model.SplitEvent)
	if !ok {
		t.Fatal("expected a split event")
	}
	if ev.Factor != 0.25 {
		t.Errorf("factor = %v, want 0.25", ev.Factor)
	}

	// After the cutoff the same notification is suppressed.
	s.now = func() time.Time { return time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC) }
	s.handleEvent(split)
	expectNone(t, ch)

	// Wrong effective date is suppressed regardless of time.
	s.now = func() time.Time { return time.Date(2025, 3, 4, 8, 0, 0, 0, time.UTC) }
	s.handleEvent(split)
	expectNone(t, ch)
}

func TestSymbolNotFoundEvicts(t *testing.T) {
	s, f := newTestSession(t)

	inst := model.NewEquity("BOGUS", "usa")
	ch, err := s.Subscribe(inst)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	f.events <- feed.PushedEvent{Type: feed.EventSymbolNotFound, Quote: feed.QuoteEvent{Symbol: "BOGUS"}}
	expectClosed(t, ch)

	// Eviction already removed it; a later unsubscribe is a no-op.
	if err := s.Unsubscribe(inst); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if got := f.unwatchedSymbols(); len(got) != 0 {
		t.Errorf("unwatched = %v, want none", got)
	}
}

func TestConnectionStateTracksCallbacks(t *testing.T) {
	s, f := newTestSession(t)

	if s.IsConnected() {
		t.Fatal("connected before any callback")
	}
	f.state(true)
	if !s.IsConnected() {
		t.Fatal("not connected after connect callback")
	}
	f.state(false)
	if s.IsConnected() {
		t.Fatal("still connected after disconnect callback")
	}
}
