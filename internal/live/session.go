package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openquant/feedbridge/internal/feed"
	"github.com/openquant/feedbridge/internal/model"
	"github.com/openquant/feedbridge/internal/sink"
	"github.com/openquant/feedbridge/internal/symbol"
)

// ErrSubscriptionValidationFailed indicates a {kind, market} combination the
// vendor cannot stream.
var ErrSubscriptionValidationFailed = errors.New("subscription validation failed")

// preMarketCutoff is the vendor-local time after which same-day split
// notifications are no longer emitted.
var preMarketCutoff = 9*time.Hour + 30*time.Minute

// feedClient is the quote-port surface the session needs; satisfied by
// *feed.Client.
type feedClient interface {
	SetStateHandler(fn func(connected bool))
	Watch(ctx context.Context, symbol string) error
	Unwatch(ctx context.Context, symbol string) error
	Events() <-chan feed.PushedEvent
}

// Session owns live subscriptions for one vendor connection. Subscription
// state, last prices and last open interest live under a single lock; the
// time-zone cache takes concurrent reads on the dispatch path without it.
type Session struct {
	client feedClient
	agg    sink.Aggregator
	logger *slog.Logger

	vendorZone *time.Location
	zones      zoneCache
	now        func() time.Time

	mu        sync.Mutex
	subs      map[model.Instrument]struct{}
	bySymbol  map[string][]model.Instrument
	lastPrice map[model.Instrument]float64
	lastOI    map[model.Instrument]int64
	connected bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSession creates a live session over a vendor client and a sink. The
// session registers itself as the client's connection-state handler, so
// construct it before the client starts.
func NewSession(client feedClient, agg sink.Aggregator, vendorZone *time.Location, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if vendorZone == nil {
		vendorZone = time.UTC
	}

	s := &Session{
		client:     client,
		agg:        agg,
		logger:     logger,
		vendorZone: vendorZone,
		now:        time.Now,
		subs:       make(map[model.Instrument]struct{}),
		bySymbol:   make(map[string][]model.Instrument),
		lastPrice:  make(map[model.Instrument]float64),
		lastOI:     make(map[model.Instrument]int64),
		ctx:        context.Background(),
	}
	client.SetStateHandler(s.setConnected)
	return s
}

// Start launches the event consumer.
func (s *Session) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.consume()
}

// Close stops the consumer and tears down the sink streams.
func (s *Session) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.agg.Close()
	return nil
}

// IsConnected reports the quote-port state as of the last connect or
// disconnect callback.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Session) setConnected(connected bool) {
	s.mu.Lock()
	s.connected = connected
	s.mu.Unlock()
	s.logger.Info("vendor quote state changed", "connected", connected)
}

// Subscribe starts streaming an instrument and returns its event channel.
// A canonical derivative symbol subscribes to the vendor feed of its
// underlying; events on that feed then dispatch to the canonical instrument.
func (s *Session) Subscribe(inst model.Instrument) (<-chan model.BaseData, error) {
	if !marketSupported(inst) {
		return nil, fmt.Errorf("%w: %s on market %q",
			ErrSubscriptionValidationFailed, inst.Kind, inst.Market)
	}

	vendorSym, err := symbol.ToVendorTicker(inst)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if _, ok := s.subs[inst]; ok {
		ch := s.agg.Register(inst)
		s.mu.Unlock()
		return ch, nil
	}
	s.subs[inst] = struct{}{}
	s.bySymbol[vendorSym] = append(s.bySymbol[vendorSym], inst)
	needWatch := len(s.bySymbol[vendorSym]) == 1
	ch := s.agg.Register(inst)
	s.mu.Unlock()

	if needWatch {
		if err := s.client.Watch(s.ctx, vendorSym); err != nil {
			s.logger.Warn("watch failed", "symbol", vendorSym, "error", err)
			s.removeSubscription(inst, vendorSym)
			return nil, err
		}
	}

	s.logger.Info("subscribed", "instrument", inst.String(), "symbol", vendorSym)
	return ch, nil
}

// Unsubscribe stops streaming an instrument. Unknown instruments are a
// no-op. The vendor unwatch is best-effort; queued events already in flight
// may still be drained.
func (s *Session) Unsubscribe(inst model.Instrument) error {
	vendorSym, err := symbol.ToVendorTicker(inst)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.subs[inst]; !ok {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if s.removeSubscription(inst, vendorSym) {
		if err := s.client.Unwatch(s.ctx, vendorSym); err != nil {
			s.logger.Warn("unwatch failed", "symbol", vendorSym, "error", err)
		}
	}

	s.logger.Info("unsubscribed", "instrument", inst.String())
	return nil
}

// removeSubscription drops an instrument from the session state and the
// sink, reporting whether the vendor symbol has no remaining subscribers.
func (s *Session) removeSubscription(inst model.Instrument, vendorSym string) bool {
	s.mu.Lock()
	delete(s.subs, inst)
	delete(s.lastPrice, inst)
	delete(s.lastOI, inst)

	insts := s.bySymbol[vendorSym]
	for i, cur := range insts {
		if cur == inst {
			insts = append(insts[:i], insts[i+1:]...)
			break
		}
	}
	last := len(insts) == 0
	if last {
		delete(s.bySymbol, vendorSym)
	} else {
		s.bySymbol[vendorSym] = insts
	}
	s.agg.Unregister(inst)
	s.mu.Unlock()

	return last
}

func (s *Session) consume() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-s.client.Events():
			if !ok {
				return
			}
			s.handleEvent(ev)
		}
	}
}

func (s *Session) handleEvent(ev feed.PushedEvent) {
	q := ev.Quote

	if ev.Type == feed.EventSymbolNotFound {
		s.evict(q.Symbol)
		return
	}

	s.mu.Lock()
	insts := append([]model.Instrument(nil), s.bySymbol[q.Symbol]...)
	s.mu.Unlock()
	if len(insts) == 0 {
		return
	}

	ts, err := feed.ParseVendorTime(q.Ts, s.vendorZone)
	if err != nil {
		// Some event kinds omit a timestamp; stamp with arrival time.
		ts = s.now().In(s.vendorZone)
	}

	for _, inst := range insts {
		when := ts.In(s.zones.resolve(inst.Market))

		switch ev.Type {
		case feed.EventTrade, feed.EventQuote:
			s.publishTick(ev.Type, inst, when, q)
		case feed.EventSplit:
			if s.splitDue(q) {
				s.agg.Publish(&model.SplitEvent{Inst: inst, TS: when, Factor: q.SplitFactor})
			}
		case feed.EventOpenInterest:
			s.publishOpenInterest(inst, when, q.OpenInterest)
		case feed.EventFundamental:
			// Fundamentals carry nothing the host consumes today.
		}
	}
}

// publishTick classifies a price update. The vendor's update type decides
// trade vs quote except for forex, which is always a quote.
func (s *Session) publishTick(evType string, inst model.Instrument, when time.Time, q feed.QuoteEvent) {
	kind := model.TickQuote
	if evType == feed.EventTrade && inst.Kind != model.KindForex {
		kind = model.TickTrade
	}

	s.mu.Lock()
	s.lastPrice[inst] = q.Price
	s.mu.Unlock()

	s.agg.Publish(&model.Tick{
		Inst:    inst,
		TS:      when,
		Kind:    kind,
		Price:   q.Price,
		Size:    q.Size,
		Bid:     q.Bid,
		Ask:     q.Ask,
		BidSize: q.BidSize,
		AskSize: q.AskSize,
	})
}

// publishOpenInterest emits only when the figure changed since the last
// emission for the instrument.
func (s *Session) publishOpenInterest(inst model.Instrument, when time.Time, oi int64) {
	s.mu.Lock()
	changed := s.lastOI[inst] != oi
	if changed {
		s.lastOI[inst] = oi
	}
	s.mu.Unlock()

	if changed {
		s.agg.Publish(&model.Tick{Inst: inst, TS: when, Kind: model.TickOpenInterest, Value: oi})
	}
}

// splitDue accepts a split only on its effective date, before the
// pre-market cutoff in vendor-local time.
func (s *Session) splitDue(q feed.QuoteEvent) bool {
	if q.SplitFactor == 0 || q.SplitDate == "" {
		return false
	}
	d, err := time.ParseInLocation("2006-01-02", q.SplitDate, s.vendorZone)
	if err != nil {
		return false
	}

	now := s.now().In(s.vendorZone)
	ny, nm, nd := now.Date()
	dy, dm, dd := d.Date()
	if ny != dy || nm != dm || nd != dd {
		return false
	}

	cutoff := time.Date(ny, nm, nd, 0, 0, 0, 0, s.vendorZone).Add(preMarketCutoff)
	return now.Before(cutoff)
}

// evict drops every subscription on a symbol the vendor reports unknown.
func (s *Session) evict(vendorSym string) {
	s.mu.Lock()
	insts := s.bySymbol[vendorSym]
	delete(s.bySymbol, vendorSym)
	for _, inst := range insts {
		delete(s.subs, inst)
		delete(s.lastPrice, inst)
		delete(s.lastOI, inst)
		s.agg.Unregister(inst)
	}
	s.mu.Unlock()

	if len(insts) > 0 {
		s.logger.Warn("vendor does not recognize symbol, dropping subscriptions",
			"symbol", vendorSym,
			"count", len(insts),
		)
	}
}

func marketSupported(inst model.Instrument) bool {
	markets, ok := supportedMarkets[inst.Kind.String()]
	if !ok {
		return false
	}
	_, ok = markets[inst.Market]
	return ok
}
