package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// vendorStub is an in-process vendor speaking the JSON frame protocol on
// /admin, /quote and /lookup.
type vendorStub struct {
	t      *testing.T
	server *httptest.Server

	mu      sync.Mutex
	watched map[string]struct{}
	quoteWS *websocket.Conn

	// When rowCount is set, search responses serve that many generated
	// rows, pausing rowDelay before each one.
	rowDelay time.Duration
	rowCount int
}

func newVendorStub(t *testing.T) *vendorStub {
	t.Helper()
	v := &vendorStub{t: t, watched: make(map[string]struct{})}

	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/admin", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		v.serve(ws, RoleAdmin)
	})
	mux.HandleFunc("/quote", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		v.mu.Lock()
		v.quoteWS = ws
		v.mu.Unlock()
		v.serve(ws, RoleQuote)
	})
	mux.HandleFunc("/lookup", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		v.serve(ws, RoleLookup)
	})

	v.server = httptest.NewServer(mux)
	t.Cleanup(v.server.Close)
	return v
}

func (v *vendorStub) host() string {
	return strings.TrimPrefix(v.server.URL, "http://")
}

// pushQuote sends an unsolicited quote-port event. The quote handler runs
// on the server goroutine, so wait briefly for it to register.
func (v *vendorStub) pushQuote(eventType string, q QuoteEvent) {
	var ws *websocket.Conn
	deadline := time.Now().Add(2 * time.Second)
	for {
		v.mu.Lock()
		ws = v.quoteWS
		v.mu.Unlock()
		if ws != nil {
			break
		}
		if time.Now().After(deadline) {
			v.t.Fatal("quote connection not established")
		}
		time.Sleep(10 * time.Millisecond)
	}
	msg, _ := json.Marshal(q)
	frame, _ := json.Marshal(Event{Type: eventType, Msg: msg})
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		v.t.Fatalf("push quote: %v", err)
	}
}

func (v *vendorStub) serve(ws *websocket.Conn, role Role) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}

		switch cmd.Cmd {
		case "auth":
			// No response required.
		case "watch", "unwatch":
			params, _ := json.Marshal(cmd.Params)
			var wp WatchParams
			json.Unmarshal(params, &wp)
			v.mu.Lock()
			if cmd.Cmd == "watch" {
				v.watched[wp.Symbol] = struct{}{}
			} else {
				delete(v.watched, wp.Symbol)
			}
			v.mu.Unlock()
			v.reply(ws, Response{ID: cmd.ID, Type: "ok"})
		case "search":
			v.mu.Lock()
			delay, n := v.rowDelay, v.rowCount
			v.mu.Unlock()
			if n > 0 {
				for i := 0; i < n; i++ {
					time.Sleep(delay)
					msg, _ := json.Marshal(SymbolRow{Symbol: fmt.Sprintf("SYM%d", i), Kind: "equity", Market: "USA"})
					v.send(ws, Event{Type: EventRow, ID: cmd.ID, Msg: msg})
				}
				v.send(ws, Event{Type: EventEnd, ID: cmd.ID})
				continue
			}
			rows := []SymbolRow{
				{Symbol: "QNGU25", Kind: "future", Market: "NYMEX", Currency: "USD", Exchange: "NYMEX"},
				{Symbol: "QNGF26", Kind: "future", Market: "NYMEX", Currency: "USD", Exchange: "NYMEX"},
			}
			for _, row := range rows {
				msg, _ := json.Marshal(row)
				v.send(ws, Event{Type: EventRow, ID: cmd.ID, Msg: msg})
			}
			v.send(ws, Event{Type: EventEnd, ID: cmd.ID})
		case "history":
			rows := []HistoryRow{
				{Ts: "2024-03-01 09:30:00", Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100},
				{Ts: "2024-03-01 09:31:00", Open: 1.5, High: 2.5, Low: 1, Close: 2, Volume: 200},
			}
			for _, row := range rows {
				msg, _ := json.Marshal(row)
				v.send(ws, Event{Type: EventRow, ID: cmd.ID, Msg: msg})
			}
			v.send(ws, Event{Type: EventEnd, ID: cmd.ID})
		}
	}
}

func (v *vendorStub) reply(ws *websocket.Conn, resp Response) {
	data, _ := json.Marshal(resp)
	ws.WriteMessage(websocket.TextMessage, data)
}

func (v *vendorStub) send(ws *websocket.Conn, ev Event) {
	data, _ := json.Marshal(ev)
	ws.WriteMessage(websocket.TextMessage, data)
}

func testConfig(host string) Config {
	cfg := DefaultConfig()
	cfg.Host = host
	cfg.LookupClients = 2
	cfg.LookupTimeout = 5 * time.Second
	return cfg
}

func startClient(t *testing.T, v *vendorStub) *Client {
	t.Helper()
	c := NewClient(testConfig(v.host()), nil)
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		c.Stop(stopCtx)
	})
	return c
}

func TestClientConnects(t *testing.T) {
	v := newVendorStub(t)
	c := startClient(t, v)

	if !c.IsConnected() {
		t.Error("IsConnected = false after Start")
	}
}

func TestWatchUnwatch(t *testing.T) {
	v := newVendorStub(t)
	c := startClient(t, v)

	ctx := context.Background()
	if err := c.Watch(ctx, "AAPL"); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	v.mu.Lock()
	_, watched := v.watched["AAPL"]
	v.mu.Unlock()
	if !watched {
		t.Error("vendor did not record watch")
	}

	if err := c.Unwatch(ctx, "AAPL"); err != nil {
		t.Fatalf("Unwatch: %v", err)
	}

	v.mu.Lock()
	_, watched = v.watched["AAPL"]
	v.mu.Unlock()
	if watched {
		t.Error("vendor still has watch after unwatch")
	}
}

func TestSearchStreamsRows(t *testing.T) {
	v := newVendorStub(t)
	c := startClient(t, v)

	rows, err := c.Search(context.Background(), SearchParams{Pattern: "NG", Kind: "future"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	var got []SymbolRow
	for raw := range rows {
		var row SymbolRow
		if err := json.Unmarshal(raw, &row); err != nil {
			t.Fatalf("unmarshal row: %v", err)
		}
		got = append(got, row)
	}

	if len(got) != 2 {
		t.Fatalf("rows = %d, want 2", len(got))
	}
	if got[0].Symbol != "QNGU25" || got[1].Symbol != "QNGF26" {
		t.Errorf("unexpected rows: %+v", got)
	}
}

func TestHistoryStreamsRows(t *testing.T) {
	v := newVendorStub(t)
	c := startClient(t, v)

	rows, err := c.History(context.Background(), HistoryParams{Symbol: "AAPL", Interval: 60, Start: "2024-03-01 00:00:00"})
	if err != nil {
		t.Fatalf("History: %v", err)
	}

	var count int
	for range rows {
		count++
	}
	if count != 2 {
		t.Errorf("rows = %d, want 2", count)
	}
}

func TestSequentialStreamsReusePool(t *testing.T) {
	v := newVendorStub(t)
	c := startClient(t, v)

	// More requests than pool connections; each must complete.
	for i := 0; i < 6; i++ {
		rows, err := c.Search(context.Background(), SearchParams{Pattern: "NG"})
		if err != nil {
			t.Fatalf("Search %d: %v", i, err)
		}
		var n int
		for range rows {
			n++
		}
		if n != 2 {
			t.Fatalf("Search %d rows = %d, want 2", i, n)
		}
	}
}

func TestQuoteEventsDelivered(t *testing.T) {
	v := newVendorStub(t)
	c := startClient(t, v)

	v.pushQuote(EventTrade, QuoteEvent{
		Symbol: "AAPL",
		Price:  189.25,
		Size:   100,
		Basis:  "C",
		Ts:     "2024-03-01 10:15:00",
	})

	select {
	case ev := <-c.Events():
		if ev.Type != EventTrade {
			t.Errorf("Type = %q, want trade", ev.Type)
		}
		if ev.Quote.Symbol != "AAPL" || ev.Quote.Price != 189.25 {
			t.Errorf("unexpected payload: %+v", ev.Quote)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
}

func TestSlowStreamOutlivesLookupTimeout(t *testing.T) {
	v := newVendorStub(t)
	v.rowDelay = 150 * time.Millisecond
	v.rowCount = 4

	// Total stream time (600ms) exceeds the timeout, but every inter-row
	// gap stays inside it; the timeout is idle time, not stream length.
	cfg := testConfig(v.host())
	cfg.LookupTimeout = 300 * time.Millisecond

	c := NewClient(cfg, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		c.Stop(stopCtx)
	})

	rows, err := c.Search(context.Background(), SearchParams{Pattern: "SYM"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	var n int
	for range rows {
		n++
	}
	if n != 4 {
		t.Errorf("rows = %d, want 4; stream cut short", n)
	}
}

func TestStopWhileEventsFlowing(t *testing.T) {
	v := newVendorStub(t)
	c := NewClient(testConfig(v.host()), nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// First push waits for the quote connection to register.
	v.pushQuote(EventTrade, QuoteEvent{Symbol: "AAPL", Price: 1, Ts: "2024-03-01 10:15:00"})

	stop := make(chan struct{})
	var pushers sync.WaitGroup
	pushers.Add(1)
	go func() {
		defer pushers.Done()
		msg, _ := json.Marshal(QuoteEvent{Symbol: "AAPL", Price: 2})
		frame, _ := json.Marshal(Event{Type: EventTrade, Msg: msg})
		for {
			select {
			case <-stop:
				return
			default:
			}
			v.mu.Lock()
			ws := v.quoteWS
			v.mu.Unlock()
			if ws.WriteMessage(websocket.TextMessage, frame) != nil {
				return
			}
		}
	}()

	// An already-cancelled context forces the no-drain shutdown path while
	// events are still arriving.
	stopCtx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	close(stop)
	pushers.Wait()

	// The events channel must still close once the readers wind down.
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-c.Events():
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("events channel never closed after shutdown")
		}
	}
}

func TestStateHandlerFires(t *testing.T) {
	v := newVendorStub(t)

	var mu sync.Mutex
	var states []bool

	c := NewClient(testConfig(v.host()), nil)
	c.SetStateHandler(func(connected bool) {
		mu.Lock()
		states = append(states, connected)
		mu.Unlock()
	})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		c.Stop(stopCtx)
	}()

	mu.Lock()
	defer mu.Unlock()
	if len(states) == 0 || !states[0] {
		t.Errorf("states = %v, want leading true", states)
	}
}
