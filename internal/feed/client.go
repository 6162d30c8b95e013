package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// watchTimeout bounds quote-port watch/unwatch commands.
const watchTimeout = 10 * time.Second

// portState holds one vendor connection plus its command correlation state.
type portState struct {
	conn Conn
	role Role
	idx  int

	pendingMu sync.Mutex
	pending   map[int64]chan Response
	streams   map[int64]chan json.RawMessage

	cmdID int64 // atomic
}

// Client owns all vendor connections: one admin, one quote, and a pool of
// lookup connections checked out per search/history request.
type Client struct {
	cfg    Config
	logger *slog.Logger

	admin   *portState
	quote   *portState
	lookups []*portState

	// Idle lookup connections.
	pool chan *portState

	// Parsed quote-port events for the session to consume.
	events chan PushedEvent

	// Quote symbols to re-watch after reconnect.
	watchMu sync.Mutex
	watched map[string]struct{}

	// Invoked synchronously on quote connect/disconnect.
	stateHandler func(connected bool)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient creates a vendor client. Connections are established by Start.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LookupClients < 1 {
		cfg.LookupClients = 1
	}

	return &Client{
		cfg:     cfg,
		logger:  logger,
		pool:    make(chan *portState, cfg.LookupClients),
		events:  make(chan PushedEvent, cfg.BufferSize),
		watched: make(map[string]struct{}),
	}
}

// SetStateHandler registers the connected-flag callback. Must be called
// before Start.
func (c *Client) SetStateHandler(fn func(connected bool)) {
	c.stateHandler = fn
}

// Start connects every port and begins reading.
func (c *Client) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.admin = c.newPortState(RoleAdmin, 0)
	if err := c.admin.conn.Connect(c.ctx); err != nil {
		return fmt.Errorf("connect admin port: %w", err)
	}

	c.quote = c.newPortState(RoleQuote, 0)
	if err := c.quote.conn.Connect(c.ctx); err != nil {
		c.admin.conn.Close()
		return fmt.Errorf("connect quote port: %w", err)
	}

	for i := 0; i < c.cfg.LookupClients; i++ {
		ps := c.newPortState(RoleLookup, i)
		if err := ps.conn.Connect(c.ctx); err != nil {
			// A degraded pool is usable; reconnect will restore it.
			c.logger.Warn("failed to connect lookup port", "idx", i, "error", err)
			c.wg.Add(1)
			go c.reconnect(ps)
		} else {
			c.pool <- ps
		}
		c.lookups = append(c.lookups, ps)
	}

	c.wg.Add(2)
	go c.readAdmin(c.admin)
	go c.readQuote(c.quote)
	for _, ps := range c.lookups {
		if ps.conn.IsConnected() {
			c.wg.Add(1)
			go c.readLookup(ps)
		}
	}

	c.notifyState(true)

	c.logger.Info("vendor client started",
		"host", c.cfg.Host,
		"lookup_clients", c.cfg.LookupClients,
	)

	return nil
}

// Stop closes all connections and waits for readers with the context's
// deadline as the in-flight drain grace period.
func (c *Client) Stop(ctx context.Context) error {
	c.logger.Info("stopping vendor client")

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	drained := false
	select {
	case <-done:
		drained = true
	case <-ctx.Done():
		c.logger.Warn("shutdown timeout, forcing close")
	}

	if c.admin != nil {
		c.admin.conn.Close()
	}
	if c.quote != nil {
		c.quote.conn.Close()
	}
	for _, ps := range c.lookups {
		ps.conn.Close()
	}

	// The events channel can only be closed once every reader has exited;
	// on a forced close consumers detect shutdown through their own context
	// and the channel is left open.
	if drained {
		close(c.events)
	} else {
		go func() {
			<-done
			close(c.events)
		}()
	}
	c.logger.Info("vendor client stopped")
	return nil
}

// IsConnected reports the quote-port connection state.
func (c *Client) IsConnected() bool {
	return c.quote != nil && c.quote.conn.IsConnected()
}

// Events returns parsed quote-port events.
func (c *Client) Events() <-chan PushedEvent {
	return c.events
}

// Watch subscribes a vendor symbol on the quote port.
func (c *Client) Watch(ctx context.Context, symbol string) error {
	if err := c.command(ctx, c.quote, "watch", WatchParams{Symbol: symbol}, watchTimeout); err != nil {
		return err
	}

	c.watchMu.Lock()
	c.watched[symbol] = struct{}{}
	c.watchMu.Unlock()
	return nil
}

// Unwatch removes a vendor symbol from the quote port. Unknown symbols are
// still sent; the vendor treats them as a no-op.
func (c *Client) Unwatch(ctx context.Context, symbol string) error {
	c.watchMu.Lock()
	delete(c.watched, symbol)
	c.watchMu.Unlock()

	return c.command(ctx, c.quote, "unwatch", WatchParams{Symbol: symbol}, watchTimeout)
}

// Search runs a symbol lookup and streams raw result rows. The returned
// channel is closed when the vendor signals end-of-rows, on timeout, or on
// connection failure.
func (c *Client) Search(ctx context.Context, params SearchParams) (<-chan json.RawMessage, error) {
	return c.stream(ctx, "search", params)
}

// History runs a historical request and streams raw result rows.
func (c *Client) History(ctx context.Context, params HistoryParams) (<-chan json.RawMessage, error) {
	return c.stream(ctx, "history", params)
}

// -----------------------------------------------------------------------------
// internals
// -----------------------------------------------------------------------------

func (c *Client) newPortState(role Role, idx int) *portState {
	return &portState{
		conn:    NewConn(c.cfg, role, c.logger.With("role", role, "idx", idx)),
		role:    role,
		idx:     idx,
		pending: make(map[int64]chan Response),
		streams: make(map[int64]chan json.RawMessage),
	}
}

func (c *Client) notifyState(connected bool) {
	if c.stateHandler != nil {
		c.stateHandler(connected)
	}
}

// command sends a correlated command and waits for ok/error.
func (c *Client) command(ctx context.Context, ps *portState, cmd string, params interface{}, timeout time.Duration) error {
	id := atomic.AddInt64(&ps.cmdID, 1)
	respCh := make(chan Response, 1)

	ps.pendingMu.Lock()
	ps.pending[id] = respCh
	ps.pendingMu.Unlock()

	defer func() {
		ps.pendingMu.Lock()
		delete(ps.pending, id)
		ps.pendingMu.Unlock()
	}()

	data, err := marshalCommand(Command{ID: id, Cmd: cmd, Params: params})
	if err != nil {
		return err
	}
	if err := ps.conn.Send(data); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return c.ctx.Err()
	case <-time.After(timeout):
		return ErrTimeout
	case resp := <-respCh:
		if resp.Type == "error" {
			var em ErrorMsg
			json.Unmarshal(resp.Msg, &em)
			return fmt.Errorf("%s: %s", em.Code, em.Message)
		}
		return nil
	}
}

// stream checks out a lookup connection, sends a correlated command, and
// forwards row events until end-of-rows. The connection returns to the pool
// when the stream completes; a timed-out or failed connection is recycled
// instead so a stale stream cannot pollute the next request.
func (c *Client) stream(ctx context.Context, cmd string, params interface{}) (<-chan json.RawMessage, error) {
	var ps *portState
	select {
	case ps = <-c.pool:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	case <-time.After(c.cfg.LookupTimeout):
		return nil, ErrTimeout
	}

	id := atomic.AddInt64(&ps.cmdID, 1)
	rows := make(chan json.RawMessage, 256)

	ps.pendingMu.Lock()
	ps.streams[id] = rows
	ps.pendingMu.Unlock()

	data, err := marshalCommand(Command{ID: id, Cmd: cmd, Params: params})
	if err != nil {
		c.abandonStream(ps, id, true)
		return nil, err
	}
	if err := ps.conn.Send(data); err != nil {
		// Broken connection; the lookup reader's error path re-pools it
		// after reconnect.
		c.abandonStream(ps, id, false)
		return nil, err
	}

	out := make(chan json.RawMessage, 256)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(out)

		// Idle timer: each row pushes the deadline out, so a long but
		// steadily producing stream is never cut off mid-flight.
		idle := time.NewTimer(c.cfg.LookupTimeout)
		defer idle.Stop()

		for {
			select {
			case row, ok := <-rows:
				if !ok {
					// End-of-rows: readLookup already released the conn.
					return
				}
				idle.Reset(c.cfg.LookupTimeout)
				select {
				case out <- row:
				case <-ctx.Done():
					c.abandonStream(ps, id, false)
					return
				}
			case <-idle.C:
				c.logger.Warn("lookup stream idle timeout", "cmd", cmd, "idx", ps.idx)
				c.abandonStream(ps, id, false)
				return
			case <-ctx.Done():
				c.abandonStream(ps, id, false)
				return
			case <-c.ctx.Done():
				c.abandonStream(ps, id, false)
				return
			}
		}
	}()

	return out, nil
}

// abandonStream drops a stream registration without closing its channel
// (only the lookup reader closes stream channels). With repool=false the
// connection stays out of the pool until the vendor's end-of-rows for the
// abandoned stream, or the reconnect path, returns it.
func (c *Client) abandonStream(ps *portState, id int64, repool bool) {
	ps.pendingMu.Lock()
	delete(ps.streams, id)
	ps.pendingMu.Unlock()

	if repool {
		select {
		case c.pool <- ps:
		default:
		}
	}
}

// readAdmin drains health/stats events from the admin port.
func (c *Client) readAdmin(ps *portState) {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case err := <-ps.conn.Errors():
			c.logger.Warn("admin connection error", "error", err)
			c.wg.Add(1)
			go c.reconnect(ps)
			return
		case data, ok := <-ps.conn.Messages():
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal(data, &ev); err == nil && ev.Type == EventStats {
				c.logger.Debug("vendor stats", "msg", string(ev.Msg))
			}
		}
	}
}

// readQuote parses quote-port frames into events.
func (c *Client) readQuote(ps *portState) {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case err := <-ps.conn.Errors():
			c.logger.Warn("quote connection error", "error", err)
			c.notifyState(false)
			c.wg.Add(1)
			go c.reconnect(ps)
			return
		case data, ok := <-ps.conn.Messages():
			if !ok {
				return
			}

			if resp, ok := tryParseResponse(data); ok {
				ps.routeResponse(resp)
				continue
			}

			var ev Event
			if err := json.Unmarshal(data, &ev); err != nil {
				c.logger.Warn("unparseable quote frame", "error", err)
				continue
			}

			switch ev.Type {
			case EventQuote, EventTrade, EventFundamental, EventSplit, EventOpenInterest, EventSymbolNotFound:
				var q QuoteEvent
				if err := json.Unmarshal(ev.Msg, &q); err != nil {
					c.logger.Warn("unparseable quote payload", "type", ev.Type, "error", err)
					continue
				}
				select {
				case c.events <- PushedEvent{Type: ev.Type, Quote: q}:
				case <-c.ctx.Done():
					return
				default:
					c.logger.Warn("event buffer full, dropping", "type", ev.Type, "symbol", q.Symbol)
				}
			case EventTimestamp:
				// Vendor clock beacons carry no data we keep.
			default:
				c.logger.Debug("skipping quote frame", "type", ev.Type)
			}
		}
	}
}

// readLookup routes correlated responses and row streams.
func (c *Client) readLookup(ps *portState) {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case err := <-ps.conn.Errors():
			c.logger.Warn("lookup connection error", "idx", ps.idx, "error", err)
			ps.failStreams()
			c.wg.Add(1)
			go c.reconnect(ps)
			return
		case data, ok := <-ps.conn.Messages():
			if !ok {
				return
			}

			if resp, ok := tryParseResponse(data); ok {
				ps.routeResponse(resp)
				continue
			}

			var ev Event
			if err := json.Unmarshal(data, &ev); err != nil {
				c.logger.Warn("unparseable lookup frame", "idx", ps.idx, "error", err)
				continue
			}

			switch ev.Type {
			case EventRow:
				ps.pendingMu.Lock()
				ch, ok := ps.streams[ev.ID]
				ps.pendingMu.Unlock()
				if !ok {
					continue // stream abandoned (timeout/cancel)
				}
				select {
				case ch <- ev.Msg:
				case <-c.ctx.Done():
					return
				}
			case EventEnd:
				ps.pendingMu.Lock()
				ch, ok := ps.streams[ev.ID]
				if ok {
					delete(ps.streams, ev.ID)
				}
				ps.pendingMu.Unlock()
				if ok {
					close(ch)
				}
				// End-of-rows frees the connection even when the caller
				// abandoned the stream earlier.
				select {
				case c.pool <- ps:
				default:
				}
			default:
				c.logger.Debug("skipping lookup frame", "type", ev.Type)
			}
		}
	}
}

// failStreams closes every in-flight stream on a dying connection.
func (ps *portState) failStreams() {
	ps.pendingMu.Lock()
	for id, ch := range ps.streams {
		close(ch)
		delete(ps.streams, id)
	}
	ps.pendingMu.Unlock()
}

func (ps *portState) routeResponse(resp Response) {
	ps.pendingMu.Lock()
	ch, ok := ps.pending[resp.ID]
	if ok {
		delete(ps.pending, resp.ID)
	}
	ps.pendingMu.Unlock()

	if ok {
		select {
		case ch <- resp:
		default:
		}
	}
}

// reconnect re-establishes a dead connection with exponential backoff.
func (c *Client) reconnect(ps *portState) {
	defer c.wg.Done()

	wait := c.cfg.ReconnectBaseDelay
	maxWait := c.cfg.ReconnectMaxDelay

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(wait):
		}

		c.logger.Info("attempting reconnection", "role", ps.role, "idx", ps.idx)

		ps.conn.Close()
		ps.conn = NewConn(c.cfg, ps.role, c.logger.With("role", ps.role, "idx", ps.idx))

		ps.pendingMu.Lock()
		ps.pending = make(map[int64]chan Response)
		ps.streams = make(map[int64]chan json.RawMessage)
		ps.pendingMu.Unlock()

		if err := ps.conn.Connect(c.ctx); err != nil {
			c.logger.Warn("reconnection failed", "role", ps.role, "error", err)
			wait *= 2
			if wait > maxWait {
				wait = maxWait
			}
			continue
		}

		c.logger.Info("reconnected", "role", ps.role, "idx", ps.idx)

		switch ps.role {
		case RoleQuote:
			c.rewatch(ps)
			c.notifyState(true)
			c.wg.Add(1)
			go c.readQuote(ps)
		case RoleAdmin:
			c.wg.Add(1)
			go c.readAdmin(ps)
		case RoleLookup:
			c.wg.Add(1)
			go c.readLookup(ps)
			select {
			case c.pool <- ps:
			default:
			}
		}

		return
	}
}

// rewatch resubscribes the active symbol set after a quote reconnect.
func (c *Client) rewatch(ps *portState) {
	c.watchMu.Lock()
	symbols := make([]string, 0, len(c.watched))
	for s := range c.watched {
		symbols = append(symbols, s)
	}
	c.watchMu.Unlock()

	for _, s := range symbols {
		if err := c.command(c.ctx, ps, "watch", WatchParams{Symbol: s}, watchTimeout); err != nil {
			c.logger.Warn("failed to rewatch symbol", "symbol", s, "error", err)
		}
	}
}

// tryParseResponse attempts to parse a frame as a command response.
func tryParseResponse(data []byte) (Response, bool) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, false
	}
	switch resp.Type {
	case "ok", "error":
		return resp, true
	}
	return Response{}, false
}

func marshalCommand(cmd Command) ([]byte, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("marshal command: %w", err)
	}
	return data, nil
}
