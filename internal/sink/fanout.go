package sink

import (
	"log/slog"
	"sync"

	"github.com/openquant/feedbridge/internal/model"
)

// Aggregator fans records out to per-instrument consumers. The live session
// publishes into it; host enumerators consume the registered channels.
type Aggregator interface {
	// Register returns the consumer channel for an instrument, creating
	// the subscription if needed. Repeated calls return the same stream.
	Register(inst model.Instrument) <-chan model.BaseData

	// Unregister tears down the instrument's stream and closes its channel.
	Unregister(inst model.Instrument)

	// Publish routes a record to the instrument's consumer, if any.
	Publish(d model.BaseData)

	// Close tears down every stream.
	Close()
}

// subscriber pairs an instrument's smoothing buffer with the channel the
// pump goroutine drains it into.
type subscriber struct {
	buf  *buffer[model.BaseData]
	out  chan model.BaseData
	done chan struct{}
}

// Fanout is the in-process Aggregator.
type Fanout struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[model.Instrument]*subscriber
	wg   sync.WaitGroup
}

// NewFanout creates an empty fan-out sink.
func NewFanout(logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{
		logger: logger,
		subs:   make(map[model.Instrument]*subscriber),
	}
}

// Register returns the consumer channel for an instrument.
func (f *Fanout) Register(inst model.Instrument) <-chan model.BaseData {
	f.mu.Lock()
	defer f.mu.Unlock()

	if sub, ok := f.subs[inst]; ok {
		return sub.out
	}

	sub := &subscriber{
		buf:  newBuffer[model.BaseData](64),
		out:  make(chan model.BaseData),
		done: make(chan struct{}),
	}
	f.subs[inst] = sub

	f.wg.Add(1)
	go f.pump(sub)

	return sub.out
}

// Unregister closes the instrument's stream. Unknown instruments are a
// no-op.
func (f *Fanout) Unregister(inst model.Instrument) {
	f.mu.Lock()
	sub, ok := f.subs[inst]
	if ok {
		delete(f.subs, inst)
	}
	f.mu.Unlock()

	if ok {
		close(sub.done)
		sub.buf.close()
	}
}

// Publish routes a record to its instrument's buffer. Records for
// instruments nobody registered are dropped.
func (f *Fanout) Publish(d model.BaseData) {
	f.mu.Lock()
	sub, ok := f.subs[d.Instrument()]
	f.mu.Unlock()

	if ok {
		sub.buf.send(d)
	}
}

// Close tears down every stream and waits for the pumps to drain.
func (f *Fanout) Close() {
	f.mu.Lock()
	subs := make([]*subscriber, 0, len(f.subs))
	for inst, sub := range f.subs {
		subs = append(subs, sub)
		delete(f.subs, inst)
	}
	f.mu.Unlock()

	for _, sub := range subs {
		close(sub.done)
		sub.buf.close()
	}
	f.wg.Wait()
}

// pump drains one buffer into its consumer channel. A consumer that went
// away without draining cannot wedge teardown: done unblocks the send.
func (f *Fanout) pump(sub *subscriber) {
	defer f.wg.Done()
	defer close(sub.out)

	for {
		d, ok := sub.buf.receive()
		if !ok {
			return
		}
		select {
		case sub.out <- d:
		case <-sub.done:
			return
		}
	}
}
