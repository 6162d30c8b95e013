package sink

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/openquant/feedbridge/internal/model"
)

// NATSPublisher decorates an Aggregator, mirroring every published record
// to a NATS subject of the form <prefix>.<kind>.<ticker>. Publishing is
// fire-and-forget; a slow or down bus never blocks the live path.
type NATSPublisher struct {
	inner  Aggregator
	nc     *nats.Conn
	prefix string
	logger *slog.Logger
}

// NewNATSPublisher connects to the bus and wraps the given aggregator.
func NewNATSPublisher(url, prefix string, inner Aggregator, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	return &NATSPublisher{
		inner:  inner,
		nc:     nc,
		prefix: prefix,
		logger: logger,
	}, nil
}

func (p *NATSPublisher) Register(inst model.Instrument) <-chan model.BaseData {
	return p.inner.Register(inst)
}

func (p *NATSPublisher) Unregister(inst model.Instrument) {
	p.inner.Unregister(inst)
}

// Publish forwards to the in-process sink first, then mirrors to the bus.
func (p *NATSPublisher) Publish(d model.BaseData) {
	p.inner.Publish(d)

	payload, err := json.Marshal(d)
	if err != nil {
		p.logger.Warn("failed to marshal record for nats", "error", err)
		return
	}
	if err := p.nc.Publish(SubjectFor(p.prefix, d), payload); err != nil {
		p.logger.Warn("nats publish failed", "error", err)
	}
}

// Close drains the bus connection and tears down the inner sink.
func (p *NATSPublisher) Close() {
	p.inner.Close()
	p.nc.Drain()
}

// SubjectFor builds the bus subject for a record.
func SubjectFor(prefix string, d model.BaseData) string {
	inst := d.Instrument()

	kind := "bar"
	if t, ok := d.(*model.Tick); ok {
		kind = t.Kind.String()
	}

	// NATS subject tokens must not contain dots.
	ticker := strings.ReplaceAll(inst.Ticker, ".", "_")
	return fmt.Sprintf("%s.%s.%s", prefix, kind, ticker)
}
