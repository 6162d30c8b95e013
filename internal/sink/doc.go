// Package sink implements the aggregation sink the live session publishes
// into: an in-process fan-out with per-instrument growable buffers, and an
// optional NATS decorator that mirrors every record to a message bus.
package sink
