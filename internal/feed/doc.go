// Package feed implements the vendor wire client.
//
// The vendor speaks JSON text frames over one websocket per role:
//   - admin: connection health and stats events
//   - quote: live watch/unwatch and streaming price events
//   - lookup: symbol search and historical requests (a small pool,
//     checked out per request)
//
// Commands are correlated to responses by id; lookup result streams are
// correlated row/end event sequences. Reconnection with exponential
// backoff re-watches the active symbol set.
package feed
