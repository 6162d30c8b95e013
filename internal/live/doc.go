// Package live manages real-time vendor subscriptions. A Session owns the
// subscription set and all per-instrument streaming state; nothing here is
// process-global, so independent sessions can coexist in one process.
package live
