// Package model defines shared data types used across the feed adapter.
//
// Conventions:
//   - Request time bounds: UTC time.Time
//   - Emitted ticks/bars: stamped in the exchange's data time zone
//   - Instruments: comparable value types, usable as map keys
package model
