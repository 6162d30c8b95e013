// Package history retrieves historical market data from the vendor's lookup
// port and converts it into ticks and bars.
//
// Each request runs a fixed pipeline: validate, submit, stream, convert.
// Validation failures are terminal but non-fatal; they log once per process
// per reason and yield an empty result. Vendor I/O failures during streaming
// are likewise swallowed into an empty result, never retried here.
//
// Canonical derivative symbols expand into their full contract chain and fan
// out over a bounded worker pool; merged chain results carry no cross-contract
// ordering guarantee.
package history
