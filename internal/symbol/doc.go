// Package symbol translates between canonical instrument identifiers and
// the vendor's compact ticker strings.
//
// Both directions are pure functions. For every ticker this package can
// produce, ToVendorTicker(ToInstrument(s)) == s.
package symbol
