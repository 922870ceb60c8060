// Package cryptotax computes realized profit/loss for a portfolio of
// crypto assets from a chronological stream of financial actions
// (trades, margin settlements, loans, asset movements, ledger actions,
// DeFi events and transaction gas costs).
//
// Cost basis is tracked per asset with the first-in-first-out method and
// a configurable tax-free holding period: the part of a disposal matched
// against lots held longer than the period is exempt from taxable
// profit/loss, while the jurisdiction-agnostic total profit/loss is
// always computed.
//
// The entry point is the Accountant: wire it with a RateOracle and
// Settings, then call ProcessHistory with the report window and the
// per-variant action collections. The result is a Report holding the
// category overview and the full per-event ledger for export.
package cryptotax
