// Package accounts resolves the counterfactual smart-account address of an
// owner.
//
// Lookups go through three layers: a per-instance memory cache, an optional
// shared cache (Redis in production), and finally the account factory's
// getAddress view call. Concurrent lookups for the same owner share one
// upstream call.
package accounts
