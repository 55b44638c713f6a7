// Package bundler is the JSON-RPC adapter for an ERC-4337 bundler and its
// verifying paymaster.
//
// Calls go through a sony/gobreaker circuit breaker per upstream. JSON-RPC
// error responses (for example an AA2x validation revert) do not count as
// failures; transport errors and timeouts do. While a breaker is open, calls
// fail fast with domain.ErrUpstreamOpen.
package bundler
