// Package app provides the application service layer.
//
// Orchestrates the relay use cases: owner derivation, smart-account resolution,
// sponsored user operation submission and balance reads. Sits between HTTP
// handlers and the chain, bundler and journal adapters. Depends on domain
// interfaces, not concrete implementations, and returns structured errors
// from platform/errors.
package app
