// Package wallet derives smart-account owner keys from client signatures.
//
// A client signs a fixed message with its own wallet and sends the 65-byte
// signature. The owner key is keccak256 of that signature, so the same client
// signature always maps to the same owner and therefore the same smart account.
// Derived keys live only for the duration of a request.
package wallet
