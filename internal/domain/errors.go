package domain

import "errors"

var (
	ErrUserOpNotFound  = errors.New("user operation not found")
	ErrReceiptNotFound = errors.New("user operation receipt not found")
	ErrAddressNotFound = errors.New("smart account address not cached")
	ErrUpstreamOpen    = errors.New("upstream circuit open")
)
