// Package common defines shared constants and sentinel errors used across
// the chat server layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Delivery-protocol errors.
	ErrorEmptyMessage = errors.New("empty message")
	ErrorPersistence  = errors.New("persistence failure")

	// Crypto errors.
	ErrorEmptyInput = errors.New("empty input")
	ErrorCrypto     = errors.New("decryption failure")

	// PIN gate errors.
	ErrorIncorrectPin = errors.New("incorrect PIN")
	ErrorPinNotSet    = errors.New("PIN not set")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)
