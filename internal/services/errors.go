// Package services defines the business logic for wallets, top-ups, sessions,
// and chat messages. This file centralizes common service-level error values
// so that they can be consistently returned by service methods and checked by
// callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the handler
// layer.
package services

import "errors"

// Wallet and billing errors.
var (
	// ErrInsufficientFunds is returned when a debit would drive the balance
	// negative, or when a session start is refused for lack of funds. The
	// balance is left unchanged.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount is returned when a credit/debit amount is not positive.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// Top-up errors.
var (
	// ErrAmountBelowMinimum is returned when a top-up submission is below the
	// configured minimum recharge.
	ErrAmountBelowMinimum = errors.New("amount below minimum recharge")

	// ErrReferenceTooShort is returned when the payment reference is missing
	// or shorter than the configured minimum length.
	ErrReferenceTooShort = errors.New("payment reference missing or too short")

	// ErrDuplicateReference is returned when the user already has an open
	// request with the same payment reference.
	ErrDuplicateReference = errors.New("reference already submitted")

	// ErrTopUpNotFound indicates that the requested top-up does not exist.
	ErrTopUpNotFound = errors.New("top-up request not found")

	// ErrAlreadyResolved is returned when approving or rejecting a request
	// that has already reached a terminal status. The second resolution is a
	// conflict, never silently accepted.
	ErrAlreadyResolved = errors.New("top-up request already resolved")
)

// Session and message errors.
var (
	// ErrSessionNotActive is returned when a client sends a message without
	// an active session.
	ErrSessionNotActive = errors.New("no active session")

	// ErrNoSessionHistory is returned when an operator replies to a user who
	// has never had a session.
	ErrNoSessionHistory = errors.New("user has no session history")

	// ErrEmptyMessage is returned when a message is empty after trimming.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrMessageTooLong is returned when a message exceeds the configured
	// rune limit.
	ErrMessageTooLong = errors.New("message too long")
)
