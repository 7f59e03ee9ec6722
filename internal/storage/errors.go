package storage

import "errors"

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrUserNotFound        = errors.New("user not found")
	ErrUserExists          = errors.New("user already registered")
	ErrOrderNotFound       = errors.New("order not found")
	// ErrInvalidTransition is returned when an order is not in the status a transition starts from.
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrReferralNotFound  = errors.New("referral not found")
	ErrSelfReferral      = errors.New("users cannot refer themselves")
	ErrAlreadyReferred   = errors.New("user already has a referrer")
)
