package model

import "errors"

var (
	// ErrInvalidSignature is returned for tokens that fail signature, algorithm or claim checks.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrExpired is returned for correctly signed tokens past their expiry.
	ErrExpired = errors.New("token expired")
	// ErrMalformedCookie is returned when a cookie value cannot be parsed.
	ErrMalformedCookie = errors.New("malformed cookie")
	// ErrSessionNotFound is returned when no record is bound to a session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionMismatch is returned when the bound refresh token differs from the presented one.
	ErrSessionMismatch = errors.New("session mismatch")
	// ErrStoreUnavailable is returned when a backing store cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)
