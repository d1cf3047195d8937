package database

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrExpired: the pending hold ran out before it was confirmed
	ErrExpired = errors.New("pending booking expired")
)
