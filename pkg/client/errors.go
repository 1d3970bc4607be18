package client

import (
	"errors"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned if the retry loop ends without a result
	// or an error to report, which only happens with a zero retry budget.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the caller's context ends while a
	// fetch is in progress or waiting.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrInvalidPage is returned for page numbers below 1.
	ErrInvalidPage = errors.New("invalid page number")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("client closed")
)
