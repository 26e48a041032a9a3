package services

import "errors"

var (
	// ErrAIUnavailable is returned when the upstream integration is not configured.
	ErrAIUnavailable = errors.New("upstream generation is not configured")

	// ErrNoText is returned when a run is started without any usable input text.
	ErrNoText = errors.New("no text provided")

	// ErrUnauthorized means the upstream rejected the credential. Never
	// retried and never masked by the fallback extractor.
	ErrUnauthorized = errors.New("upstream rejected credential")

	// ErrRateLimited is surfaced only after the retry budget is exhausted.
	ErrRateLimited = errors.New("upstream rate limit exhausted")

	// ErrUnavailable covers upstream 5xx responses.
	ErrUnavailable = errors.New("upstream unavailable")

	// ErrTransport covers network failures and per-attempt timeouts.
	ErrTransport = errors.New("upstream transport failure")

	// ErrSchemaRejected means the upstream refused the request shape itself.
	ErrSchemaRejected = errors.New("upstream rejected request schema")

	// ErrNoCards means no strategy could locate a card batch in the reply.
	ErrNoCards = errors.New("no card batch found in upstream reply")

	// ErrNoValidCards means a batch parsed but every candidate was discarded.
	// Distinct from ErrNoCards: parsed-but-empty and never-parsed drive
	// different fallback decisions.
	ErrNoValidCards = errors.New("card batch contained no valid cards")
)
