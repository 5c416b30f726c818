package internaltypes

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrLedger marks a failure to read or write the delivery ledger. A run
	// stops on it rather than risk a duplicate send.
	ErrLedger     = errors.New("ledger unavailable")
	ErrAborted    = errors.New("run aborted")
	ErrNoTemplate = errors.New("template is empty")
)
