package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound      = errors.New("session not found")
	ErrEmptyMessage  = errors.New("message is empty")
	ErrEmptyTitle    = errors.New("title is empty")
	ErrBusy          = errors.New("another operation is in progress")
	ErrCreateSession = errors.New("could not create session")
	ErrLoadSession   = errors.New("could not load session")
	ErrCompletion    = errors.New("completion request failed")
	// ErrSuperseded marks an operation whose session was reset while it was
	// waiting on a collaborator; its late results were discarded.
	ErrSuperseded = errors.New("session was reset mid-operation")
)
