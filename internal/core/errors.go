package core

import "errors"

var (
	// ErrDuplicateURL is returned when adding a resource whose URL already exists
	ErrDuplicateURL = errors.New("resource URL already exists")

	// ErrNotFound is returned when a requested record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput is returned when a caller passes arguments that cannot be processed
	ErrInvalidInput = errors.New("invalid input")

	// ErrAuth is returned on authentication failures against external APIs
	ErrAuth = errors.New("authentication failed")

	// ErrParse is returned when an external response cannot be parsed
	ErrParse = errors.New("response could not be parsed")
)
