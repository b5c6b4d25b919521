package store

import "errors"

var (
	// ErrNotFound is returned when a user or room document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when creating a document whose identifier
	// is already taken.
	ErrAlreadyExists = errors.New("already exists")
)
