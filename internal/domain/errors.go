package domain

import "errors"

var (
	// ErrNotFound is returned by repositories when no row matches.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned on unique-constraint violations, e.g. two
	// callbacks racing to create the same character.
	ErrDuplicate = errors.New("duplicate")
)
