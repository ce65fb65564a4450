package team

import "errors"

var (
	// ErrEmptyKey is returned when a context key is empty.
	ErrEmptyKey = errors.New("context key must not be empty")

	// ErrDuplicateMember is returned when a member name is already taken.
	ErrDuplicateMember = errors.New("team member already exists")

	// ErrMemberNotFound is returned for unknown member names.
	ErrMemberNotFound = errors.New("team member not found")

	// ErrUpdateConflict is returned when an optimistic update keeps losing
	// against concurrent writers.
	ErrUpdateConflict = errors.New("context update conflict")
)
