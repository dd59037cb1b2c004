package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrAlreadyMerged signals that an entity in a merge pair was tombstoned
	// before execution began; callers treat it as a countable no-op.
	ErrAlreadyMerged = errors.New("entity already merged")
	// ErrMergeConflict signals the merge target was tombstoned between
	// canonical selection and execution.
	ErrMergeConflict = errors.New("merge target no longer active")
)
