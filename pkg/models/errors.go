package models

import "errors"

var (
	// ErrInvalidConfig marks a caller-fixable configuration error, such as a
	// maximum ring size below 3.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrInvalidGraph marks malformed input graphs or rings.
	ErrInvalidGraph = errors.New("invalid graph")

	// ErrMissingEdge marks a ring whose consecutive vertices have no 1-cell.
	ErrMissingEdge = errors.New("missing edge")
)
