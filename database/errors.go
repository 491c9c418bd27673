package database

import "errors"

// Error taxonomy shared by the store, the query layer and the aggregation engine.
// Call sites wrap these with context; callers match with errors.Is.
var (
	// ErrInvalidRecord marks a record or mutation violating numeric preconditions
	ErrInvalidRecord = errors.New("invalid record")
	// ErrInvalidRange marks a date window with dateFrom after dateTo
	ErrInvalidRange = errors.New("invalid range")
	// ErrNotFound marks a reference to an unknown entity ID
	ErrNotFound = errors.New("not found")
	// ErrInconsistentScope marks a scope referencing a machine absent from master data
	ErrInconsistentScope = errors.New("inconsistent scope")
	// ErrInvalidFilter marks an unrecognised filter token
	ErrInvalidFilter = errors.New("invalid filter")
)
