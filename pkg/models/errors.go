package models

import "errors"

// Error kinds shared by every store. Package-level sentinels wrap one of
// these so callers can classify with errors.Is.
var (
	// ErrValidation covers insufficient currency, stock, capacity or bad
	// arguments. Nothing was mutated.
	ErrValidation = errors.New("validation failure")

	// ErrNotFound covers unknown item definitions, floor ids and shops.
	ErrNotFound = errors.New("not found")
)
