// ABOUTME: Error taxonomy shared by the store, merge, query and extraction layers
// ABOUTME: Sentinels are matched with errors.Is after wrapping
package models

import "errors"

var (
	// ErrUnsupportedType is a caller error: the object type tag is unknown.
	ErrUnsupportedType = errors.New("unsupported object type")

	// ErrUnsupportedValue rejects record fields that are not scalars.
	ErrUnsupportedValue = errors.New("unsupported field value")

	// ErrStore is a backend failure, surfaced after bounded retries.
	ErrStore = errors.New("store error")

	// ErrPersist means a merge computed a result but could not write it.
	ErrPersist = errors.New("failed to persist merge")

	// ErrNotFound is returned for operations on a nonexistent storage key.
	ErrNotFound = errors.New("record not found")

	// ErrDispatch means the page context could not be asked to extract.
	ErrDispatch = errors.New("failed to dispatch extraction")
)
