package protocol

import (
	"errors"
	"net/http"

	"somnarium.ai/internal/concoction"
)

const (
	// Request validation.
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrInvalidItems = "E_INVALID_ITEMS"
	ErrInvalidCode  = "E_INVALID_CODE"

	// Lookup.
	ErrNotFound = "E_NOT_FOUND"

	// Server side.
	ErrAllocationExhausted = "E_ALLOCATION_EXHAUSTED"
	ErrStorage             = "E_STORAGE"
	ErrInternal            = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:          {},
	ErrInvalidItems:        {},
	ErrInvalidCode:         {},
	ErrNotFound:            {},
	ErrAllocationExhausted: {},
	ErrStorage:             {},
	ErrInternal:            {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// Classify maps a domain error to its HTTP status and error code. Anything
// not recognized is a storage failure: the only unclassified errors that
// reach the handlers come from the store.
func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, concoction.ErrInvalidItems):
		return http.StatusBadRequest, ErrInvalidItems
	case errors.Is(err, concoction.ErrInvalidCode):
		return http.StatusBadRequest, ErrInvalidCode
	case errors.Is(err, concoction.ErrNotFound):
		return http.StatusNotFound, ErrNotFound
	case errors.Is(err, concoction.ErrAllocationExhausted):
		return http.StatusInternalServerError, ErrAllocationExhausted
	default:
		return http.StatusInternalServerError, ErrStorage
	}
}
