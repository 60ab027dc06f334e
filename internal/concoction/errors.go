package concoction

import "errors"

var (
	ErrInvalidItems        = errors.New("invalid items")
	ErrInvalidCode         = errors.New("invalid code")
	ErrNotFound            = errors.New("concoction not found")
	ErrDuplicateCode       = errors.New("code already exists")
	ErrAllocationExhausted = errors.New("could not allocate a unique code")
	ErrUnknownItemType     = errors.New("unknown item type")
	ErrUnavailable         = errors.New("backend unavailable")
)
