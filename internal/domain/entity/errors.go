package entity

import "errors"

var (
	// ErrNotFound is returned by repositories when a record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrForbiddenUpdate is returned when a paid bill is modified
	ErrForbiddenUpdate = errors.New("update forbidden on settled bill")

	// ErrInvalidBillType is returned for unknown bill types
	ErrInvalidBillType = errors.New("invalid bill type")

	// ErrInvalidYear is returned when a bill year is out of range
	ErrInvalidYear = errors.New("invalid bill year")

	// ErrInvalidStatus is returned when a stored status is not a lifecycle state
	ErrInvalidStatus = errors.New("invalid status")
)
