package device

import "errors"

var (
	// ErrConfig indicates a malformed or inconsistent device
	// configuration entry.
	ErrConfig = errors.New("device: invalid configuration")

	// ErrDuplicateID indicates two configuration entries share a
	// device id.
	ErrDuplicateID = errors.New("device: duplicate device id")

	// ErrUnknownDevice indicates an event referenced a device id
	// that is not configured.
	ErrUnknownDevice = errors.New("device: unknown device")
)
