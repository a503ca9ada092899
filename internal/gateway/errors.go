package gateway

import "errors"

var (
	// ErrInvalidLine indicates a gateway line that does not match
	// the expected header and token layout.
	ErrInvalidLine = errors.New("gateway: invalid line")
)
