package protocol

import "errors"

// Domain errors for the protocol package.
var (
	// ErrDecode is returned when a payload cannot be decoded into a
	// message: missing name tag, unknown type name, or a parameter count
	// that does not match the type's declared arity.
	ErrDecode = errors.New("protocol: message decode failed")

	// ErrCipher is returned when encryption or decryption of a frame
	// payload fails.
	ErrCipher = errors.New("protocol: cipher operation failed")

	// ErrKeySize is returned when a cipher is keyed with empty key material.
	ErrKeySize = errors.New("protocol: empty cipher key")
)
