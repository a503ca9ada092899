// Package protocol implements the winmon wire protocol shared by the
// server and viewer clients.
//
// A frame on the TCP stream is
//
//	<message>BASE64(cipher)</message>
//
// for authenticated traffic, or
//
//	<message><name>HEARTBEAT</name></message>
//
// for the plaintext keep-alive. Inside a decrypted frame the payload is a
// tag-delimited message: the type name wrapped in <name> tags followed by
// zero or more parameters each wrapped in <p> tags. Every message type
// declares a fixed parameter count; decoding a payload whose parameter
// count does not match is a hard failure and the message never reaches
// business logic.
//
// The package provides three pieces: the message codec (message.go), the
// stream framer that extracts complete frames from an accumulating byte
// stream (framer.go), and the AES-GCM session cipher (cipher.go).
//
// No escaping scheme exists for the delimiter substrings; parameter
// values must never contain the literal tag strings. This is a protocol
// invariant callers uphold, not one the codec enforces.
package protocol
