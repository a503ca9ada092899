// Package server accepts viewer-client connections and keeps each one
// supplied with device state.
//
// The Manager owns the TCP listener and the live session registry and
// fans device state broadcasts out to every session. Each Session
// runs its own worker: it enforces the login handshake against the
// shared password, swaps the bootstrap cipher for the client's
// per-session key, drains a bounded outbound queue, and keeps the
// link alive with plaintext heartbeats.
package server
