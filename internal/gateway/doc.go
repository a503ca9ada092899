// Package gateway owns the serial connection to the sensor-network
// gateway hardware.
//
// The Adapter supervises a single serial port: it opens the configured
// port, reads the raw byte stream, frames it into terminator-delimited
// lines, and hands each line to the handler, which turns window-sensor
// events into device state transitions. Open failures and stream
// drops are retried forever at the polling interval; gateway
// availability is reflected onto every device as a not-ready warning.
package gateway
