// Package hoststate reads the monitor host's own health: hardware
// sensor values from an external readout command and used-space
// percentages for the monitored filesystems.
//
// Readings are recomputed on every request and rendered as the
// SERVER_STATE frame's six label/value pairs. A reading that cannot
// be obtained degrades to "n/a" rather than failing the frame.
package hoststate
