// Package device holds the in-memory model of every monitored window
// sensor: its static configuration, its live alarm and battery state,
// and the warning flags the monitor raises against it.
//
// The Manager is the single owner of all device state. Sensor events,
// gateway readiness changes and the inactivity monitor all mutate state
// through it, and every state change that alters a device's wire
// representation is pushed to the configured Broadcaster exactly once.
package device
