package device

import (
	"fmt"
	"strconv"
	"strings"
)

// Warning is a monitor-raised condition attached to a device.
type Warning string

const (
	// WarningNoActivity is raised when a device has not reported
	// within the inactivity window.
	WarningNoActivity Warning = "NO_ACTIVITY"

	// WarningNotReady is raised while the sensor gateway is
	// disconnected, so reported state may be stale.
	WarningNotReady Warning = "NOT_READY"

	// WarningLowBattery is raised when a device reports a battery
	// voltage below the configured threshold.
	WarningLowBattery Warning = "LOW_BATTERY"

	// WarningUnknownMessage is raised when the gateway relays a
	// frame for the device that the adapter could not interpret.
	WarningUnknownMessage Warning = "UNKNOWN_MESSAGE"
)

// warningOrder fixes the rendering order of active warnings.
var warningOrder = []Warning{
	WarningNoActivity,
	WarningNotReady,
	WarningLowBattery,
	WarningUnknownMessage,
}

// WarningSet tracks which warnings are active on a device.
type WarningSet map[Warning]bool

// Set marks w active or inactive and reports whether that changed
// the set.
func (s WarningSet) Set(w Warning, active bool) bool {
	if s[w] == active {
		return false
	}
	if active {
		s[w] = true
	} else {
		delete(s, w)
	}
	return true
}

// Active reports whether w is currently raised.
func (s WarningSet) Active(w Warning) bool { return s[w] }

// String renders the active warnings as "[A, B]" in a stable order,
// or "" when none are active.
func (s WarningSet) String() string {
	if len(s) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte('[')
	first := true
	for _, w := range warningOrder {
		if !s[w] {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		b.WriteString(string(w))
		first = false
	}
	b.WriteByte(']')
	return b.String()
}

// Config is the static description of one monitored sensor, parsed
// from a "id|type|model|floor|room|position" entry.
type Config struct {
	ID       int
	Type     string
	Model    string
	Floor    string
	Room     string
	Position string
}

// ParseConfig parses a pipe-delimited configuration entry.
func ParseConfig(entry string) (Config, error) {
	fields := strings.Split(entry, "|")
	if len(fields) != 6 {
		return Config{}, fmt.Errorf("%w: %q has %d fields, want 6", ErrConfig, entry, len(fields))
	}
	id, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return Config{}, fmt.Errorf("%w: %q has non-numeric id", ErrConfig, entry)
	}
	if id < 0 {
		return Config{}, fmt.Errorf("%w: %q has negative id", ErrConfig, entry)
	}
	cfg := Config{
		ID:       id,
		Type:     strings.TrimSpace(fields[1]),
		Model:    strings.TrimSpace(fields[2]),
		Floor:    strings.TrimSpace(fields[3]),
		Room:     strings.TrimSpace(fields[4]),
		Position: strings.TrimSpace(fields[5]),
	}
	if cfg.Type == "" || cfg.Room == "" {
		return Config{}, fmt.Errorf("%w: %q is missing type or room", ErrConfig, entry)
	}
	return cfg, nil
}
