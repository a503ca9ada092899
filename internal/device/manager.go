package device

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/winmon/winmon-core/internal/infrastructure/logging"
	"github.com/winmon/winmon-core/internal/protocol"
)

// Broadcaster receives device state changes for distribution to
// connected viewers.
type Broadcaster interface {
	BroadcastState(snap Snapshot)
}

// Snapshot is an immutable view of one device's state, safe to hand
// across goroutines.
type Snapshot struct {
	ID        int    `json:"id"`
	Alarm     bool   `json:"alarm"`
	AlarmTime string `json:"alarm_time,omitempty"`
	Battery   string `json:"battery,omitempty"`
	Warnings  string `json:"warnings,omitempty"`
}

// Message renders the snapshot as a DEVICE_STATE frame. The battery
// field carries the active warnings appended after the voltage.
func (s Snapshot) Message() protocol.Message {
	battery := s.Battery
	if s.Warnings != "" {
		if battery != "" {
			battery += " "
		}
		battery += s.Warnings
	}
	return protocol.New(protocol.TypeDeviceState,
		strconv.Itoa(s.ID),
		strconv.FormatBool(s.Alarm),
		s.AlarmTime,
		battery,
	)
}

// Manager owns the state of every configured device.
type Manager struct {
	mu      sync.Mutex
	devices map[int]*State
	order   []int

	// emitMu serializes a mutation with its own broadcast. Without it
	// two concurrent mutators could publish their snapshots in the
	// opposite order to the one the state actually changed in, and
	// viewers would keep the stale snapshot.
	emitMu sync.Mutex

	broadcaster     Broadcaster
	logger          *logging.Logger
	lowBatteryVolts float64
	now             func() time.Time
}

// NewManager creates a manager with no devices loaded. The broadcaster
// may be nil, in which case state changes are tracked but not pushed.
func NewManager(b Broadcaster, logger *logging.Logger, lowBatteryVolts float64) *Manager {
	return &Manager{
		devices:         make(map[int]*State),
		broadcaster:     b,
		logger:          logger.With("component", "device"),
		lowBatteryVolts: lowBatteryVolts,
		now:             time.Now,
	}
}

// SetBroadcaster installs the broadcast target. The viewer service
// needs the manager as its state source, so the broadcaster is wired
// after both exist.
func (m *Manager) SetBroadcaster(b Broadcaster) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcaster = b
}

// Load parses the configured device entries. A malformed entry is
// logged and skipped; a duplicate device id aborts the load, since a
// partially shadowed configuration is worse than a missing one.
func (m *Manager) Load(entries []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range entries {
		cfg, err := ParseConfig(entry)
		if err != nil {
			m.logger.Warn("skipping device entry", "entry", entry, "error", err)
			continue
		}
		if _, exists := m.devices[cfg.ID]; exists {
			return fmt.Errorf("%w: %d", ErrDuplicateID, cfg.ID)
		}
		st := newState(cfg)
		st.lastSeen = m.now()
		m.devices[cfg.ID] = st
		m.order = append(m.order, cfg.ID)
	}
	sort.Ints(m.order)
	m.logger.Info("devices loaded", "count", len(m.devices))
	return nil
}

// Count returns the number of configured devices.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.devices)
}

// ApplySensorEvent records a window event relayed by the gateway.
// State code 0 means the contact is open and raises the alarm; any
// other code clears it. rawBattery is the sensor's reading in tenths
// of a volt. A report always clears the no-activity warning.
func (m *Manager) ApplySensorEvent(id, stateCode, rawBattery int) error {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	st, ok := m.devices[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownDevice, id)
	}

	volts := float64(rawBattery) / 10
	changed := st.setAlarm(stateCode == 0, m.now())
	changed = st.setBattery(fmt.Sprintf("%.1f V", volts)) || changed
	changed = st.setWarning(WarningLowBattery, volts < m.lowBatteryVolts) || changed
	changed = st.setWarning(WarningNoActivity, false) || changed
	st.lastSeen = m.now()

	var snap Snapshot
	if changed {
		snap = st.snapshot()
	}
	m.mu.Unlock()

	if changed {
		m.logger.Info("sensor event",
			"device", id,
			"alarm", snap.Alarm,
			"battery", snap.Battery,
		)
		m.broadcast(snap)
	}
	return nil
}

// MarkUnknownMessage flags a device whose gateway frame could not be
// interpreted.
func (m *Manager) MarkUnknownMessage(id int) error {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	st, ok := m.devices[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownDevice, id)
	}
	changed := st.setWarning(WarningUnknownMessage, true)
	var snap Snapshot
	if changed {
		snap = st.snapshot()
	}
	m.mu.Unlock()

	if changed {
		m.logger.Warn("unreadable frame for device", "device", id)
		m.broadcast(snap)
	}
	return nil
}

// SetReady toggles the not-ready warning on every device. It is
// driven by gateway connects and disconnects; only devices whose
// warning set actually changes are broadcast.
func (m *Manager) SetReady(ready bool) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	var changedSnaps []Snapshot
	for _, id := range m.order {
		st := m.devices[id]
		if st.setWarning(WarningNotReady, !ready) {
			changedSnaps = append(changedSnaps, st.snapshot())
		}
	}
	m.mu.Unlock()

	if len(changedSnaps) > 0 {
		m.logger.Info("gateway readiness changed", "ready", ready, "devices", len(changedSnaps))
	}
	for _, snap := range changedSnaps {
		m.broadcast(snap)
	}
}

// ConfigMessages returns the DEVICE_NUMBER frame followed by one
// DEVICE_CONFIG frame per device, in id order. Sent to each viewer
// once at login.
func (m *Manager) ConfigMessages() []protocol.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := make([]protocol.Message, 0, len(m.order)+1)
	msgs = append(msgs, protocol.New(protocol.TypeDeviceNumber, strconv.Itoa(len(m.order))))
	for _, id := range m.order {
		cfg := m.devices[id].cfg
		msgs = append(msgs, protocol.New(protocol.TypeDeviceConfig,
			strconv.Itoa(cfg.ID),
			cfg.Type,
			cfg.Model,
			cfg.Floor,
			cfg.Room,
			cfg.Position,
		))
	}
	return msgs
}

// StateMessages returns the current DEVICE_STATE frame for every
// device, in id order.
func (m *Manager) StateMessages() []protocol.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := make([]protocol.Message, 0, len(m.order))
	for _, id := range m.order {
		msgs = append(msgs, m.devices[id].snapshot().Message())
	}
	return msgs
}

// StartInactivityMonitor runs a ticker that raises the no-activity
// warning on devices that have not reported within timeout. It
// returns once ctx is cancelled.
func (m *Manager) StartInactivityMonitor(ctx context.Context, timeout, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepInactive(timeout)
		}
	}
}

func (m *Manager) sweepInactive(timeout time.Duration) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	cutoff := m.now().Add(-timeout)

	m.mu.Lock()
	var changedSnaps []Snapshot
	for _, id := range m.order {
		st := m.devices[id]
		if st.lastSeen.Before(cutoff) && st.setWarning(WarningNoActivity, true) {
			changedSnaps = append(changedSnaps, st.snapshot())
		}
	}
	m.mu.Unlock()

	for _, snap := range changedSnaps {
		m.logger.Warn("device inactive", "device", snap.ID)
		m.broadcast(snap)
	}
}

func (m *Manager) broadcast(snap Snapshot) {
	m.mu.Lock()
	b := m.broadcaster
	m.mu.Unlock()
	if b != nil {
		b.BroadcastState(snap)
	}
}
