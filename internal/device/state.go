package device

import "time"

// alarmTimeLayout formats the time an alarm was raised.
const alarmTimeLayout = "15:04"

// State is the live, mutable state of one sensor. It is owned by the
// Manager and must only be touched with the manager's lock held.
type State struct {
	cfg Config

	alarm     bool
	alarmTime string
	battery   string
	warnings  WarningSet
	lastSeen  time.Time
}

func newState(cfg Config) *State {
	return &State{cfg: cfg, warnings: WarningSet{}}
}

// setAlarm records the alarm flag and reports whether it changed.
// The alarm time is edge-triggered: captured on the inactive-to-active
// transition, cleared to empty on active-to-inactive. A window held
// open keeps its original trigger time.
func (s *State) setAlarm(active bool, now time.Time) bool {
	if s.alarm == active {
		return false
	}
	s.alarm = active
	if active {
		s.alarmTime = now.Format(alarmTimeLayout)
	} else {
		s.alarmTime = ""
	}
	return true
}

// setBattery records the battery display string and reports whether
// it changed.
func (s *State) setBattery(display string) bool {
	if s.battery == display {
		return false
	}
	s.battery = display
	return true
}

// setWarning toggles a warning and reports whether the set changed.
func (s *State) setWarning(w Warning, active bool) bool {
	return s.warnings.Set(w, active)
}

// snapshot copies the state into an immutable Snapshot.
func (s *State) snapshot() Snapshot {
	return Snapshot{
		ID:        s.cfg.ID,
		Alarm:     s.alarm,
		AlarmTime: s.alarmTime,
		Battery:   s.battery,
		Warnings:  s.warnings.String(),
	}
}
