package gateway

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/winmon/winmon-core/internal/infrastructure/config"
	"github.com/winmon/winmon-core/internal/infrastructure/logging"
)

type sensorEvent struct {
	id, stateCode, rawBattery int
}

type fakeSink struct {
	events  []sensorEvent
	unknown []int
	ready   []bool
	err     error
}

func (f *fakeSink) ApplySensorEvent(id, stateCode, rawBattery int) error {
	f.events = append(f.events, sensorEvent{id, stateCode, rawBattery})
	return f.err
}

func (f *fakeSink) MarkUnknownMessage(id int) error {
	f.unknown = append(f.unknown, id)
	return f.err
}

func (f *fakeSink) SetReady(ready bool) {
	f.ready = append(f.ready, ready)
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text"}, "test")
}

func TestHandleLine(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantEvent *sensorEvent
		wantErr   bool
	}{
		{
			name:      "seven token event",
			line:      "GW;3;1;-50;0;33;18",
			wantEvent: &sensorEvent{id: 1, stateCode: 0, rawBattery: 33},
		},
		{
			name:      "eight token event",
			line:      "GW;3;7;-61;1;4;29;52",
			wantEvent: &sensorEvent{id: 7, stateCode: 1, rawBattery: 29},
		},
		{
			name: "startup notice",
			line: "GW;1;0;boot",
		},
		{
			name: "error notice",
			line: "GW;2;0;crc",
		},
		{
			name:    "bad header",
			line:    "XX;3;1;-50;0;33;18",
			wantErr: true,
		},
		{
			name:    "missing discriminator",
			line:    "GW",
			wantErr: true,
		},
		{
			name:    "unknown discriminator",
			line:    "GW;9;1;x",
			wantErr: true,
		},
		{
			name:    "event with wrong token count",
			line:    "GW;3;1;-50;0",
			wantErr: true,
		},
		{
			name:    "notice with wrong token count",
			line:    "GW;1;0;boot;extra",
			wantErr: true,
		},
		{
			name:    "non-numeric device id",
			line:    "GW;3;one;-50;0;33;18",
			wantErr: true,
		},
		{
			name:    "non-numeric state code",
			line:    "GW;3;1;-50;open;33;18",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &fakeSink{}
			h := handler{devices: sink, logger: testLogger()}

			err := h.handleLine(tt.line)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidLine) {
					t.Fatalf("handleLine(%q) error = %v, want %v", tt.line, err, ErrInvalidLine)
				}
				if len(sink.events) != 0 {
					t.Errorf("invalid line reached the device sink")
				}
				return
			}
			if err != nil {
				t.Fatalf("handleLine(%q) unexpected error: %v", tt.line, err)
			}
			if tt.wantEvent == nil {
				if len(sink.events) != 0 {
					t.Errorf("notice line produced %d events", len(sink.events))
				}
				return
			}
			if len(sink.events) != 1 || sink.events[0] != *tt.wantEvent {
				t.Errorf("events = %+v, want [%+v]", sink.events, *tt.wantEvent)
			}
		})
	}
}

func TestHandleLineUnreadableEventFlagsDevice(t *testing.T) {
	sink := &fakeSink{}
	h := handler{devices: sink, logger: testLogger()}

	err := h.handleLine("GW;3;1;-50;open;33;18")
	if !errors.Is(err, ErrInvalidLine) {
		t.Fatalf("error = %v, want %v", err, ErrInvalidLine)
	}
	if len(sink.unknown) != 1 || sink.unknown[0] != 1 {
		t.Errorf("unknown-message marks = %v, want [1]", sink.unknown)
	}
}

func TestHandleLineUnreadableEventUnknownDeviceLogged(t *testing.T) {
	var buf bytes.Buffer
	sink := &fakeSink{err: errors.New("device: unknown device: 9")}
	h := handler{
		devices: sink,
		logger:  &logging.Logger{Logger: slog.New(slog.NewTextHandler(&buf, nil))},
	}

	err := h.handleLine("GW;3;9;-50;open;33;18")
	if !errors.Is(err, ErrInvalidLine) {
		t.Fatalf("error = %v, want %v", err, ErrInvalidLine)
	}
	if !strings.Contains(buf.String(), "unknown device: 9") {
		t.Errorf("log output %q does not carry the mark failure", buf.String())
	}
}

func TestHandleLineUnknownDeviceContained(t *testing.T) {
	sink := &fakeSink{err: errors.New("device: unknown device: 9")}
	h := handler{devices: sink, logger: testLogger()}

	// An unconfigured device id is logged and dropped, not surfaced.
	if err := h.handleLine("GW;3;9;-50;0;33;18"); err != nil {
		t.Fatalf("handleLine: %v", err)
	}
}
