package device

import (
	"errors"
	"testing"
)

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name    string
		entry   string
		want    Config
		wantErr error
	}{
		{
			name:  "full entry",
			entry: "1|window|X100|1|kitchen|left",
			want: Config{
				ID:       1,
				Type:     "window",
				Model:    "X100",
				Floor:    "1",
				Room:     "kitchen",
				Position: "left",
			},
		},
		{
			name:  "whitespace trimmed",
			entry: " 3 | window | X200 | 2 | bedroom | right ",
			want: Config{
				ID:       3,
				Type:     "window",
				Model:    "X200",
				Floor:    "2",
				Room:     "bedroom",
				Position: "right",
			},
		},
		{
			name:    "too few fields",
			entry:   "1|window|X100",
			wantErr: ErrConfig,
		},
		{
			name:    "too many fields",
			entry:   "1|window|X100|1|kitchen|left|extra",
			wantErr: ErrConfig,
		},
		{
			name:    "non-numeric id",
			entry:   "one|window|X100|1|kitchen|left",
			wantErr: ErrConfig,
		},
		{
			name:    "negative id",
			entry:   "-1|window|X100|1|kitchen|left",
			wantErr: ErrConfig,
		},
		{
			name:    "missing room",
			entry:   "1|window|X100|1||left",
			wantErr: ErrConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConfig(tt.entry)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseConfig(%q) error = %v, want %v", tt.entry, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseConfig(%q) unexpected error: %v", tt.entry, err)
			}
			if got != tt.want {
				t.Errorf("ParseConfig(%q) = %+v, want %+v", tt.entry, got, tt.want)
			}
		})
	}
}

func TestWarningSet(t *testing.T) {
	s := WarningSet{}

	if s.String() != "" {
		t.Errorf("empty set renders %q, want empty", s.String())
	}
	if !s.Set(WarningLowBattery, true) {
		t.Error("raising a new warning should report a change")
	}
	if s.Set(WarningLowBattery, true) {
		t.Error("raising an active warning should not report a change")
	}
	if s.Set(WarningNoActivity, false) {
		t.Error("clearing an inactive warning should not report a change")
	}

	s.Set(WarningNoActivity, true)
	s.Set(WarningUnknownMessage, true)
	want := "[NO_ACTIVITY, LOW_BATTERY, UNKNOWN_MESSAGE]"
	if got := s.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	if !s.Set(WarningLowBattery, false) {
		t.Error("clearing an active warning should report a change")
	}
	want = "[NO_ACTIVITY, UNKNOWN_MESSAGE]"
	if got := s.String(); got != want {
		t.Errorf("String() after clear = %q, want %q", got, want)
	}
}
