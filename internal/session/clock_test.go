package session

import (
	"testing"
	"time"
)

func tehran(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tehran")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func at(loc *time.Location, hour, min, sec int) time.Time {
	return time.Date(2025, 3, 10, hour, min, sec, 0, loc)
}

func TestClock_PhaseAt(t *testing.T) {
	loc := tehran(t)
	clock := NewClock(DefaultBoundaries(), loc)

	tests := []struct {
		name string
		time time.Time
		want Phase
	}{
		{"before premarket", at(loc, 8, 44, 59), PhaseClosed},
		{"premarket start", at(loc, 8, 45, 0), PhasePreMarket},
		{"mid premarket", at(loc, 8, 50, 0), PhasePreMarket},
		{"last premarket second", at(loc, 8, 54, 59), PhasePreMarket},
		{"freeze start", at(loc, 8, 55, 0), PhaseOrderFreeze},
		{"last freeze second", at(loc, 9, 1, 59), PhaseOrderFreeze},
		{"trading start", at(loc, 9, 2, 0), PhaseTrading},
		{"mid trading", at(loc, 11, 0, 0), PhaseTrading},
		{"trading end inclusive", at(loc, 12, 30, 0), PhaseTrading},
		{"after trading", at(loc, 12, 30, 1), PhaseClosed},
		{"midnight", at(loc, 0, 0, 0), PhaseClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clock.PhaseAt(tt.time); got != tt.want {
				t.Errorf("PhaseAt(%s) = %v, want %v", tt.time.Format("15:04:05"), got, tt.want)
			}
		})
	}
}

func TestClock_PhaseUsesInjectedNow(t *testing.T) {
	loc := tehran(t)
	now := at(loc, 10, 0, 0)
	clock := NewClock(DefaultBoundaries(), loc, WithNow(func() time.Time { return now }))

	if got := clock.Phase(); got != PhaseTrading {
		t.Errorf("Phase() = %v, want PhaseTrading", got)
	}
	if !clock.Now().Equal(now) {
		t.Errorf("Now() = %v, want %v", clock.Now(), now)
	}
}

func TestPhase_CanModify(t *testing.T) {
	tests := []struct {
		phase Phase
		want  bool
	}{
		{PhaseClosed, false},
		{PhasePreMarket, true},
		{PhaseOrderFreeze, false},
		{PhaseTrading, true},
	}
	for _, tt := range tests {
		if got := tt.phase.CanModify(); got != tt.want {
			t.Errorf("%v.CanModify() = %v, want %v", tt.phase, got, tt.want)
		}
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		input   string
		want    TimeOfDay
		wantErr bool
	}{
		{"08:45:00", TimeOfDay{8, 45, 0}, false},
		{"12:30:00", TimeOfDay{12, 30, 0}, false},
		{"23:59:59", TimeOfDay{23, 59, 59}, false},
		{"24:00:00", TimeOfDay{}, true},
		{"08:60:00", TimeOfDay{}, true},
		{"garbage", TimeOfDay{}, true},
		{"", TimeOfDay{}, true},
	}

	for _, tt := range tests {
		got, err := ParseTimeOfDay(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTimeOfDay(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseTimeOfDay(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestBoundaries_Validate(t *testing.T) {
	if err := DefaultBoundaries().Validate(); err != nil {
		t.Errorf("default boundaries should be valid: %v", err)
	}

	bad := Boundaries{
		PreMarketStart: TimeOfDay{9, 0, 0},
		FreezeStart:    TimeOfDay{8, 55, 0},
		FreezeEnd:      TimeOfDay{9, 2, 0},
		TradingEnd:     TimeOfDay{12, 30, 0},
	}
	if err := bad.Validate(); err == nil {
		t.Error("unordered boundaries should fail validation")
	}

	equal := DefaultBoundaries()
	equal.FreezeEnd = equal.FreezeStart
	if err := equal.Validate(); err == nil {
		t.Error("equal boundaries should fail validation")
	}
}

func TestClock_UntilModifiable(t *testing.T) {
	loc := tehran(t)
	clock := NewClock(DefaultBoundaries(), loc)

	// During the freeze the wait runs down to 09:02:00.
	if got := clock.UntilModifiable(at(loc, 8, 55, 0)); got != 7*time.Minute {
		t.Errorf("UntilModifiable(08:55:00) = %v, want 7m", got)
	}
	if got := clock.UntilModifiable(at(loc, 9, 1, 30)); got != 30*time.Second {
		t.Errorf("UntilModifiable(09:01:30) = %v, want 30s", got)
	}

	// Zero when modification is already allowed.
	if got := clock.UntilModifiable(at(loc, 10, 0, 0)); got != 0 {
		t.Errorf("UntilModifiable(10:00:00) = %v, want 0", got)
	}
	if got := clock.UntilModifiable(at(loc, 8, 50, 0)); got != 0 {
		t.Errorf("UntilModifiable(08:50:00) = %v, want 0", got)
	}
}
