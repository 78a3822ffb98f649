package property

import (
	"errors"
	"testing"
	"time"
)

type fakeSun struct {
	times map[string]time.Time
	asked time.Time
}

func (f *fakeSun) SunTimes(day time.Time) map[string]time.Time {
	f.asked = day
	return f.times
}

func TestResolveTime(t *testing.T) {
	loc := time.UTC
	now := time.Date(2024, 5, 10, 9, 30, 0, 0, loc)
	sunset := time.Date(2024, 5, 10, 19, 45, 0, 0, loc)
	sun := &fakeSun{times: map[string]time.Time{"sunset": sunset}}

	store := NewMemoryStore()
	store.Set(ScopeFlow, "wake", "06:45")
	r := NewTimeResolver(NewResolver(store), sun, loc)

	msg := Message{"payload": map[string]any{"at": float64(sunset.UnixMilli())}}

	tests := []struct {
		name    string
		spec    TimeSpec
		want    time.Time
		wantErr error
	}{
		{
			name: "entered",
			spec: TimeSpec{Type: TypeEntered, Value: "7:05"},
			want: time.Date(2024, 5, 10, 7, 5, 0, 0, loc),
		},
		{
			name: "entered with seconds",
			spec: TimeSpec{Type: TypeEntered, Value: "21:00:30"},
			want: time.Date(2024, 5, 10, 21, 0, 30, 0, loc),
		},
		{
			name: "sun event",
			spec: TimeSpec{Type: TypeSunTime, Value: "sunset"},
			want: sunset,
		},
		{
			name: "sun event with minute offset",
			spec: TimeSpec{Type: TypeSunTime, Value: "sunset", OffsetType: TypeNum, Offset: "-30", Multiplier: 60000},
			want: sunset.Add(-30 * time.Minute),
		},
		{
			name: "month offset",
			spec: TimeSpec{Type: TypeEntered, Value: "12:00", OffsetType: TypeNum, Offset: "1", Multiplier: MultiplierMonths},
			want: time.Date(2024, 6, 10, 12, 0, 0, 0, loc),
		},
		{
			name: "epoch ms",
			spec: TimeSpec{Type: TypeNum, Value: "1715333400000"},
			want: time.UnixMilli(1715333400000),
		},
		{
			name: "message field",
			spec: TimeSpec{Type: TypeMsg, Value: "payload.at"},
			want: sunset,
		},
		{
			name: "flow clock text",
			spec: TimeSpec{Type: TypeFlow, Value: "wake"},
			want: time.Date(2024, 5, 10, 6, 45, 0, 0, loc),
		},
		{
			name:    "unknown sun event",
			spec:    TimeSpec{Type: TypeSunTime, Value: "blueHour"},
			wantErr: ErrInvalidTime,
		},
		{
			name:    "bad clock",
			spec:    TimeSpec{Type: TypeEntered, Value: "25:00"},
			wantErr: ErrInvalidTime,
		},
		{
			name:    "none",
			spec:    TimeSpec{},
			wantErr: ErrNoValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.ResolveTime(tt.spec, msg, now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ResolveTime() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveTime() unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ResolveTime() = %v, want %v", got, tt.want)
			}
		})
	}

	if sun.asked.Hour() != 12 {
		t.Errorf("sun times requested at %v, want local noon", sun.asked)
	}
}

func TestAddOffset(t *testing.T) {
	base := time.Date(2024, 1, 31, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		offset     float64
		multiplier float64
		want       time.Time
	}{
		{"zero offset", 0, 1000, base},
		{"seconds", 90, 1000, base.Add(90 * time.Second)},
		{"plain ms", 1500, 0, base.Add(1500 * time.Millisecond)},
		{"years", 2, MultiplierYears, base.AddDate(2, 0, 0)},
		{"months", -1, MultiplierMonths, base.AddDate(0, -1, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AddOffset(base, tt.offset, tt.multiplier); !got.Equal(tt.want) {
				t.Errorf("AddOffset() = %v, want %v", got, tt.want)
			}
		})
	}
}
