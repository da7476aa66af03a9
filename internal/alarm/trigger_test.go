package alarm

import (
	"errors"
	"testing"
	"time"
)

func TestTrigger(t *testing.T) {
	ref := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		d    string
		want time.Time
	}{
		{"-PT15M", ref.Add(-15 * time.Minute)},
		{"PT1H30M", ref.Add(90 * time.Minute)},
		{"-P1D", ref.AddDate(0, 0, -1)},
		{"P1W", ref.AddDate(0, 0, 7)},
		{"-P1DT2H", ref.AddDate(0, 0, -1).Add(-2 * time.Hour)},
		{"PT0S", ref},
	}

	for _, tt := range tests {
		t.Run(tt.d, func(t *testing.T) {
			got, err := Trigger(ref, tt.d)
			if err != nil {
				t.Fatalf("Trigger(%q) failed: %v", tt.d, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Trigger(%q) = %s, want %s", tt.d, got, tt.want)
			}
		})
	}
}

func TestTrigger_DayAcrossDST(t *testing.T) {
	vienna, err := time.LoadLocation("Europe/Vienna")
	if err != nil {
		t.Skipf("tzdata not available: %v", err)
	}
	// DST starts on 2024-03-31 in Vienna.
	ref := time.Date(2024, 4, 1, 9, 0, 0, 0, vienna)

	got, err := Trigger(ref, "-P1D")
	if err != nil {
		t.Fatalf("Trigger() failed: %v", err)
	}
	if got.Hour() != 9 || got.Day() != 31 {
		t.Errorf("Trigger() = %s, want 2024-03-31 09:00 local", got)
	}
}

func TestTrigger_Malformed(t *testing.T) {
	for _, d := range []string{"", "15 minutes", "-P1.5D"} {
		if _, err := Trigger(time.Now(), d); !errors.Is(err, ErrMalformedDuration) {
			t.Errorf("Trigger(%q) error = %v, want ErrMalformedDuration", d, err)
		}
	}
}
