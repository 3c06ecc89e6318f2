package util

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestUntilEndOfDay(t *testing.T) {
	loc := time.FixedZone("MSK", 3*3600)
	now := time.Date(2025, 10, 6, 23, 0, 0, 0, loc)
	if got := UntilEndOfDay(now, loc); got != time.Hour {
		t.Fatalf("UntilEndOfDay = %v, want 1h", got)
	}
	// 21:30 UTC is already 00:30 next day in MSK.
	utc := time.Date(2025, 10, 6, 21, 30, 0, 0, time.UTC)
	if got := UntilEndOfDay(utc, loc); got != 23*time.Hour+30*time.Minute {
		t.Fatalf("UntilEndOfDay = %v, want 23h30m", got)
	}
	if got := DayKey(utc, loc); got != "20251007" {
		t.Fatalf("DayKey = %q, want 20251007", got)
	}
	if got := DayDate(utc, loc); got != "2025-10-07" {
		t.Fatalf("DayDate = %q", got)
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"23:30", 23*60 + 30, false},
		{" 8:05 ", 8*60 + 5, false},
		{"24:00", 0, true},
		{"noon", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseClock(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if err == nil && got != tt.want {
			t.Fatalf("ParseClock(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestForEach_ErrorsDoNotStopOthers(t *testing.T) {
	var ran atomic.Int32
	var failed []int
	inputs := []int{1, 2, 3, 4, 5, 6}

	ForEach(context.Background(), inputs, 3, func(_ context.Context, n int) error {
		ran.Add(1)
		if n%2 == 0 {
			return errors.New("boom")
		}
		return nil
	}, func(n int, _ error) {
		failed = append(failed, n)
	})

	if ran.Load() != int32(len(inputs)) {
		t.Fatalf("ran %d items, want %d", ran.Load(), len(inputs))
	}
	if len(failed) != 3 {
		t.Fatalf("failed = %v, want 3 items", failed)
	}
}
