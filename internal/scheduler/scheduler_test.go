package scheduler

import (
	"testing"
	"time"
)

func TestParseScheduleTime(t *testing.T) {
	tests := []struct {
		input   string
		want    ScheduleTime
		wantErr bool
	}{
		{"05:00", ScheduleTime{5, 0}, false},
		{"23:59", ScheduleTime{23, 59}, false},
		{"0:5", ScheduleTime{0, 5}, false},
		{"24:00", ScheduleTime{}, true},
		{"12:60", ScheduleTime{}, true},
		{"-1:00", ScheduleTime{}, true},
		{"noon", ScheduleTime{}, true},
		{"", ScheduleTime{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseScheduleTime(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseScheduleTime(%q) expected error, got %+v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseScheduleTime(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseScheduleTime(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestScheduleTimeString(t *testing.T) {
	if got := (ScheduleTime{5, 7}).String(); got != "05:07" {
		t.Errorf("String() = %q, want 05:07", got)
	}
}

func TestShouldRunOncePerMinute(t *testing.T) {
	s := &Scheduler{scheduleTimes: []ScheduleTime{{10, 30}}}

	at := time.Date(2024, 3, 1, 10, 30, 5, 0, time.UTC)
	if !s.shouldRun(at) {
		t.Fatal("expected first check in the scheduled minute to trigger")
	}
	if s.shouldRun(at.Add(20 * time.Second)) {
		t.Fatal("second check in the same minute must not trigger")
	}
	if s.shouldRun(time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)) {
		t.Fatal("unscheduled minute must not trigger")
	}
	// Same time next day triggers again.
	if !s.shouldRun(time.Date(2024, 3, 2, 10, 30, 5, 0, time.UTC)) {
		t.Fatal("expected next day's scheduled minute to trigger")
	}
}
