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
		{"08:00", ScheduleTime{Hour: 8, Minute: 0}, false},
		{"23:59", ScheduleTime{Hour: 23, Minute: 59}, false},
		{"0:5", ScheduleTime{Hour: 0, Minute: 5}, false},
		{"24:00", ScheduleTime{}, true},
		{"12:60", ScheduleTime{}, true},
		{"noon", ScheduleTime{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseScheduleTime(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseScheduleTime(%q) expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseScheduleTime(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseScheduleTime(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestShouldRun_FiresOncePerMinute(t *testing.T) {
	s := &Scheduler{
		scheduleTimes: []ScheduleTime{{Hour: 8, Minute: 30}},
	}

	at := time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC)
	if !s.shouldRun(at) {
		t.Fatal("shouldRun() = false at the scheduled minute")
	}

	// A second tick inside the same minute must not fire again
	if s.shouldRun(at.Add(20 * time.Second)) {
		t.Error("shouldRun() fired twice in the same minute")
	}

	// The same wall-clock time the next day fires again
	if !s.shouldRun(at.AddDate(0, 0, 1)) {
		t.Error("shouldRun() = false on the next day")
	}
}

func TestShouldRun_OffSchedule(t *testing.T) {
	s := &Scheduler{
		scheduleTimes: []ScheduleTime{{Hour: 8, Minute: 30}},
	}

	if s.shouldRun(time.Date(2026, 3, 10, 8, 31, 0, 0, time.UTC)) {
		t.Error("shouldRun() = true one minute off schedule")
	}
}
