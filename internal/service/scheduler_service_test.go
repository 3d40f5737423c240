package service

import (
	"context"
	"testing"
	"time"
)

func TestScheduleDailyRejectsBadTimes(t *testing.T) {
	s := NewSchedulerService(time.UTC, time.Second)
	noop := func(context.Context) {}

	for _, bad := range []string{"", "morning", "25:00", "09:70"} {
		if err := s.ScheduleDaily("summary", bad, noop); err == nil {
			t.Errorf("ScheduleDaily(%q) accepted an invalid time", bad)
		}
	}
	if err := s.ScheduleDaily("summary", "08:00", noop); err != nil {
		t.Errorf("ScheduleDaily(08:00): %v", err)
	}
}

func TestScheduleIntervalRejectsShortIntervals(t *testing.T) {
	s := NewSchedulerService(time.UTC, time.Second)
	noop := func(context.Context) {}

	if err := s.ScheduleInterval("scan", 100*time.Millisecond, noop); err == nil {
		t.Error("sub-second interval accepted")
	}
	if err := s.ScheduleInterval("scan", time.Minute, noop); err != nil {
		t.Errorf("ScheduleInterval(1m): %v", err)
	}
}
