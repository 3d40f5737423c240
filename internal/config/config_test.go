package config

import (
	"testing"
	"time"

	"schedule-manager/internal/model"
)

func TestLoadRequiresTopic(t *testing.T) {
	t.Setenv("NTFY_TOPIC", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected an error without NTFY_TOPIC")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("NTFY_TOPIC", "tasks")
	t.Setenv("NTFY_COMMAND_TOPIC", "")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("WORK_HOURS", "")
	t.Setenv("REMINDER_OFFSETS_HIGH", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NtfyCommandTopic != "tasks_commands" {
		t.Errorf("command topic = %q, want tasks_commands", cfg.NtfyCommandTopic)
	}
	if cfg.WorkHoursStart != "09:00" || cfg.WorkHoursEnd != "17:00" {
		t.Errorf("work hours = %s-%s", cfg.WorkHoursStart, cfg.WorkHoursEnd)
	}
	high := cfg.ReminderOffsets[model.PriorityHigh]
	if len(high) != 3 || high[0] != 15 || high[1] != 5 || high[2] != 0 {
		t.Errorf("high offsets = %v, want [15 5 0]", high)
	}
	if len(cfg.ReminderOffsets[model.PriorityMedium]) != 1 {
		t.Errorf("medium offsets = %v, want [0]", cfg.ReminderOffsets[model.PriorityMedium])
	}
	if cfg.Location != time.UTC {
		t.Errorf("location = %v, want UTC", cfg.Location)
	}
	if cfg.UpcomingHoursAhead != 4 {
		t.Errorf("upcoming hours = %d, want 4", cfg.UpcomingHoursAhead)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("NTFY_TOPIC", "tasks")
	t.Setenv("REMINDER_OFFSETS_HIGH", "30,10")
	t.Setenv("WORK_HOURS", "08:30-16:00")
	t.Setenv("COMMAND_RATE_LIMIT_SECONDS", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	high := cfg.ReminderOffsets[model.PriorityHigh]
	if len(high) != 2 || high[0] != 30 || high[1] != 10 {
		t.Errorf("high offsets = %v, want [30 10]", high)
	}
	if cfg.WorkHoursStart != "08:30" || cfg.WorkHoursEnd != "16:00" {
		t.Errorf("work hours = %s-%s", cfg.WorkHoursStart, cfg.WorkHoursEnd)
	}
	if cfg.CommandRateLimit != 2*time.Second {
		t.Errorf("rate limit = %v, want 2s", cfg.CommandRateLimit)
	}
}

func TestLoadBadWorkHours(t *testing.T) {
	t.Setenv("NTFY_TOPIC", "tasks")
	t.Setenv("WORK_HOURS", "nine to five")
	if _, err := Load(); err == nil {
		t.Fatal("expected an error for malformed WORK_HOURS")
	}
}
