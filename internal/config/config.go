package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"schedule-manager/internal/model"
)

// Config keeps runtime settings for the daemon.
type Config struct {
	DatabasePath string

	NtfyServer       string
	NtfyTopic        string
	NtfyCommandTopic string

	Timezone string
	Location *time.Location

	// Reminder offsets in minutes before the scheduled time, per priority.
	ReminderOffsets map[model.Priority][]int

	DailySummaryTime   string // HH:MM
	UpcomingInterval   time.Duration
	UpcomingHoursAhead int
	WorkHoursStart     string // HH:MM
	WorkHoursEnd       string // HH:MM
	WorkdayMinutes     int

	DefaultDurationMinutes int
	DefaultTimeOfDay       string // HH:MM, used when a phrase has a date but no time
	MorningTime            string
	AfternoonTime          string
	EveningTime            string

	AgentAPIKey  string
	AgentBaseURL string
	AgentModel   string
	AgentTimeout time.Duration

	APIAddr    string
	APIBaseURL string

	IPCheckEnabled bool

	CommandRateLimit time.Duration
}

// Load reads configuration from environment variables (and an optional .env
// file) with sane defaults.
func Load() (Config, error) {
	// .env file is optional in production.
	_ = godotenv.Load()

	cfg := Config{
		DatabasePath:           envOr("DB_PATH", "schedule_manager.db"),
		NtfyServer:             strings.TrimRight(envOr("NTFY_SERVER", "https://ntfy.sh"), "/"),
		NtfyTopic:              strings.TrimSpace(os.Getenv("NTFY_TOPIC")),
		NtfyCommandTopic:       strings.TrimSpace(os.Getenv("NTFY_COMMAND_TOPIC")),
		Timezone:               envOr("TIMEZONE", "Local"),
		DailySummaryTime:       envOr("DAILY_SUMMARY_TIME", "08:00"),
		UpcomingInterval:       time.Duration(envInt("UPCOMING_INTERVAL_MINUTES", 120)) * time.Minute,
		UpcomingHoursAhead:     envInt("UPCOMING_HOURS_AHEAD", 4),
		WorkdayMinutes:         envInt("WORKDAY_MINUTES", 8*60),
		DefaultDurationMinutes: envInt("DEFAULT_DURATION_MINUTES", 30),
		DefaultTimeOfDay:       envOr("DEFAULT_TIME_OF_DAY", "09:00"),
		MorningTime:            envOr("MORNING_TIME", "09:00"),
		AfternoonTime:          envOr("AFTERNOON_TIME", "15:00"),
		EveningTime:            envOr("EVENING_TIME", "19:00"),
		AgentAPIKey:            strings.TrimSpace(os.Getenv("AGENT_API_KEY")),
		AgentBaseURL:           envOr("AGENT_BASE_URL", "https://api.openai.com/v1"),
		AgentModel:             envOr("AGENT_MODEL", "gpt-4o-mini"),
		AgentTimeout:           time.Duration(envInt("AGENT_TIMEOUT_SECONDS", 90)) * time.Second,
		APIAddr:                envOr("API_ADDR", ":8080"),
		APIBaseURL:             strings.TrimRight(envOr("API_BASE_URL", "http://localhost:8080"), "/"),
		IPCheckEnabled:         envBool("IP_CHECK_ENABLED", true),
		CommandRateLimit:       time.Duration(envInt("COMMAND_RATE_LIMIT_SECONDS", 1)) * time.Second,
	}

	cfg.ReminderOffsets = map[model.Priority][]int{
		model.PriorityHigh:   envOffsets("REMINDER_OFFSETS_HIGH", []int{15, 5, 0}),
		model.PriorityMedium: envOffsets("REMINDER_OFFSETS_MEDIUM", []int{0}),
		model.PriorityLow:    envOffsets("REMINDER_OFFSETS_LOW", []int{0}),
	}

	workHours := envOr("WORK_HOURS", "09:00-17:00")
	start, end, ok := strings.Cut(workHours, "-")
	if !ok {
		return cfg, fmt.Errorf("WORK_HOURS %q must be HH:MM-HH:MM", workHours)
	}
	cfg.WorkHoursStart = strings.TrimSpace(start)
	cfg.WorkHoursEnd = strings.TrimSpace(end)

	if cfg.NtfyTopic == "" {
		return cfg, fmt.Errorf("NTFY_TOPIC is required")
	}
	if cfg.NtfyCommandTopic == "" {
		cfg.NtfyCommandTopic = cfg.NtfyTopic + "_commands"
	}

	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return cfg, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	return cfg, nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" || strings.EqualFold(name, "Local") {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return b
}

// envOffsets parses a comma-separated minute list, e.g. "15,5,0".
func envOffsets(key string, fallback []int) []int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	var out []int
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return fallback
		}
		out = append(out, n)
	}
	return out
}
