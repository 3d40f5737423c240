package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"schedule-manager/internal/model"
)

// DigestService builds human-readable summaries for push notifications.
type DigestService struct {
	loc            *time.Location
	workStartMin   int
	workEndMin     int
	workdayMinutes int
}

func NewDigestService(loc *time.Location, workStart, workEnd string, workdayMinutes int) *DigestService {
	if workdayMinutes <= 0 {
		workdayMinutes = 8 * 60
	}
	return &DigestService{
		loc:            loc,
		workStartMin:   clockMinutes(workStart, 9*60),
		workEndMin:     clockMinutes(workEnd, 17*60),
		workdayMinutes: workdayMinutes,
	}
}

// WithinWorkHours reports whether the upcoming digest should run: inside the
// configured window, on a weekday.
func (s *DigestService) WithinWorkHours(now time.Time) bool {
	now = now.In(s.loc)
	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	minutes := now.Hour()*60 + now.Minute()
	return minutes >= s.workStartMin && minutes <= s.workEndMin
}

// DailySummary composes the day digest: tasks ordered by time with priority
// markers, plus a free-time line (work-hours span minus summed durations).
func (s *DigestService) DailySummary(day time.Time, tasks []model.Task) string {
	day = day.In(s.loc)
	dateStr := day.Format("Monday, January 2")

	if len(tasks) == 0 {
		return fmt.Sprintf("No tasks scheduled for %s. Enjoy your free time! 🎉", dateStr)
	}

	sorted := append([]model.Task(nil), tasks...)
	sort.SliceStable(sorted, func(i, j int) bool {
		switch {
		case sorted[i].ScheduledTime == nil && sorted[j].ScheduledTime == nil:
			return sorted[i].ID < sorted[j].ID
		case sorted[i].ScheduledTime == nil:
			return false
		case sorted[j].ScheduledTime == nil:
			return true
		default:
			return sorted[i].ScheduledTime.Before(*sorted[j].ScheduledTime)
		}
	})

	var b strings.Builder
	fmt.Fprintf(&b, "📅 %s\n\n", dateStr)

	total := 0
	for _, task := range sorted {
		timeStr := "Unscheduled"
		if task.ScheduledTime != nil {
			timeStr = task.ScheduledTime.In(s.loc).Format("03:04 PM")
		}
		total += task.DurationMinutes
		fmt.Fprintf(&b, "%s %s - %s (%dmin)\n", priorityIcon(task.Priority), timeStr, task.Title, task.DurationMinutes)
	}

	if free := s.workdayMinutes - total; free > 0 {
		fmt.Fprintf(&b, "\n💡 Scheduled time: %dmin | Free time: %dh %dm", total, free/60, free%60)
	}
	return b.String()
}

// UpcomingDigest composes the short "due within N hours" list.
func (s *DigestService) UpcomingDigest(now time.Time, hoursAhead int, tasks []model.Task) string {
	now = now.In(s.loc)

	if len(tasks) == 0 {
		plural := ""
		if hoursAhead != 1 {
			plural = "s"
		}
		return fmt.Sprintf("📋 No tasks in the next %d hour%s\n\nYou're all clear! ✨", hoursAhead, plural)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📋 Upcoming (%dh)\n", hoursAhead)
	for _, task := range tasks {
		if task.ScheduledTime == nil {
			continue
		}
		at := task.ScheduledTime.In(s.loc)
		fmt.Fprintf(&b, "%s %s (%s)\n   %s\n", priorityIcon(task.Priority), at.Format("03:04 PM"), untilPhrase(at.Sub(now)), task.Title)
	}
	return strings.TrimRight(b.String(), "\n")
}

func untilPhrase(d time.Duration) string {
	if d < time.Minute {
		return "now"
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours > 0 {
		return fmt.Sprintf("in %dh %dm", hours, minutes)
	}
	return fmt.Sprintf("in %dm", minutes)
}

func priorityIcon(p model.Priority) string {
	switch p {
	case model.PriorityHigh:
		return "🔴"
	case model.PriorityLow:
		return "🟢"
	default:
		return "🟡"
	}
}

func clockMinutes(s string, fallback int) int {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return fallback
	}
	return h*60 + m
}
