package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// DayAll marks a rule that fires every day.
const DayAll = "all"

var weekdayCodes = map[string]rrule.Weekday{
	"mon": rrule.MO,
	"tue": rrule.TU,
	"wed": rrule.WE,
	"thu": rrule.TH,
	"fri": rrule.FR,
	"sat": rrule.SA,
	"sun": rrule.SU,
}

var goWeekdayCode = map[time.Weekday]string{
	time.Monday:    "mon",
	time.Tuesday:   "tue",
	time.Wednesday: "wed",
	time.Thursday:  "thu",
	time.Friday:    "fri",
	time.Saturday:  "sat",
	time.Sunday:    "sun",
}

var ErrInvalidRecurrence = errors.New("model: invalid recurrence rule")

// RecurrenceRule describes how a template task spawns concrete instances:
// a set of weekday codes ("mon".."sun", or the single entry "all" for daily)
// plus an optional HH:MM start time and, for time-blocking, an end time.
// It is stored as JSON in a text column.
type RecurrenceRule struct {
	Days  []string `json:"days"`
	Start string   `json:"start,omitempty"`
	End   string   `json:"end,omitempty"`
}

func (r *RecurrenceRule) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal recurrence rule: %w", err)
	}
	return string(b), nil
}

func (r *RecurrenceRule) Scan(value any) error {
	if value == nil {
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan recurrence rule: unsupported type %T", value)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, r)
}

// Daily reports whether the rule fires every day.
func (r *RecurrenceRule) Daily() bool {
	for _, d := range r.Days {
		if d == DayAll {
			return true
		}
	}
	return false
}

func (r *RecurrenceRule) Validate() error {
	if r == nil || len(r.Days) == 0 {
		return fmt.Errorf("%w: no days", ErrInvalidRecurrence)
	}
	for _, d := range r.Days {
		if d == DayAll {
			continue
		}
		if _, ok := weekdayCodes[d]; !ok {
			return fmt.Errorf("%w: unknown day %q", ErrInvalidRecurrence, d)
		}
	}
	if r.Start != "" {
		if _, _, err := parseClock(r.Start); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRecurrence, err)
		}
	}
	if r.End != "" {
		if _, _, err := parseClock(r.End); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRecurrence, err)
		}
	}
	return nil
}

// StartClock returns the rule's start time of day, if any.
func (r *RecurrenceRule) StartClock() (hour, minute int, ok bool) {
	if r.Start == "" {
		return 0, 0, false
	}
	h, m, err := parseClock(r.Start)
	if err != nil {
		return 0, 0, false
	}
	return h, m, true
}

// DurationMinutes derives an instance duration from the start-end window.
// Zero means no window was given.
func (r *RecurrenceRule) DurationMinutes() int {
	if r.Start == "" || r.End == "" {
		return 0
	}
	sh, sm, err := parseClock(r.Start)
	if err != nil {
		return 0
	}
	eh, em, err := parseClock(r.End)
	if err != nil {
		return 0
	}
	d := (eh*60 + em) - (sh*60 + sm)
	if d < 0 {
		return 0
	}
	return d
}

// RRule converts the rule to an RFC 5545 recurrence anchored at its start
// time of day in the given location.
func (r *RecurrenceRule) RRule(loc *time.Location) (*rrule.RRule, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	h, m, _ := r.StartClock()
	opt := rrule.ROption{
		// Anchor far enough in the past that any practical query falls
		// after dtstart.
		Dtstart: time.Date(2000, 1, 3, h, m, 0, 0, loc),
	}
	if r.Daily() {
		opt.Freq = rrule.DAILY
	} else {
		opt.Freq = rrule.WEEKLY
		days := make([]rrule.Weekday, 0, len(r.Days))
		for _, d := range r.Days {
			days = append(days, weekdayCodes[d])
		}
		opt.Byweekday = days
	}
	return rrule.NewRRule(opt)
}

// OccursOn reports whether the rule fires on the calendar day of t.
func (r *RecurrenceRule) OccursOn(t time.Time) bool {
	rule, err := r.RRule(t.Location())
	if err != nil {
		return false
	}
	dayStart := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	next := rule.After(dayStart.Add(-time.Second), true)
	if next.IsZero() {
		return false
	}
	ny, nm, nd := next.Date()
	ty, tm, td := t.Date()
	return ny == ty && nm == tm && nd == td
}

// NextOccurrence returns the first occurrence strictly after the given time,
// or nil if the rule never fires.
func (r *RecurrenceRule) NextOccurrence(after time.Time) *time.Time {
	rule, err := r.RRule(after.Location())
	if err != nil {
		return nil
	}
	next := rule.After(after, false)
	if next.IsZero() {
		return nil
	}
	return &next
}

// Describe renders the rule for humans, e.g. "mon, wed, fri at 12:00-12:45".
func (r *RecurrenceRule) Describe() string {
	var b strings.Builder
	switch {
	case r.Daily():
		b.WriteString("daily")
	default:
		days := append([]string(nil), r.Days...)
		sort.Slice(days, func(i, j int) bool {
			return dayOrder(days[i]) < dayOrder(days[j])
		})
		b.WriteString(strings.Join(days, ", "))
	}
	if r.Start != "" {
		b.WriteString(" at ")
		b.WriteString(r.Start)
		if r.End != "" {
			b.WriteString("-")
			b.WriteString(r.End)
		}
	}
	return b.String()
}

func dayOrder(code string) int {
	order := []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}
	for i, c := range order {
		if c == code {
			return i
		}
	}
	return len(order)
}

func parseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}
