package nlp

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"schedule-manager/internal/model"
)

// ErrEmptyInput is the only failure Parse reports. Anything else yields a
// best-effort Result: an unresolved time phrase leaves When nil instead of
// failing the whole add.
var ErrEmptyInput = errors.New("nlp: empty input")

// Defaults carries configured fallbacks for the parser. Canonical times are
// HH:MM strings.
type Defaults struct {
	TimeOfDay       string
	DurationMinutes int
	Morning         string
	Afternoon       string
	Evening         string
}

// Result is the structured outcome of parsing a scheduling phrase.
type Result struct {
	Title           string
	When            *time.Time
	DurationMinutes int
	Recurrence      *model.RecurrenceRule
}

// Parser turns free-text scheduling phrases into structured data. It runs a
// fixed pipeline of matchers (recurrence, relative offset, day reference,
// calendar date, duration, bare clock time), each of which removes the phrase
// it consumed so the residue becomes the task title.
type Parser struct {
	loc      *time.Location
	defaults Defaults
}

func NewParser(loc *time.Location, defaults Defaults) *Parser {
	if defaults.TimeOfDay == "" {
		defaults.TimeOfDay = "09:00"
	}
	if defaults.DurationMinutes <= 0 {
		defaults.DurationMinutes = 30
	}
	if defaults.Morning == "" {
		defaults.Morning = "09:00"
	}
	if defaults.Afternoon == "" {
		defaults.Afternoon = "15:00"
	}
	if defaults.Evening == "" {
		defaults.Evening = "19:00"
	}
	return &Parser{loc: loc, defaults: defaults}
}

var (
	relativeRe = regexp.MustCompile(`(?i)\bin\s+(\d+)\s+(minutes?|mins?|hours?|hrs?|days?)\b`)
	tomorrowRe = regexp.MustCompile(`(?i)\btomorrow\b`)
	todayRe    = regexp.MustCompile(`(?i)\btoday\b`)

	dayRefRe = regexp.MustCompile(`(?i)\b(next\s+|this\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday|tues|thurs|thur|mon|tue|wed|thu|fri|sat|sun)\b`)

	monthRe = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december|sept|jan|feb|mar|apr|jun|jul|aug|sep|oct|nov|dec)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b`)

	clockRe = regexp.MustCompile(`(?i)(\bat\s+)?\b(\d{1,2})(:(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)?\b`)

	partOfDayRe = regexp.MustCompile(`(?i)\b(?:this\s+)?(morning|afternoon|evening|tonight|noon)\b`)

	timeRangeRe = regexp.MustCompile(`(?i)\b(?:at\s+)?(\d{1,2}):(\d{2})\s*-\s*(\d{1,2}):(\d{2})\b`)

	dailyRe    = regexp.MustCompile(`(?i)\b(?:daily|every\s+day)\b`)
	weekdaydRe = regexp.MustCompile(`(?i)\bweekdays?\b`)
	everyDayRe = regexp.MustCompile(`(?i)\bevery\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday|tues|thurs|thur|mon|tue|wed|thu|fri|sat|sun)\b`)
	dayListRe  = regexp.MustCompile(`(?i)\b(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday|tues|thurs|thur|mon|tue|wed|thu|fri|sat|sun)(?:\s*,\s*(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday|tues|thurs|thur|mon|tue|wed|thu|fri|sat|sun))+\b`)
	dayTokenRe = regexp.MustCompile(`(?i)(monday|tuesday|wednesday|thursday|friday|saturday|sunday|tues|thurs|thur|mon|tue|wed|thu|fri|sat|sun)`)

	spaceRe = regexp.MustCompile(`\s+`)
)

var weekdayByCode = map[string]time.Weekday{
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
	"sun": time.Sunday,
}

var monthByCode = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// Parse converts a phrase plus a reference instant into a Result. The only
// error is empty input; an unparseable time expression leaves When nil and
// the cleaned text still becomes the title.
func (p *Parser) Parse(text string, now time.Time) (Result, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Result{}, ErrEmptyInput
	}
	now = now.In(p.loc)

	rest := trimmed
	var res Result

	if rule, r, ok := p.matchRecurrence(rest); ok {
		res.Recurrence = rule
		rest = r
	}

	if res.Recurrence == nil {
		if when, r, ok := p.matchRelative(rest, now); ok {
			res.When = &when
			rest = r
		} else if when, r, ok := p.matchDayReference(rest, now); ok {
			res.When = &when
			rest = r
		} else if when, r, ok := p.matchCalendarDate(rest, now); ok {
			res.When = &when
			rest = r
		}
	}

	if mins, r, ok := matchDuration(rest); ok {
		res.DurationMinutes = mins
		rest = r
	}

	// A bare clock time with no date means today, rolling to tomorrow once
	// the moment has passed.
	if res.Recurrence == nil && res.When == nil {
		if h, m, r, ok := p.extractTimeOfDay(rest); ok {
			cand := dateAt(now, now, h, m)
			if !cand.After(now) {
				cand = cand.AddDate(0, 0, 1)
			}
			res.When = &cand
			rest = r
		}
	}

	if res.DurationMinutes == 0 && res.Recurrence != nil {
		res.DurationMinutes = res.Recurrence.DurationMinutes()
	}
	if res.DurationMinutes == 0 {
		res.DurationMinutes = p.defaults.DurationMinutes
	}

	res.Title = cleanTitle(rest)
	return res, nil
}

// ParseTime resolves a pure time phrase ("tomorrow at 3pm", "in 2 hours",
// "5pm") against the reference instant. Nil means no time was recognized.
func (p *Parser) ParseTime(text string, now time.Time) *time.Time {
	now = now.In(p.loc)
	if when, _, ok := p.matchRelative(text, now); ok {
		return &when
	}
	if when, _, ok := p.matchDayReference(text, now); ok {
		return &when
	}
	if when, _, ok := p.matchCalendarDate(text, now); ok {
		return &when
	}
	if h, m, _, ok := p.extractTimeOfDay(text); ok {
		cand := dateAt(now, now, h, m)
		if !cand.After(now) {
			cand = cand.AddDate(0, 0, 1)
		}
		return &cand
	}
	return nil
}

func (p *Parser) matchRelative(s string, now time.Time) (time.Time, string, bool) {
	m := relativeRe.FindStringSubmatchIndex(s)
	if m == nil {
		return time.Time{}, s, false
	}
	amount, err := strconv.Atoi(s[m[2]:m[3]])
	if err != nil {
		return time.Time{}, s, false
	}
	unit := strings.ToLower(s[m[4]:m[5]])
	var when time.Time
	switch {
	case strings.HasPrefix(unit, "min"):
		when = now.Add(time.Duration(amount) * time.Minute)
	case strings.HasPrefix(unit, "hour"), strings.HasPrefix(unit, "hr"):
		when = now.Add(time.Duration(amount) * time.Hour)
	default:
		when = now.AddDate(0, 0, amount)
	}
	return when, cut(s, m[0], m[1]), true
}

func (p *Parser) matchDayReference(s string, now time.Time) (time.Time, string, bool) {
	if m := tomorrowRe.FindStringIndex(s); m != nil {
		rest := cut(s, m[0], m[1])
		h, mi, rest, ok := p.extractTimeOfDay(rest)
		if !ok {
			h, mi = p.defaultClock()
		}
		return dateAt(now.AddDate(0, 0, 1), now, h, mi), rest, true
	}

	if m := todayRe.FindStringIndex(s); m != nil {
		rest := cut(s, m[0], m[1])
		h, mi, rest, ok := p.extractTimeOfDay(rest)
		if !ok {
			h, mi = p.defaultClock()
		}
		return dateAt(now, now, h, mi), rest, true
	}

	m := dayRefRe.FindStringSubmatchIndex(s)
	if m == nil {
		return time.Time{}, s, false
	}
	hasNext := m[2] >= 0 && strings.HasPrefix(strings.ToLower(s[m[2]:m[3]]), "next")
	code := strings.ToLower(s[m[4]:m[5]])[:3]
	target, ok := weekdayByCode[code]
	if !ok {
		return time.Time{}, s, false
	}

	rest := cut(s, m[0], m[1])
	h, mi, rest, hasTime := p.extractTimeOfDay(rest)
	if !hasTime {
		h, mi = p.defaultClock()
	}

	delta := (int(target) - int(now.Weekday()) + 7) % 7
	if hasNext && delta == 0 {
		delta = 7
	}
	cand := dateAt(now.AddDate(0, 0, delta), now, h, mi)
	// Same weekday as today with the time already gone means next week,
	// not today.
	if !cand.After(now) {
		cand = cand.AddDate(0, 0, 7)
	}
	return cand, rest, true
}

func (p *Parser) matchCalendarDate(s string, now time.Time) (time.Time, string, bool) {
	m := monthRe.FindStringSubmatchIndex(s)
	if m == nil {
		return time.Time{}, s, false
	}
	code := strings.ToLower(s[m[2]:m[3]])[:3]
	month, ok := monthByCode[code]
	if !ok {
		return time.Time{}, s, false
	}
	day, err := strconv.Atoi(s[m[4]:m[5]])
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, s, false
	}

	rest := cut(s, m[0], m[1])
	h, mi, rest, hasTime := p.extractTimeOfDay(rest)
	if !hasTime {
		h, mi = p.defaultClock()
	}

	cand := time.Date(now.Year(), month, day, h, mi, 0, 0, p.loc)
	if !cand.After(now) {
		cand = cand.AddDate(1, 0, 0)
	}
	return cand, rest, true
}

func (p *Parser) matchRecurrence(s string) (*model.RecurrenceRule, string, bool) {
	var days []string
	rest := s
	matched := false

	switch {
	case dailyRe.MatchString(rest):
		m := dailyRe.FindStringIndex(rest)
		days = []string{model.DayAll}
		rest = cut(rest, m[0], m[1])
		matched = true
	case weekdaydRe.MatchString(rest):
		m := weekdaydRe.FindStringIndex(rest)
		days = []string{"mon", "tue", "wed", "thu", "fri"}
		rest = cut(rest, m[0], m[1])
		matched = true
	case dayListRe.MatchString(rest):
		m := dayListRe.FindStringIndex(rest)
		for _, tok := range dayTokenRe.FindAllString(rest[m[0]:m[1]], -1) {
			days = append(days, strings.ToLower(tok)[:3])
		}
		rest = cut(rest, m[0], m[1])
		matched = true
	case everyDayRe.MatchString(rest):
		m := everyDayRe.FindStringSubmatchIndex(rest)
		days = []string{strings.ToLower(rest[m[2]:m[3]])[:3]}
		rest = cut(rest, m[0], m[1])
		matched = true
	}
	if !matched {
		return nil, s, false
	}

	rule := &model.RecurrenceRule{Days: days}

	if m := timeRangeRe.FindStringSubmatchIndex(rest); m != nil {
		sh, _ := strconv.Atoi(rest[m[2]:m[3]])
		sm, _ := strconv.Atoi(rest[m[4]:m[5]])
		eh, _ := strconv.Atoi(rest[m[6]:m[7]])
		em, _ := strconv.Atoi(rest[m[8]:m[9]])
		if sh <= 23 && sm <= 59 && eh <= 23 && em <= 59 {
			rule.Start = clockString(sh, sm)
			rule.End = clockString(eh, em)
			rest = cut(rest, m[0], m[1])
		}
	} else if h, mi, r, ok := p.extractTimeOfDay(rest); ok {
		rule.Start = clockString(h, mi)
		rest = r
	}

	return rule, rest, true
}

// extractTimeOfDay finds an explicit clock time or a part-of-day qualifier
// and removes it from the text.
func (p *Parser) extractTimeOfDay(s string) (hour, minute int, rest string, ok bool) {
	if h, m, start, end, found := extractClock(s); found {
		return h, m, cut(s, start, end), true
	}
	if m := partOfDayRe.FindStringSubmatchIndex(s); m != nil {
		var canonical string
		switch strings.ToLower(s[m[2]:m[3]]) {
		case "morning":
			canonical = p.defaults.Morning
		case "afternoon":
			canonical = p.defaults.Afternoon
		case "noon":
			canonical = "12:00"
		default: // evening, tonight
			canonical = p.defaults.Evening
		}
		h, mi, ok := splitClock(canonical)
		if !ok {
			return 0, 0, s, false
		}
		return h, mi, cut(s, m[0], m[1]), true
	}
	return 0, 0, s, false
}

// extractClock finds the first plausible clock phrase. A bare number is not a
// time: it must carry a colon, a meridiem, or an "at" prefix.
func extractClock(s string) (hour, minute, start, end int, ok bool) {
	for _, m := range clockRe.FindAllStringSubmatchIndex(s, -1) {
		hasAt := m[2] >= 0
		hasColon := m[8] >= 0
		hasMeridiem := m[10] >= 0
		if !hasAt && !hasColon && !hasMeridiem {
			continue
		}
		h, err := strconv.Atoi(s[m[4]:m[5]])
		if err != nil {
			continue
		}
		mi := 0
		if hasColon {
			mi, err = strconv.Atoi(s[m[8]:m[9]])
			if err != nil || mi > 59 {
				continue
			}
		}
		if hasMeridiem {
			if h < 1 || h > 12 {
				continue
			}
			mer := strings.ToLower(s[m[10]:m[11]])
			if strings.HasPrefix(mer, "p") && h < 12 {
				h += 12
			} else if strings.HasPrefix(mer, "a") && h == 12 {
				h = 0
			}
		} else if h > 23 {
			continue
		}
		return h, mi, m[0], m[1], true
	}
	return 0, 0, 0, 0, false
}

var (
	durHourRe = regexp.MustCompile(`(?i)\b(?:for\s+)?(\d+(?:\.\d+)?)\s*(?:hours?|hrs?|h)\b`)
	durMinRe  = regexp.MustCompile(`(?i)\b(?:for\s+)?(\d+)\s*(?:minutes?|mins?|m)\b`)
)

func matchDuration(s string) (minutes int, rest string, ok bool) {
	rest = s
	if m := durHourRe.FindStringSubmatchIndex(rest); m != nil {
		hours, err := strconv.ParseFloat(rest[m[2]:m[3]], 64)
		if err == nil {
			minutes += int(hours * 60)
			rest = cut(rest, m[0], m[1])
		}
	}
	if m := durMinRe.FindStringSubmatchIndex(rest); m != nil {
		mins, err := strconv.Atoi(rest[m[2]:m[3]])
		if err == nil {
			minutes += mins
			rest = cut(rest, m[0], m[1])
		}
	}
	if minutes <= 0 {
		return 0, s, false
	}
	return minutes, rest, true
}

func (p *Parser) defaultClock() (int, int) {
	h, m, ok := splitClock(p.defaults.TimeOfDay)
	if !ok {
		return 9, 0
	}
	return h, m
}

func splitClock(s string) (hour, minute int, ok bool) {
	hs, ms, found := strings.Cut(s, ":")
	if !found {
		return 0, 0, false
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(ms)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

func clockString(h, m int) string {
	return time.Date(0, 1, 1, h, m, 0, 0, time.UTC).Format("15:04")
}

// dateAt combines the calendar day of day with a clock time in the parser's
// location. now fixes the location for safety when day came from arithmetic.
func dateAt(day, now time.Time, hour, minute int) time.Time {
	y, m, d := day.In(now.Location()).Date()
	return time.Date(y, m, d, hour, minute, 0, 0, now.Location())
}

// cut removes s[start:end], leaving a single space so word boundaries on
// either side of the removed phrase survive.
func cut(s string, start, end int) string {
	return strings.TrimSpace(s[:start] + " " + s[end:])
}

var connectorWords = map[string]bool{
	"at": true, "on": true, "for": true, "in": true,
	"to": true, "from": true, "this": true, "next": true, "every": true,
}

func cleanTitle(s string) string {
	s = spaceRe.ReplaceAllString(s, " ")
	s = strings.Trim(s, " ,.-")
	words := strings.Fields(s)
	for len(words) > 0 && connectorWords[strings.ToLower(words[len(words)-1])] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}
