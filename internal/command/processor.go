package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"schedule-manager/internal/agent"
	"schedule-manager/internal/model"
	"schedule-manager/internal/nlp"
	"schedule-manager/internal/repository"
	"schedule-manager/internal/service"
)

// Assistant answers free-form messages the deterministic router does not
// recognize.
type Assistant interface {
	Ask(ctx context.Context, question string) agent.Outcome
}

// Response is the text reply for one inbound command.
type Response struct {
	OK   bool
	Text string
}

// Processor interprets inbound command messages: prefixed commands are routed
// deterministically, anything else goes to the assistant when one is
// configured, with a best-effort task add as the final fallback.
type Processor struct {
	tasks     *service.TaskService
	digests   *service.DigestService
	parser    *nlp.Parser
	assistant Assistant
	loc       *time.Location

	defaultUpcoming int
	rateLimit       time.Duration

	mu       sync.Mutex
	lastSeen map[string]time.Time

	now func() time.Time
}

func NewProcessor(
	tasks *service.TaskService,
	digests *service.DigestService,
	parser *nlp.Parser,
	assistant Assistant,
	loc *time.Location,
	defaultUpcoming int,
	rateLimit time.Duration,
) *Processor {
	if defaultUpcoming <= 0 {
		defaultUpcoming = 4
	}
	return &Processor{
		tasks:           tasks,
		digests:         digests,
		parser:          parser,
		assistant:       assistant,
		loc:             loc,
		defaultUpcoming: defaultUpcoming,
		rateLimit:       rateLimit,
		lastSeen:        make(map[string]time.Time),
		now:             time.Now,
	}
}

// SetClock overrides the processor clock, for tests.
func (p *Processor) SetClock(now func() time.Time) {
	p.now = now
}

// Handle interprets one message. source identifies the sender for rate
// limiting; messages from the same source within the limit window get a
// "please wait" reply without touching state.
func (p *Processor) Handle(ctx context.Context, text, source string) Response {
	text = strings.TrimSpace(text)
	if text == "" {
		return Response{OK: false, Text: "Empty command. Send 'help' for usage."}
	}

	if p.rateLimit > 0 && !p.admit(source) {
		return Response{OK: false, Text: "Please wait a moment before sending another command."}
	}

	lower := strings.ToLower(text)

	switch {
	case lower == "help" || lower == "commands" || lower == "?":
		return Response{OK: true, Text: helpText}

	case lower == "list" || lower == "today" || lower == "schedule":
		return p.today(ctx)

	case lower == "upcoming" || strings.HasPrefix(lower, "upcoming "):
		return p.upcoming(ctx, strings.TrimSpace(text[len("upcoming"):]))

	case strings.HasPrefix(lower, "add:") || strings.HasPrefix(lower, "add "):
		return p.add(ctx, strings.TrimSpace(text[4:]))

	case strings.HasPrefix(lower, "complete:"), strings.HasPrefix(lower, "done:"):
		_, rest, _ := strings.Cut(text, ":")
		return p.complete(ctx, rest)
	case strings.HasPrefix(lower, "complete "), strings.HasPrefix(lower, "done "):
		_, rest, _ := strings.Cut(text, " ")
		return p.complete(ctx, rest)

	case strings.HasPrefix(lower, "delete:"), strings.HasPrefix(lower, "remove:"):
		_, rest, _ := strings.Cut(text, ":")
		return p.delete(ctx, rest)
	case strings.HasPrefix(lower, "delete "), strings.HasPrefix(lower, "remove "):
		_, rest, _ := strings.Cut(text, " ")
		return p.delete(ctx, rest)

	case strings.HasPrefix(lower, "reschedule:"), strings.HasPrefix(lower, "reschedule "):
		return p.reschedule(ctx, strings.TrimSpace(text[len("reschedule")+1:]))
	}

	return p.freeForm(ctx, text)
}

// admit reports whether source may run a command now and records the attempt.
func (p *Processor) admit(source string) bool {
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	if last, ok := p.lastSeen[source]; ok && now.Sub(last) < p.rateLimit {
		return false
	}
	p.lastSeen[source] = now
	return true
}

func (p *Processor) add(ctx context.Context, text string) Response {
	res, err := p.parser.Parse(text, p.now())
	if err != nil {
		return Response{OK: false, Text: "Usage: add: <task> [time phrase]"}
	}
	if res.Title == "" {
		return Response{OK: false, Text: "Could not find a task title in that message."}
	}

	if res.Recurrence != nil {
		task, err := p.tasks.CreateRecurringTask(ctx, res.Title, "", res.Recurrence, model.PriorityMedium, nil)
		if err != nil {
			return Response{OK: false, Text: fmt.Sprintf("Could not add recurring task: %v", err)}
		}
		return Response{OK: true, Text: fmt.Sprintf("🔁 Added recurring: %s (%s)", task.Title, res.Recurrence.Describe())}
	}

	task, err := p.tasks.CreateTask(ctx, service.TaskInput{
		Title:           res.Title,
		ScheduledTime:   res.When,
		DurationMinutes: res.DurationMinutes,
		Priority:        model.PriorityMedium,
	})
	if err != nil {
		return Response{OK: false, Text: fmt.Sprintf("Could not add task: %v", err)}
	}

	if task.ScheduledTime == nil {
		return Response{OK: true, Text: fmt.Sprintf("✅ Added: %s (unscheduled)", task.Title)}
	}
	when := task.ScheduledTime.In(p.loc).Format("Mon Jan 2 03:04 PM")
	return Response{OK: true, Text: fmt.Sprintf("✅ Added: %s\n📆 %s", task.Title, when)}
}

func (p *Processor) today(ctx context.Context) Response {
	now := p.now().In(p.loc)
	tasks, err := p.tasks.TasksForDay(ctx, now)
	if err != nil {
		return Response{OK: false, Text: "Could not load today's schedule."}
	}
	return Response{OK: true, Text: p.digests.DailySummary(now, tasks)}
}

func (p *Processor) upcoming(ctx context.Context, arg string) Response {
	hours := p.defaultUpcoming
	if arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return Response{OK: false, Text: "Usage: upcoming [hours]"}
		}
		hours = n
	}
	if hours < 1 {
		hours = 1
	} else if hours > 24 {
		hours = 24
	}

	tasks, err := p.tasks.Upcoming(ctx, hours)
	if err != nil {
		return Response{OK: false, Text: "Could not load upcoming tasks."}
	}
	return Response{OK: true, Text: p.digests.UpcomingDigest(p.now(), hours, tasks)}
}

func (p *Processor) complete(ctx context.Context, arg string) Response {
	id, ok := parseID(arg)
	if !ok {
		return Response{OK: false, Text: "Usage: complete: <task id>"}
	}
	task, err := p.tasks.CompleteTask(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Response{OK: false, Text: fmt.Sprintf("Task %d not found", id)}
		}
		return Response{OK: false, Text: fmt.Sprintf("Could not complete task %d: %v", id, err)}
	}
	return Response{OK: true, Text: fmt.Sprintf("✅ Completed: %s", task.Title)}
}

func (p *Processor) delete(ctx context.Context, arg string) Response {
	id, ok := parseID(arg)
	if !ok {
		return Response{OK: false, Text: "Usage: delete: <task id>"}
	}
	if err := p.tasks.DeleteTask(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Response{OK: false, Text: fmt.Sprintf("Task %d not found", id)}
		}
		return Response{OK: false, Text: fmt.Sprintf("Could not delete task %d: %v", id, err)}
	}
	return Response{OK: true, Text: fmt.Sprintf("🗑️ Deleted task %d", id)}
}

func (p *Processor) reschedule(ctx context.Context, arg string) Response {
	idPart, phrase, found := strings.Cut(arg, " to ")
	if !found {
		// Also accept "reschedule: 12 tomorrow 3pm".
		idPart, phrase, found = strings.Cut(arg, " ")
	}
	id, ok := parseID(idPart)
	if !found || !ok {
		return Response{OK: false, Text: "Usage: reschedule: <task id> to <time phrase>"}
	}

	when := p.parser.ParseTime(phrase, p.now())
	if when == nil {
		return Response{OK: false, Text: fmt.Sprintf("Could not understand the time %q", strings.TrimSpace(phrase))}
	}

	task, err := p.tasks.RescheduleTask(ctx, id, *when)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Response{OK: false, Text: fmt.Sprintf("Task %d not found", id)}
		}
		return Response{OK: false, Text: fmt.Sprintf("Could not reschedule task %d: %v", id, err)}
	}
	return Response{OK: true, Text: fmt.Sprintf("📆 Rescheduled: %s to %s", task.Title, when.In(p.loc).Format("Mon Jan 2 03:04 PM"))}
}

// freeForm asks the assistant first. If it is absent, unavailable, or timed
// out, the message is treated as a task add so nothing the user sends is lost.
func (p *Processor) freeForm(ctx context.Context, text string) Response {
	if p.assistant != nil {
		if outcome := p.assistant.Ask(ctx, text); outcome.Status == agent.Answered {
			return Response{OK: true, Text: outcome.Text}
		}
	}

	resp := p.add(ctx, text)
	if resp.OK {
		resp.Text += "\n(interpreted as a task; send 'help' for commands)"
	}
	return resp
}

func parseID(s string) (uint, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

const helpText = `Commands:
add: <task> [time phrase] - add a task ("add: call mom tomorrow at 3pm")
list | today | schedule - today's schedule
upcoming [hours] - tasks due soon (default 4h)
complete: <id> | done: <id> - mark a task done
delete: <id> | remove: <id> - delete a task
reschedule: <id> to <time phrase> - move a task
help - this message

Anything else is answered by the assistant, or added as a task.`
