package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"schedule-manager/internal/model"
)

// Action is an ntfy notification action button.
type Action struct {
	Action string
	Label  string
	URL    string
	Method string
}

// Message is one outbound push notification.
type Message struct {
	Title    string
	Body     string
	Priority model.Priority
	Tags     []string
	Actions  []Action
	Click    string
}

// Client publishes messages to an ntfy topic over HTTP.
type Client struct {
	server     string
	topic      string
	apiBaseURL string
	priorities map[model.Priority]string
	httpc      *http.Client
	loc        *time.Location
}

// DefaultPriorities maps task priorities to ntfy priority levels.
func DefaultPriorities() map[model.Priority]string {
	return map[model.Priority]string{
		model.PriorityHigh:   "urgent",
		model.PriorityMedium: "high",
		model.PriorityLow:    "default",
	}
}

func New(server, topic, apiBaseURL string, priorities map[model.Priority]string, loc *time.Location) *Client {
	if priorities == nil {
		priorities = DefaultPriorities()
	}
	return &Client{
		server:     strings.TrimRight(server, "/"),
		topic:      topic,
		apiBaseURL: strings.TrimRight(apiBaseURL, "/"),
		priorities: priorities,
		httpc:      &http.Client{Timeout: 15 * time.Second},
		loc:        loc,
	}
}

// Publish sends one message and returns the gateway message id. The body is
// UTF-8; the Title header can only carry latin-1, so titles with symbols are
// degraded to their ASCII part and the full title is prepended to the body.
func (c *Client) Publish(ctx context.Context, msg Message) (string, error) {
	body := msg.Body
	title := msg.Title
	if title != "" && !latin1Safe(title) {
		clean := asciiOnly(title)
		if body != "" {
			body = msg.Title + "\n\n" + body
		} else {
			body = msg.Title
		}
		if clean != "" {
			title = clean
		} else {
			title = "Notification"
		}
	}

	url := fmt.Sprintf("%s/%s", c.server, c.topic)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build ntfy request: %w", err)
	}
	if p, ok := c.priorities[msg.Priority]; ok {
		req.Header.Set("Priority", p)
	} else {
		req.Header.Set("Priority", "default")
	}
	if title != "" {
		req.Header.Set("Title", title)
	}
	if len(msg.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.Tags, ","))
	}
	if msg.Click != "" {
		req.Header.Set("Click", msg.Click)
	}
	if len(msg.Actions) > 0 {
		req.Header.Set("Actions", formatActions(msg.Actions))
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", c.topic, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("publish to %s: gateway returned %s", c.topic, resp.Status)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode ntfy response: %w", err)
	}
	return result.ID, nil
}

// SendTaskReminder delivers a reminder for a scheduled task. It satisfies the
// delivery scan's sender contract.
func (c *Client) SendTaskReminder(ctx context.Context, task *model.Task, minutesBefore int) (string, error) {
	timeStr := ""
	if task.ScheduledTime != nil {
		timeStr = task.ScheduledTime.In(c.loc).Format("03:04 PM")
	}

	var title, body string
	if minutesBefore > 0 {
		title = fmt.Sprintf("⏰ Reminder: %s", task.Title)
		body = fmt.Sprintf("Starting in %d minutes at %s", minutesBefore, timeStr)
	} else {
		title = fmt.Sprintf("📌 Now: %s", task.Title)
		body = fmt.Sprintf("Scheduled for %s", timeStr)
	}
	if task.Description != "" {
		body += "\n\n" + task.Description
	}

	tags := []string{"calendar", "alarm_clock"}
	if task.Priority == model.PriorityHigh {
		tags = append(tags, "warning")
	}

	var actions []Action
	if c.apiBaseURL != "" {
		actions = []Action{
			{Action: "http", Label: "✓ Done", URL: fmt.Sprintf("%s/api/tasks/%d/complete", c.apiBaseURL, task.ID), Method: http.MethodPost},
			{Action: "http", Label: "Snooze 15m", URL: fmt.Sprintf("%s/api/tasks/%d/snooze", c.apiBaseURL, task.ID), Method: http.MethodPost},
		}
	}

	return c.Publish(ctx, Message{
		Title:    title,
		Body:     body,
		Priority: task.Priority,
		Tags:     tags,
		Actions:  actions,
	})
}

// SendDailySummary delivers the day digest.
func (c *Client) SendDailySummary(ctx context.Context, day time.Time, digest string) (string, error) {
	return c.Publish(ctx, Message{
		Title:    fmt.Sprintf("📅 %s", day.In(c.loc).Format("Monday, January 2")),
		Body:     digest,
		Priority: model.PriorityMedium,
		Tags:     []string{"calendar", "sunrise"},
	})
}

// SendUpcomingSummary delivers the short upcoming digest.
func (c *Client) SendUpcomingSummary(ctx context.Context, hoursAhead int, digest string) (string, error) {
	return c.Publish(ctx, Message{
		Title:    fmt.Sprintf("📋 Upcoming (%dh)", hoursAhead),
		Body:     digest,
		Priority: model.PriorityLow,
		Tags:     []string{"calendar", "information_source"},
	})
}

// SendIPChange notifies about a public IP change.
func (c *Client) SendIPChange(ctx context.Context, oldIP, newIP string) (string, error) {
	body := fmt.Sprintf("New address: %s", newIP)
	if oldIP != "" {
		body = fmt.Sprintf("%s → %s", oldIP, newIP)
	}
	return c.Publish(ctx, Message{
		Title:    "🌐 Public IP changed",
		Body:     body,
		Priority: model.PriorityLow,
		Tags:     []string{"globe_with_meridians"},
	})
}

// SendCommandReply answers an inbound command on the outbound topic.
func (c *Client) SendCommandReply(ctx context.Context, text string) (string, error) {
	return c.Publish(ctx, Message{
		Body:     text,
		Priority: model.PriorityLow,
		Tags:     []string{"speech_balloon"},
	})
}

func formatActions(actions []Action) string {
	parts := make([]string, 0, len(actions))
	for _, a := range actions {
		fields := []string{
			fmt.Sprintf("action=%s", a.Action),
			fmt.Sprintf("label=%s", a.Label),
			fmt.Sprintf("url=%s", a.URL),
		}
		if a.Method != "" {
			fields = append(fields, fmt.Sprintf("method=%s", a.Method))
		}
		parts = append(parts, strings.Join(fields, ", "))
	}
	return strings.Join(parts, "; ")
}

func latin1Safe(s string) bool {
	for _, r := range s {
		if r > 0xFF {
			return false
		}
	}
	return true
}

func asciiOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < 128 {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
