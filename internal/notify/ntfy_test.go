package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"schedule-manager/internal/model"
)

type capture struct {
	path    string
	headers http.Header
	body    string
}

func newTestGateway(t *testing.T, status int, response string) (*httptest.Server, *capture) {
	t.Helper()
	rec := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.path = r.URL.Path
		rec.headers = r.Header.Clone()
		rec.body = string(body)
		w.WriteHeader(status)
		io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestPublishSetsHeaders(t *testing.T) {
	srv, rec := newTestGateway(t, http.StatusOK, `{"id":"abc123"}`)
	c := New(srv.URL, "alerts", "", nil, time.UTC)

	id, err := c.Publish(context.Background(), Message{
		Title:    "Hello",
		Body:     "World",
		Priority: model.PriorityHigh,
		Tags:     []string{"calendar", "alarm_clock"},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if id != "abc123" {
		t.Errorf("id = %q, want abc123", id)
	}
	if rec.path != "/alerts" {
		t.Errorf("path = %q, want /alerts", rec.path)
	}
	if got := rec.headers.Get("Priority"); got != "urgent" {
		t.Errorf("priority header = %q, want urgent", got)
	}
	if got := rec.headers.Get("Title"); got != "Hello" {
		t.Errorf("title header = %q", got)
	}
	if got := rec.headers.Get("Tags"); got != "calendar,alarm_clock" {
		t.Errorf("tags header = %q", got)
	}
	if rec.body != "World" {
		t.Errorf("body = %q", rec.body)
	}
}

func TestPublishDegradesNonLatinTitle(t *testing.T) {
	srv, rec := newTestGateway(t, http.StatusOK, `{"id":"x"}`)
	c := New(srv.URL, "alerts", "", nil, time.UTC)

	_, err := c.Publish(context.Background(), Message{
		Title:    "⏰ Reminder: tea",
		Body:     "soon",
		Priority: model.PriorityMedium,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := rec.headers.Get("Title"); got != "Reminder: tea" {
		t.Errorf("degraded title = %q, want ascii part only", got)
	}
	// The full title moves into the UTF-8 body.
	if !strings.HasPrefix(rec.body, "⏰ Reminder: tea") || !strings.Contains(rec.body, "soon") {
		t.Errorf("body = %q, want full title prepended", rec.body)
	}
}

func TestPublishSymbolOnlyTitleFallsBack(t *testing.T) {
	srv, rec := newTestGateway(t, http.StatusOK, `{"id":"x"}`)
	c := New(srv.URL, "alerts", "", nil, time.UTC)

	if _, err := c.Publish(context.Background(), Message{Title: "📅🌐", Priority: model.PriorityLow}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := rec.headers.Get("Title"); got != "Notification" {
		t.Errorf("title = %q, want fallback", got)
	}
	if rec.body != "📅🌐" {
		t.Errorf("body = %q, want original title", rec.body)
	}
}

func TestPublishGatewayError(t *testing.T) {
	srv, _ := newTestGateway(t, http.StatusInternalServerError, "boom")
	c := New(srv.URL, "alerts", "", nil, time.UTC)

	if _, err := c.Publish(context.Background(), Message{Body: "hi"}); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}

func TestSendTaskReminderActions(t *testing.T) {
	srv, rec := newTestGateway(t, http.StatusOK, `{"id":"x"}`)
	c := New(srv.URL, "alerts", "http://localhost:8080", nil, time.UTC)

	when := time.Date(2026, time.March, 2, 15, 0, 0, 0, time.UTC)
	task := &model.Task{Title: "board meeting", Priority: model.PriorityHigh, ScheduledTime: &when}
	task.ID = 7

	if _, err := c.SendTaskReminder(context.Background(), task, 15); err != nil {
		t.Fatalf("send: %v", err)
	}
	actions := rec.headers.Get("Actions")
	if !strings.Contains(actions, "url=http://localhost:8080/api/tasks/7/complete") {
		t.Errorf("actions = %q, missing complete url", actions)
	}
	if !strings.Contains(actions, "url=http://localhost:8080/api/tasks/7/snooze") {
		t.Errorf("actions = %q, missing snooze url", actions)
	}
	if got := rec.headers.Get("Priority"); got != "urgent" {
		t.Errorf("priority = %q, want urgent", got)
	}
	if !strings.Contains(rec.body, "Starting in 15 minutes at 03:00 PM") {
		t.Errorf("body = %q", rec.body)
	}
}

func TestSendTaskReminderDueNow(t *testing.T) {
	srv, rec := newTestGateway(t, http.StatusOK, `{"id":"x"}`)
	c := New(srv.URL, "alerts", "", nil, time.UTC)

	when := time.Date(2026, time.March, 2, 15, 0, 0, 0, time.UTC)
	task := &model.Task{Title: "tea", Priority: model.PriorityLow, ScheduledTime: &when}
	task.ID = 3

	if _, err := c.SendTaskReminder(context.Background(), task, 0); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(rec.body, "Scheduled for 03:00 PM") {
		t.Errorf("body = %q", rec.body)
	}
	if got := rec.headers.Get("Priority"); got != "default" {
		t.Errorf("priority = %q, want default", got)
	}
	if rec.headers.Get("Actions") != "" {
		t.Errorf("actions set without an api base url: %q", rec.headers.Get("Actions"))
	}
}
