package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"schedule-manager/internal/model"
	"schedule-manager/internal/repository"
)

// Monday morning reference instant.
var testNow = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

func testOffsets() map[model.Priority][]int {
	return map[model.Priority][]int{
		model.PriorityHigh:   {15, 5, 0},
		model.PriorityMedium: {0},
		model.PriorityLow:    {0},
	}
}

func newTestEnv(t *testing.T) (*TaskService, *repository.TaskRepository, *repository.NotificationRepository) {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "planner.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	tasks := repository.NewTaskRepository(db)
	events := repository.NewNotificationRepository(db)
	svc := NewTaskService(tasks, events, testOffsets(), 30, time.UTC)
	svc.SetClock(func() time.Time { return testNow })
	return svc, tasks, events
}

func TestCreateTaskHighPriorityReminders(t *testing.T) {
	svc, _, _ := newTestEnv(t)
	ctx := context.Background()

	when := testNow.Add(2 * time.Hour)
	task, err := svc.CreateTask(ctx, TaskInput{Title: "board meeting", ScheduledTime: &when, Priority: model.PriorityHigh})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	events, err := svc.EventsForTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	wantTimes := []time.Time{
		when.Add(-15 * time.Minute),
		when.Add(-5 * time.Minute),
		when,
	}
	for i, ev := range events {
		if !ev.NotificationTime.Equal(wantTimes[i]) {
			t.Errorf("event[%d] at %v, want %v", i, ev.NotificationTime, wantTimes[i])
		}
		if ev.Sent {
			t.Errorf("event[%d] created as sent", i)
		}
	}
}

func TestCreateTaskMediumSingleReminder(t *testing.T) {
	svc, _, _ := newTestEnv(t)
	ctx := context.Background()

	when := testNow.Add(time.Hour)
	task, err := svc.CreateTask(ctx, TaskInput{Title: "check mail", ScheduledTime: &when})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	events, err := svc.EventsForTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if !events[0].NotificationTime.Equal(when) {
		t.Errorf("event at %v, want %v", events[0].NotificationTime, when)
	}
}

func TestCreateTaskSkipsPastOffsets(t *testing.T) {
	svc, _, _ := newTestEnv(t)
	ctx := context.Background()

	// 10 minutes out: the 15-minute offset is already in the past.
	when := testNow.Add(10 * time.Minute)
	task, err := svc.CreateTask(ctx, TaskInput{Title: "standup", ScheduledTime: &when, Priority: model.PriorityHigh})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	events, err := svc.EventsForTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
}

func TestCreateTaskUnscheduledHasNoEvents(t *testing.T) {
	svc, _, _ := newTestEnv(t)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, TaskInput{Title: "someday: learn piano"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	events, err := svc.EventsForTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("got %d events, want 0", len(events))
	}
}

func TestRescheduleRegeneratesUnsentEvents(t *testing.T) {
	svc, _, eventRepo := newTestEnv(t)
	ctx := context.Background()

	when := testNow.Add(2 * time.Hour)
	task, err := svc.CreateTask(ctx, TaskInput{Title: "review", ScheduledTime: &when, Priority: model.PriorityHigh})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	events, err := svc.EventsForTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	// Simulate the earliest reminder having already gone out.
	if err := eventRepo.MarkSent(ctx, events[0].ID, "msg-1"); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	newTime := testNow.Add(4 * time.Hour)
	if _, err := svc.RescheduleTask(ctx, task.ID, newTime); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	events, err = svc.EventsForTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	var sent, unsent int
	for _, ev := range events {
		if ev.Sent {
			sent++
			continue
		}
		unsent++
		if ev.NotificationTime.Before(newTime.Add(-15 * time.Minute)) {
			t.Errorf("unsent event at %v predates the new schedule", ev.NotificationTime)
		}
	}
	if sent != 1 {
		t.Errorf("sent events = %d, want the delivered one preserved", sent)
	}
	if unsent != 3 {
		t.Errorf("unsent events = %d, want 3 regenerated", unsent)
	}
}

func TestCompleteTask(t *testing.T) {
	svc, taskRepo, _ := newTestEnv(t)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, TaskInput{Title: "water plants"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	done, err := svc.CompleteTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != model.StatusCompleted || done.CompletedAt == nil {
		t.Errorf("status = %s, completedAt = %v", done.Status, done.CompletedAt)
	}

	// Completing again is a no-op.
	again, err := svc.CompleteTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("complete twice: %v", err)
	}
	if !again.CompletedAt.Equal(*done.CompletedAt) {
		t.Errorf("second complete moved the timestamp")
	}

	// A cancelled task completes like a missing one.
	cancelled, err := svc.CreateTask(ctx, TaskInput{Title: "old errand"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	loaded, err := taskRepo.FindByID(ctx, cancelled.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	loaded.Status = model.StatusCancelled
	if err := taskRepo.Save(ctx, loaded); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := svc.CompleteTask(ctx, cancelled.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("complete cancelled: err = %v, want ErrNotFound", err)
	}
}

func TestCompleteMissingTask(t *testing.T) {
	svc, _, _ := newTestEnv(t)
	if _, err := svc.CompleteTask(context.Background(), 999); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteTaskCascadesToEvents(t *testing.T) {
	svc, _, _ := newTestEnv(t)
	ctx := context.Background()

	when := testNow.Add(time.Hour)
	task, err := svc.CreateTask(ctx, TaskInput{Title: "call bank", ScheduledTime: &when, Priority: model.PriorityHigh})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetTask(ctx, task.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("get deleted: err = %v, want ErrNotFound", err)
	}
	events, err := svc.EventsForTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d orphaned events, want 0", len(events))
	}

	if err := svc.DeleteTask(ctx, task.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("delete twice: err = %v, want ErrNotFound", err)
	}
}

func TestGenerateRecurringInstancesIdempotent(t *testing.T) {
	svc, _, _ := newTestEnv(t)
	ctx := context.Background()

	rule := &model.RecurrenceRule{Days: []string{"mon", "wed"}, Start: "14:00", End: "14:30"}
	tpl, err := svc.CreateRecurringTask(ctx, "team sync", "", rule, model.PriorityMedium, nil)
	if err != nil {
		t.Fatalf("create template: %v", err)
	}

	// testNow is a Monday.
	created, err := svc.GenerateRecurringInstances(ctx, testNow)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if created != 1 {
		t.Fatalf("created = %d, want 1", created)
	}

	created, err = svc.GenerateRecurringInstances(ctx, testNow)
	if err != nil {
		t.Fatalf("generate again: %v", err)
	}
	if created != 0 {
		t.Fatalf("second run created = %d, want 0", created)
	}

	// Tuesday is not in the rule.
	created, err = svc.GenerateRecurringInstances(ctx, testNow.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("generate tuesday: %v", err)
	}
	if created != 0 {
		t.Fatalf("tuesday created = %d, want 0", created)
	}

	day, err := svc.TasksForDay(ctx, testNow)
	if err != nil {
		t.Fatalf("tasks for day: %v", err)
	}
	if len(day) != 1 {
		t.Fatalf("got %d tasks for day, want 1", len(day))
	}
	instance := day[0]
	if instance.TemplateID == nil || *instance.TemplateID != tpl.ID {
		t.Errorf("instance template id = %v, want %d", instance.TemplateID, tpl.ID)
	}
	want := time.Date(2026, time.March, 2, 14, 0, 0, 0, time.UTC)
	if instance.ScheduledTime == nil || !instance.ScheduledTime.Equal(want) {
		t.Errorf("instance scheduled at %v, want %v", instance.ScheduledTime, want)
	}
	if instance.DurationMinutes != 30 {
		t.Errorf("instance duration = %d, want 30", instance.DurationMinutes)
	}
}

func TestTaskStorageRoundTrip(t *testing.T) {
	svc, _, _ := newTestEnv(t)
	ctx := context.Background()

	when := testNow.Add(3 * time.Hour)
	created, err := svc.CreateTask(ctx, TaskInput{
		Title:           "quarterly report",
		Description:     "numbers for Q1",
		ScheduledTime:   &when,
		DurationMinutes: 90,
		Priority:        model.PriorityHigh,
		Tags:            []string{"work", "finance"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.GetTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "quarterly report" || got.Description != "numbers for Q1" {
		t.Errorf("text fields = %q / %q", got.Title, got.Description)
	}
	if got.ScheduledTime == nil || !got.ScheduledTime.Equal(when) {
		t.Errorf("scheduled = %v, want %v", got.ScheduledTime, when)
	}
	if got.DurationMinutes != 90 {
		t.Errorf("duration = %d, want 90", got.DurationMinutes)
	}
	if got.Priority != model.PriorityHigh {
		t.Errorf("priority = %s, want high", got.Priority)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "work" || got.Tags[1] != "finance" {
		t.Errorf("tags = %v", got.Tags)
	}
}

func TestUpcomingWindow(t *testing.T) {
	svc, _, _ := newTestEnv(t)
	ctx := context.Background()

	soon := testNow.Add(2 * time.Hour)
	later := testNow.Add(30 * time.Hour)
	if _, err := svc.CreateTask(ctx, TaskInput{Title: "soon", ScheduledTime: &soon}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.CreateTask(ctx, TaskInput{Title: "later", ScheduledTime: &later}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.Upcoming(ctx, 4)
	if err != nil {
		t.Fatalf("upcoming: %v", err)
	}
	if len(got) != 1 || got[0].Title != "soon" {
		t.Fatalf("upcoming = %v", got)
	}
}
