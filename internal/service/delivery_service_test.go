package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"schedule-manager/internal/model"
)

type fakeCall struct {
	taskID        uint
	minutesBefore int
}

type fakeSender struct {
	mu    sync.Mutex
	calls []fakeCall
	fail  map[uint]bool
}

func (f *fakeSender) SendTaskReminder(_ context.Context, task *model.Task, minutesBefore int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[task.ID] {
		return "", fmt.Errorf("gateway down")
	}
	f.calls = append(f.calls, fakeCall{taskID: task.ID, minutesBefore: minutesBefore})
	return fmt.Sprintf("msg-%d", len(f.calls)), nil
}

func newDeliveryEnv(t *testing.T) (*TaskService, *DeliveryService, *fakeSender) {
	t.Helper()
	svc, taskRepo, eventRepo := newTestEnv(t)
	sender := &fakeSender{fail: map[uint]bool{}}
	delivery := NewDeliveryService(taskRepo, eventRepo, sender)
	return svc, delivery, sender
}

func TestDeliverDueMarksSent(t *testing.T) {
	svc, delivery, sender := newDeliveryEnv(t)
	ctx := context.Background()

	when := testNow.Add(30 * time.Minute)
	task, err := svc.CreateTask(ctx, TaskInput{Title: "tea", ScheduledTime: &when})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	delivery.SetClock(func() time.Time { return testNow.Add(31 * time.Minute) })
	sent, failed := delivery.DeliverDue(ctx)
	if sent != 1 || failed != 0 {
		t.Fatalf("sent=%d failed=%d, want 1/0", sent, failed)
	}
	if len(sender.calls) != 1 || sender.calls[0].taskID != task.ID {
		t.Fatalf("calls = %v", sender.calls)
	}

	events, err := svc.EventsForTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 || !events[0].Sent || events[0].GatewayMessageID != "msg-1" {
		t.Errorf("event = %+v, want sent with gateway id", events[0])
	}

	// A second scan has nothing left.
	if sent, failed = delivery.DeliverDue(ctx); sent != 0 || failed != 0 {
		t.Errorf("rescan sent=%d failed=%d, want 0/0", sent, failed)
	}
}

func TestDeliverDueReportsMinutesBefore(t *testing.T) {
	svc, delivery, sender := newDeliveryEnv(t)
	ctx := context.Background()

	when := testNow.Add(20 * time.Minute)
	if _, err := svc.CreateTask(ctx, TaskInput{Title: "meeting", ScheduledTime: &when, Priority: model.PriorityHigh}); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Only the 15-minutes-before event is due.
	delivery.SetClock(func() time.Time { return testNow.Add(6 * time.Minute) })
	sent, failed := delivery.DeliverDue(ctx)
	if sent != 1 || failed != 0 {
		t.Fatalf("sent=%d failed=%d, want 1/0", sent, failed)
	}
	if len(sender.calls) != 1 || sender.calls[0].minutesBefore != 15 {
		t.Fatalf("calls = %v, want one call 15 minutes before", sender.calls)
	}
}

func TestDeliverDueFailureDoesNotBlockOthers(t *testing.T) {
	svc, delivery, sender := newDeliveryEnv(t)
	ctx := context.Background()

	first := testNow.Add(10 * time.Minute)
	second := testNow.Add(20 * time.Minute)
	taskA, err := svc.CreateTask(ctx, TaskInput{Title: "flaky", ScheduledTime: &first})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	taskB, err := svc.CreateTask(ctx, TaskInput{Title: "fine", ScheduledTime: &second})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sender.fail[taskA.ID] = true

	delivery.SetClock(func() time.Time { return testNow.Add(30 * time.Minute) })
	sent, failed := delivery.DeliverDue(ctx)
	if sent != 1 || failed != 1 {
		t.Fatalf("sent=%d failed=%d, want 1/1", sent, failed)
	}
	if len(sender.calls) != 1 || sender.calls[0].taskID != taskB.ID {
		t.Fatalf("calls = %v, want only the healthy task", sender.calls)
	}

	// The failed event stays unsent for the next scan.
	events, err := svc.EventsForTask(ctx, taskA.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 || events[0].Sent {
		t.Errorf("failed event = %+v, want still unsent", events[0])
	}
}

func TestDeliverDueSuppressesHandledTasks(t *testing.T) {
	svc, delivery, sender := newDeliveryEnv(t)
	ctx := context.Background()

	when := testNow.Add(15 * time.Minute)
	task, err := svc.CreateTask(ctx, TaskInput{Title: "done early", ScheduledTime: &when})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.CompleteTask(ctx, task.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	delivery.SetClock(func() time.Time { return testNow.Add(16 * time.Minute) })
	sent, failed := delivery.DeliverDue(ctx)
	if sent != 0 || failed != 0 {
		t.Fatalf("sent=%d failed=%d, want 0/0", sent, failed)
	}
	if len(sender.calls) != 0 {
		t.Fatalf("calls = %v, want none for a completed task", sender.calls)
	}

	// The event is retired, not left to retry.
	events, err := svc.EventsForTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 || !events[0].Sent {
		t.Errorf("event = %+v, want marked sent without delivery", events[0])
	}
}

func TestDeliverDueRetiresOrphanEvents(t *testing.T) {
	_, taskRepo, eventRepo := newTestEnv(t)
	sender := &fakeSender{fail: map[uint]bool{}}
	delivery := NewDeliveryService(taskRepo, eventRepo, sender)
	ctx := context.Background()

	orphan := model.NotificationEvent{TaskID: 4242, NotificationTime: testNow.Add(-time.Minute)}
	if err := eventRepo.Create(ctx, &orphan); err != nil {
		t.Fatalf("create orphan: %v", err)
	}

	delivery.SetClock(func() time.Time { return testNow })
	sent, failed := delivery.DeliverDue(ctx)
	if sent != 0 || failed != 0 {
		t.Fatalf("sent=%d failed=%d, want 0/0", sent, failed)
	}
	if len(sender.calls) != 0 {
		t.Fatalf("calls = %v, want none", sender.calls)
	}
	events, err := eventRepo.ForTask(ctx, 4242)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 || !events[0].Sent {
		t.Errorf("orphan = %+v, want retired", events[0])
	}
}
