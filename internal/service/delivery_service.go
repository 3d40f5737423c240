package service

import (
	"context"
	"errors"
	"log"
	"time"

	"schedule-manager/internal/model"
	"schedule-manager/internal/repository"
)

// ReminderSender delivers a single task reminder through the gateway and
// returns its delivery identifier.
type ReminderSender interface {
	SendTaskReminder(ctx context.Context, task *model.Task, minutesBefore int) (string, error)
}

// DeliveryService is the notification scan: it finds unsent due events,
// delivers them oldest-first, and marks each sent only on confirmed delivery.
// Events whose task is no longer pending are marked sent without delivering,
// so a handled task never produces a stale reminder.
type DeliveryService struct {
	tasks  *repository.TaskRepository
	events *repository.NotificationRepository
	sender ReminderSender
	now    func() time.Time
}

func NewDeliveryService(tasks *repository.TaskRepository, events *repository.NotificationRepository, sender ReminderSender) *DeliveryService {
	return &DeliveryService{tasks: tasks, events: events, sender: sender, now: time.Now}
}

// SetClock overrides the service clock, for tests.
func (s *DeliveryService) SetClock(now func() time.Time) {
	s.now = now
}

// DeliverDue runs one scan. A failed delivery leaves its event unsent so the
// next scan retries it, and never blocks the remaining events in the scan.
func (s *DeliveryService) DeliverDue(ctx context.Context) (sent, failed int) {
	now := s.now()
	due, err := s.events.DueUnsent(ctx, now)
	if err != nil {
		log.Printf("delivery: list due events: %v", err)
		return 0, 0
	}

	for _, event := range due {
		task, err := s.tasks.FindByID(ctx, event.TaskID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				// Orphaned event; retiring it stops pointless retries.
				if err := s.events.MarkSent(ctx, event.ID, ""); err != nil {
					log.Printf("delivery: retire orphan event %d: %v", event.ID, err)
				}
				continue
			}
			log.Printf("delivery: load task %d: %v", event.TaskID, err)
			failed++
			continue
		}

		if task.Status != model.StatusPending {
			if err := s.events.MarkSent(ctx, event.ID, ""); err != nil {
				log.Printf("delivery: suppress event %d: %v", event.ID, err)
			}
			continue
		}

		minutesBefore := 0
		if task.ScheduledTime != nil {
			minutesBefore = int(task.ScheduledTime.Sub(event.NotificationTime).Minutes())
		}

		messageID, err := s.sender.SendTaskReminder(ctx, task, minutesBefore)
		if err != nil {
			log.Printf("delivery: send reminder for task %d: %v", task.ID, err)
			failed++
			continue
		}
		if err := s.events.MarkSent(ctx, event.ID, messageID); err != nil {
			log.Printf("delivery: mark event %d sent: %v", event.ID, err)
			failed++
			continue
		}
		sent++
	}
	return sent, failed
}
