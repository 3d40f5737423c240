package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"schedule-manager/internal/model"
	"schedule-manager/internal/repository"
)

// TaskInput represents data required to create a task.
type TaskInput struct {
	Title           string
	Description     string
	ScheduledTime   *time.Time
	DurationMinutes int
	Priority        model.Priority
	Tags            []string

	// Set when the task is a generated instance of a recurring template.
	TemplateID   *uint
	InstanceDate string
}

// UpdatePatch carries partial task changes. Nil fields are left untouched.
type UpdatePatch struct {
	Title           *string
	Description     *string
	ScheduledTime   *time.Time
	DurationMinutes *int
	Priority        *model.Priority
	Tags            *[]string
}

// TaskService wraps task business logic: CRUD plus the notification-event
// invariants (priority-derived reminder offsets, regeneration on reschedule,
// idempotent recurring generation).
type TaskService struct {
	tasks           *repository.TaskRepository
	events          *repository.NotificationRepository
	offsets         map[model.Priority][]int
	defaultDuration int
	loc             *time.Location
	now             func() time.Time
}

func NewTaskService(
	tasks *repository.TaskRepository,
	events *repository.NotificationRepository,
	offsets map[model.Priority][]int,
	defaultDuration int,
	loc *time.Location,
) *TaskService {
	if defaultDuration <= 0 {
		defaultDuration = 30
	}
	return &TaskService{
		tasks:           tasks,
		events:          events,
		offsets:         offsets,
		defaultDuration: defaultDuration,
		loc:             loc,
		now:             time.Now,
	}
}

// SetClock overrides the service clock, for tests.
func (s *TaskService) SetClock(now func() time.Time) {
	s.now = now
}

// CreateTask stores a task and, when it has a scheduled time, synthesizes
// its reminder events from the priority offset table.
func (s *TaskService) CreateTask(ctx context.Context, in TaskInput) (*model.Task, error) {
	if in.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if in.DurationMinutes <= 0 {
		in.DurationMinutes = s.defaultDuration
	}

	task := model.Task{
		Title:           in.Title,
		Description:     in.Description,
		ScheduledTime:   in.ScheduledTime,
		DurationMinutes: in.DurationMinutes,
		Priority:        model.ParsePriority(string(in.Priority)),
		Status:          model.StatusPending,
		Tags:            model.Tags(in.Tags),
		TemplateID:      in.TemplateID,
		InstanceDate:    in.InstanceDate,
	}

	if err := s.tasks.Create(ctx, &task); err != nil {
		return nil, err
	}

	if task.ScheduledTime != nil {
		if err := s.scheduleReminders(ctx, &task); err != nil {
			return nil, err
		}
	}
	return &task, nil
}

// CreateRecurringTask stores a recurring template. Templates never appear in
// day views and carry no events themselves; the daily generation step
// materializes concrete instances.
func (s *TaskService) CreateRecurringTask(ctx context.Context, title, description string, rule *model.RecurrenceRule, priority model.Priority, tags []string) (*model.Task, error) {
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	duration := rule.DurationMinutes()
	if duration <= 0 {
		duration = s.defaultDuration
	}
	task := model.Task{
		Title:           title,
		Description:     description,
		DurationMinutes: duration,
		Priority:        model.ParsePriority(string(priority)),
		Status:          model.StatusPending,
		Tags:            model.Tags(tags),
		IsRecurring:     true,
		RecurrenceRule:  rule,
	}
	if err := s.tasks.Create(ctx, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// GenerateRecurringInstances creates a concrete task (with events) for each
// active template whose rule fires on forDate. Idempotent: a second call for
// the same date creates nothing, keyed by template id + date. Per-template
// failures are isolated.
func (s *TaskService) GenerateRecurringInstances(ctx context.Context, forDate time.Time) (int, error) {
	templates, err := s.tasks.Templates(ctx)
	if err != nil {
		return 0, err
	}

	forDate = forDate.In(s.loc)
	dateKey := forDate.Format("2006-01-02")
	created := 0

	for i := range templates {
		tpl := &templates[i]
		rule := tpl.RecurrenceRule
		if rule == nil || !rule.OccursOn(forDate) {
			continue
		}
		hour, minute, ok := rule.StartClock()
		if !ok {
			// A template without a start time has nothing to materialize.
			continue
		}

		exists, err := s.tasks.InstanceExists(ctx, tpl.ID, dateKey)
		if err != nil {
			log.Printf("recurring: check %q for %s: %v", tpl.Title, dateKey, err)
			continue
		}
		if exists {
			continue
		}

		when := time.Date(forDate.Year(), forDate.Month(), forDate.Day(), hour, minute, 0, 0, s.loc)
		tplID := tpl.ID
		_, err = s.CreateTask(ctx, TaskInput{
			Title:           tpl.Title,
			Description:     tpl.Description,
			ScheduledTime:   &when,
			DurationMinutes: tpl.DurationMinutes,
			Priority:        tpl.Priority,
			Tags:            []string(tpl.Tags),
			TemplateID:      &tplID,
			InstanceDate:    dateKey,
		})
		if err != nil {
			log.Printf("recurring: create %q for %s: %v", tpl.Title, dateKey, err)
			continue
		}
		created++
	}
	return created, nil
}

// UpdateTask applies partial changes. A scheduled-time change discards the
// task's unsent events and regenerates them from the new time; sent events
// are untouched.
func (s *TaskService) UpdateTask(ctx context.Context, id uint, patch UpdatePatch) (*model.Task, error) {
	task, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	timeChanged := false
	if patch.ScheduledTime != nil && (task.ScheduledTime == nil || !task.ScheduledTime.Equal(*patch.ScheduledTime)) {
		task.ScheduledTime = patch.ScheduledTime
		timeChanged = true
	}
	if patch.Title != nil {
		task.Title = *patch.Title
	}
	if patch.Description != nil {
		task.Description = *patch.Description
	}
	if patch.DurationMinutes != nil && *patch.DurationMinutes > 0 {
		task.DurationMinutes = *patch.DurationMinutes
	}
	if patch.Priority != nil {
		task.Priority = model.ParsePriority(string(*patch.Priority))
	}
	if patch.Tags != nil {
		task.Tags = model.Tags(*patch.Tags)
	}

	if err := s.tasks.Save(ctx, task); err != nil {
		return nil, err
	}

	if timeChanged {
		if err := s.events.DeleteUnsentForTask(ctx, task.ID); err != nil {
			return nil, err
		}
		if err := s.scheduleReminders(ctx, task); err != nil {
			return nil, err
		}
	}
	return task, nil
}

// RescheduleTask is UpdateTask restricted to the scheduled time.
func (s *TaskService) RescheduleTask(ctx context.Context, id uint, newTime time.Time) (*model.Task, error) {
	return s.UpdateTask(ctx, id, UpdatePatch{ScheduledTime: &newTime})
}

// CompleteTask marks a task done. Completing an already-completed task is a
// no-op; its leftover unsent reminders are harmless because delivery skips
// non-pending tasks.
func (s *TaskService) CompleteTask(ctx context.Context, id uint) (*model.Task, error) {
	task, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status == model.StatusCompleted {
		return task, nil
	}
	if task.Status == model.StatusCancelled {
		return nil, fmt.Errorf("task %d: %w", id, repository.ErrNotFound)
	}

	now := s.now().In(s.loc)
	task.Status = model.StatusCompleted
	task.CompletedAt = &now
	if err := s.tasks.Save(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// DeleteTask removes a task and its notification events.
func (s *TaskService) DeleteTask(ctx context.Context, id uint) error {
	return s.tasks.Delete(ctx, id)
}

func (s *TaskService) GetTask(ctx context.Context, id uint) (*model.Task, error) {
	return s.tasks.FindByID(ctx, id)
}

// TasksBetween returns tasks scheduled in [start, end). Without an explicit
// status filter, cancelled tasks are excluded.
func (s *TaskService) TasksBetween(ctx context.Context, start, end time.Time, statuses ...model.Status) ([]model.Task, error) {
	if len(statuses) == 0 {
		statuses = []model.Status{model.StatusPending, model.StatusCompleted}
	}
	return s.tasks.Between(ctx, start, end, statuses)
}

// TasksForDay returns the day's pending tasks, ordered by time.
func (s *TaskService) TasksForDay(ctx context.Context, day time.Time) ([]model.Task, error) {
	day = day.In(s.loc)
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.loc)
	return s.TasksBetween(ctx, start, start.AddDate(0, 0, 1), model.StatusPending)
}

// Upcoming returns pending tasks due within the next hoursAhead hours.
func (s *TaskService) Upcoming(ctx context.Context, hoursAhead int) ([]model.Task, error) {
	now := s.now().In(s.loc)
	return s.TasksBetween(ctx, now, now.Add(time.Duration(hoursAhead)*time.Hour), model.StatusPending)
}

// EventsForTask exposes a task's notification events.
func (s *TaskService) EventsForTask(ctx context.Context, taskID uint) ([]model.NotificationEvent, error) {
	return s.events.ForTask(ctx, taskID)
}

// scheduleReminders creates the reminder events the priority offset table
// prescribes, skipping moments that are already in the past.
func (s *TaskService) scheduleReminders(ctx context.Context, task *model.Task) error {
	if task.ScheduledTime == nil {
		return nil
	}
	offsets, ok := s.offsets[task.Priority]
	if !ok {
		offsets = s.offsets[model.PriorityMedium]
	}
	now := s.now()
	for _, minutesBefore := range offsets {
		at := task.ScheduledTime.Add(-time.Duration(minutesBefore) * time.Minute)
		if !at.After(now) {
			continue
		}
		event := model.NotificationEvent{
			TaskID:           task.ID,
			NotificationTime: at,
			NotificationType: model.NotificationReminder,
		}
		if err := s.events.Create(ctx, &event); err != nil {
			return err
		}
	}
	return nil
}
