package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"schedule-manager/internal/model"
)

// TaskRepository handles CRUD for tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, id uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("find task: %w", err)
	}
	return &task, nil
}

func (r *TaskRepository) Save(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// Delete removes a task and cascades to its notification events.
func (r *TaskRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", id).Delete(&model.NotificationEvent{}).Error; err != nil {
			return fmt.Errorf("delete task events: %w", err)
		}
		res := tx.Delete(&model.Task{}, id)
		if res.Error != nil {
			return fmt.Errorf("delete task: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("task %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

// Between returns non-template tasks scheduled in [start, end), ordered by
// scheduled time ascending. An empty status list means any status.
func (r *TaskRepository) Between(ctx context.Context, start, end time.Time, statuses []model.Status) ([]model.Task, error) {
	q := r.db.WithContext(ctx).
		Where("is_recurring = ?", false).
		Where("scheduled_time >= ? AND scheduled_time < ?", start, end)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var tasks []model.Task
	if err := q.Order("scheduled_time ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Templates returns active recurring template tasks.
func (r *TaskRepository) Templates(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("is_recurring = ? AND status = ?", true, model.StatusPending).
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return tasks, nil
}

// InstanceExists reports whether a concrete instance was already generated
// for the template on the given date (YYYY-MM-DD).
func (r *TaskRepository) InstanceExists(ctx context.Context, templateID uint, date string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("template_id = ? AND instance_date = ?", templateID, date).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("check instance: %w", err)
	}
	return count > 0, nil
}
