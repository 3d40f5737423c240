package repository

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"schedule-manager/internal/model"
)

// ErrNotFound is reported when an operation references a task or event that
// does not exist. Callers translate it into a user-facing message.
var ErrNotFound = errors.New("repository: not found")

// NewDB opens the SQLite store and migrates the task, notification event and
// IP history tables. The daemon refuses to start when this fails.
func NewDB(path string) (*gorm.DB, error) {
	if path == "" {
		path = "schedule_manager.db"
	}
	if !strings.Contains(path, ":memory:") && !strings.Contains(path, "mode=memory") {
		if dir := filepath.Dir(strings.SplitN(strings.TrimPrefix(path, "file:"), "?", 2)[0]); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir %q: %w", dir, err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.New(log.New(os.Stderr, "", log.LstdFlags), logger.Config{
			SlowThreshold: 500 * time.Millisecond,
			LogLevel:      logger.Warn,
			// FindByID probes for missing tasks are expected during delivery.
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open db %q: %w", path, err)
	}

	if err := db.AutoMigrate(&model.Task{}, &model.NotificationEvent{}, &model.IPRecord{}); err != nil {
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	return db, nil
}
