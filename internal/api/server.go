package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/cors"

	"schedule-manager/internal/model"
	"schedule-manager/internal/repository"
	"schedule-manager/internal/service"
)

const snoozeDuration = 15 * time.Minute

// Server exposes the small HTTP surface backing notification action buttons
// plus a read-only task listing.
type Server struct {
	tasks *service.TaskService
	loc   *time.Location
	srv   *http.Server
}

func NewServer(addr string, tasks *service.TaskService, loc *time.Location) *Server {
	s := &Server{tasks: tasks, loc: loc}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	mux.HandleFunc("POST /api/tasks/{id}/complete", s.handleComplete)
	mux.HandleFunc("POST /api/tasks/{id}/snooze", s.handleSnooze)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           cors.Default().Handler(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start blocks serving requests until Shutdown.
func (s *Server) Start() error {
	log.Printf("[info] api listening on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListTasks returns tasks for one day, today by default. Pass
// ?day=YYYY-MM-DD for another day.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	day := time.Now().In(s.loc)
	if raw := r.URL.Query().Get("day"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	tasks, err := s.tasks.TasksForDay(r.Context(), day)
	if err != nil {
		log.Printf("api: list tasks: %v", err)
		writeError(w, http.StatusInternalServerError, "could not list tasks")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"day":   day.Format("2006-01-02"),
		"tasks": taskViews(tasks, s.loc),
	})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	task, err := s.tasks.CompleteTask(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		log.Printf("api: complete task %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "could not complete task")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "completed", "task": taskView(*task, s.loc)})
}

// handleSnooze pushes a task's scheduled time forward and regenerates its
// pending reminders.
func (s *Server) handleSnooze(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	task, err := s.tasks.GetTask(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		log.Printf("api: load task %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "could not load task")
		return
	}

	base := time.Now().In(s.loc)
	if task.ScheduledTime != nil && task.ScheduledTime.After(base) {
		base = *task.ScheduledTime
	}
	newTime := base.Add(snoozeDuration)

	task, err = s.tasks.RescheduleTask(r.Context(), id, newTime)
	if err != nil {
		log.Printf("api: snooze task %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "could not snooze task")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "snoozed", "task": taskView(*task, s.loc)})
}

type taskJSON struct {
	ID              uint     `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	ScheduledTime   string   `json:"scheduled_time,omitempty"`
	DurationMinutes int      `json:"duration_minutes"`
	Priority        string   `json:"priority"`
	Status          string   `json:"status"`
	Tags            []string `json:"tags,omitempty"`
}

func taskView(t model.Task, loc *time.Location) taskJSON {
	v := taskJSON{
		ID:              t.ID,
		Title:           t.Title,
		Description:     t.Description,
		DurationMinutes: t.DurationMinutes,
		Priority:        string(t.Priority),
		Status:          string(t.Status),
		Tags:            []string(t.Tags),
	}
	if t.ScheduledTime != nil {
		v.ScheduledTime = t.ScheduledTime.In(loc).Format(time.RFC3339)
	}
	return v
}

func taskViews(tasks []model.Task, loc *time.Location) []taskJSON {
	out := make([]taskJSON, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskView(t, loc))
	}
	return out
}

func pathID(r *http.Request) (uint, bool) {
	n, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
