package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one periodic daemon task. The context carries the per-run deadline.
type Job func(ctx context.Context)

// SchedulerService runs the daemon's periodic jobs on a single cron instance:
// the delivery scan, the daily summary, the upcoming digest, recurring
// generation and housekeeping checks. Every job runs under a bounded context
// and a recovered panic is logged rather than taking the daemon down.
type SchedulerService struct {
	cron       *cron.Cron
	jobTimeout time.Duration
}

func NewSchedulerService(loc *time.Location, jobTimeout time.Duration) *SchedulerService {
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Second
	}
	return &SchedulerService{
		cron:       cron.New(cron.WithLocation(loc), cron.WithSeconds()),
		jobTimeout: jobTimeout,
	}
}

// ScheduleDaily registers a job that fires once a day at HH:MM.
func (s *SchedulerService) ScheduleDaily(name, at string, job Job) error {
	var hour, minute int
	if _, err := fmt.Sscanf(at, "%d:%d", &hour, &minute); err != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return fmt.Errorf("job %s: invalid time %q, expected HH:MM", name, at)
	}
	spec := fmt.Sprintf("0 %d %d * * *", minute, hour)
	if _, err := s.cron.AddFunc(spec, s.wrap(name, job)); err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	return nil
}

// ScheduleInterval registers a job that fires every interval.
func (s *SchedulerService) ScheduleInterval(name string, interval time.Duration, job Job) error {
	if interval < time.Second {
		return fmt.Errorf("job %s: interval %s too short", name, interval)
	}
	spec := fmt.Sprintf("@every %ds", int(interval.Seconds()))
	if _, err := s.cron.AddFunc(spec, s.wrap(name, job)); err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	return nil
}

func (s *SchedulerService) wrap(name string, job Job) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("job %s: panic: %v", name, r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
		defer cancel()
		job(ctx)
	}
}

func (s *SchedulerService) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for in-flight jobs to finish.
func (s *SchedulerService) Stop() {
	<-s.cron.Stop().Done()
}
