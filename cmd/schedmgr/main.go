package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"schedule-manager/internal/agent"
	"schedule-manager/internal/api"
	"schedule-manager/internal/command"
	"schedule-manager/internal/config"
	"schedule-manager/internal/ipmon"
	"schedule-manager/internal/listener"
	"schedule-manager/internal/nlp"
	"schedule-manager/internal/notify"
	"schedule-manager/internal/repository"
	"schedule-manager/internal/service"
)

const jobTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := repository.NewDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	taskRepo := repository.NewTaskRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	ipRepo := repository.NewIPRepository(db)

	parser := nlp.NewParser(cfg.Location, nlp.Defaults{
		TimeOfDay:       cfg.DefaultTimeOfDay,
		DurationMinutes: cfg.DefaultDurationMinutes,
		Morning:         cfg.MorningTime,
		Afternoon:       cfg.AfternoonTime,
		Evening:         cfg.EveningTime,
	})

	taskSvc := service.NewTaskService(taskRepo, notificationRepo, cfg.ReminderOffsets, cfg.DefaultDurationMinutes, cfg.Location)
	digestSvc := service.NewDigestService(cfg.Location, cfg.WorkHoursStart, cfg.WorkHoursEnd, cfg.WorkdayMinutes)

	gateway := notify.New(cfg.NtfyServer, cfg.NtfyTopic, cfg.APIBaseURL, notify.DefaultPriorities(), cfg.Location)
	deliverySvc := service.NewDeliveryService(taskRepo, notificationRepo, gateway)

	var assistant command.Assistant
	if ai := agent.New(cfg.AgentAPIKey, cfg.AgentBaseURL, cfg.AgentModel, cfg.AgentTimeout); ai != nil {
		assistant = ai
		log.Printf("[info] assistant enabled (model %s)", cfg.AgentModel)
	}

	processor := command.NewProcessor(taskSvc, digestSvc, parser, assistant, cfg.Location, cfg.UpcomingHoursAhead, cfg.CommandRateLimit)

	commands := listener.New(cfg.NtfyServer, cfg.NtfyCommandTopic, func(message string, meta listener.Meta) {
		cmdCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		resp := processor.Handle(cmdCtx, message, meta.Title)
		if _, err := gateway.SendCommandReply(cmdCtx, resp.Text); err != nil {
			log.Printf("command reply: %v", err)
		}
	})
	go commands.Run(ctx)

	apiSrv := api.NewServer(cfg.APIAddr, taskSvc, cfg.Location)
	go func() {
		if err := apiSrv.Start(); err != nil {
			log.Printf("api: %v", err)
		}
	}()

	scheduler := service.NewSchedulerService(cfg.Location, jobTimeout)

	mustSchedule := func(err error) {
		if err != nil {
			log.Fatalf("scheduler: %v", err)
		}
	}

	mustSchedule(scheduler.ScheduleInterval("delivery-scan", time.Minute, func(jobCtx context.Context) {
		if sent, failed := deliverySvc.DeliverDue(jobCtx); sent > 0 || failed > 0 {
			log.Printf("[info] delivery scan: %d sent, %d failed", sent, failed)
		}
	}))

	mustSchedule(scheduler.ScheduleDaily("daily-summary", cfg.DailySummaryTime, func(jobCtx context.Context) {
		day := time.Now().In(cfg.Location)
		tasks, err := taskSvc.TasksForDay(jobCtx, day)
		if err != nil {
			log.Printf("daily summary: %v", err)
			return
		}
		if _, err := gateway.SendDailySummary(jobCtx, day, digestSvc.DailySummary(day, tasks)); err != nil {
			log.Printf("daily summary: %v", err)
		}
	}))

	if cfg.UpcomingInterval > 0 {
		mustSchedule(scheduler.ScheduleInterval("upcoming-digest", cfg.UpcomingInterval, func(jobCtx context.Context) {
			now := time.Now().In(cfg.Location)
			if !digestSvc.WithinWorkHours(now) {
				return
			}
			tasks, err := taskSvc.Upcoming(jobCtx, cfg.UpcomingHoursAhead)
			if err != nil {
				log.Printf("upcoming digest: %v", err)
				return
			}
			// Nothing due means no interruption.
			if len(tasks) == 0 {
				return
			}
			digest := digestSvc.UpcomingDigest(now, cfg.UpcomingHoursAhead, tasks)
			if _, err := gateway.SendUpcomingSummary(jobCtx, cfg.UpcomingHoursAhead, digest); err != nil {
				log.Printf("upcoming digest: %v", err)
			}
		}))
	}

	mustSchedule(scheduler.ScheduleDaily("recurring-generation", "00:05", func(jobCtx context.Context) {
		created, err := taskSvc.GenerateRecurringInstances(jobCtx, time.Now().In(cfg.Location))
		if err != nil {
			log.Printf("recurring generation: %v", err)
			return
		}
		if created > 0 {
			log.Printf("[info] generated %d recurring task(s)", created)
		}
	}))

	if cfg.IPCheckEnabled {
		monitor := ipmon.New(ipRepo, gateway)
		mustSchedule(scheduler.ScheduleInterval("ip-check", 5*time.Minute, func(jobCtx context.Context) {
			if err := monitor.Check(jobCtx); err != nil {
				log.Printf("ip check: %v", err)
			}
		}))
	}

	// Catch up on instances for today in case the daemon was down at 00:05.
	startupCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	if created, err := taskSvc.GenerateRecurringInstances(startupCtx, time.Now().In(cfg.Location)); err != nil {
		log.Printf("startup recurring generation: %v", err)
	} else if created > 0 {
		log.Printf("[info] generated %d recurring task(s) at startup", created)
	}
	cancel()

	scheduler.Start()
	defer scheduler.Stop()

	log.Println("Schedule manager started.")
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("api shutdown: %v", err)
	}
	log.Println("Shutdown complete.")
}
