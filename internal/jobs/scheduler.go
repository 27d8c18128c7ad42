package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"
)

// Task is one unit of scheduled work. Errors are logged, not fatal; the next
// scheduled run still happens.
type Task func(ctx context.Context) error

// Scheduler runs maintenance jobs on cron schedules. All schedules are
// evaluated in UTC.
type Scheduler struct {
	scheduler gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewScheduler creates a stopped scheduler.
func NewScheduler() (*Scheduler, error) {
	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{scheduler: scheduler, ctx: ctx, cancel: cancel}, nil
}

// RegisterCron schedules task under a standard 5-field cron expression. An
// invalid expression is logged and skipped so one bad schedule never takes
// the server down.
func (s *Scheduler) RegisterCron(name, expr string, task Task) {
	if _, err := cron.ParseStandard(expr); err != nil {
		log.Printf("⚠️ [SCHEDULER] Skipping job %s: invalid schedule %q: %v", name, expr, err)
		return
	}

	_, err := s.scheduler.NewJob(
		gocron.CronJob(expr, false),
		gocron.NewTask(func() {
			start := time.Now()
			if err := task(s.ctx); err != nil {
				log.Printf("⚠️ [SCHEDULER] Job %s failed after %s: %v", name, time.Since(start).Round(time.Millisecond), err)
				return
			}
			log.Printf("✅ [SCHEDULER] Job %s completed in %s", name, time.Since(start).Round(time.Millisecond))
		}),
		gocron.WithName(name),
	)
	if err != nil {
		log.Printf("⚠️ [SCHEDULER] Failed to register job %s: %v", name, err)
		return
	}
	log.Printf("✅ [SCHEDULER] Registered job %s (%s)", name, expr)
}

// Start begins running all registered jobs.
func (s *Scheduler) Start() {
	s.scheduler.Start()
	log.Printf("🚀 [SCHEDULER] Started with %d jobs", len(s.scheduler.Jobs()))
}

// Stop cancels running tasks and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	s.cancel()
	return s.scheduler.Shutdown()
}
