package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/smith3v/word-sync/pkg/logger"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule reports whether schedule is a five-field cron expression.
func ValidateSchedule(schedule string) error {
	if _, err := cronParser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return nil
}

// Scheduler runs a push followed by a pull for one user on a cron schedule.
type Scheduler struct {
	engine   *Engine
	userID   string
	schedule string
	timeout  time.Duration

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.Mutex
	isRunning  bool
	isSyncing  bool
	cancelFunc context.CancelFunc
	baseCtx    context.Context
}

func NewScheduler(engine *Engine, userID, schedule string) *Scheduler {
	return &Scheduler{
		engine:   engine,
		userID:   userID,
		schedule: schedule,
		timeout:  10 * time.Minute,
		cron:     cron.New(cron.WithParser(cronParser)),
		baseCtx:  context.Background(),
	}
}

// Start registers the job and starts the cron loop. Cancelling ctx stops it.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}
	if err := ValidateSchedule(s.schedule); err != nil {
		return err
	}

	entryID, err := s.cron.AddFunc(s.schedule, func() {
		s.RunOnce()
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sync job: %w", err)
	}
	s.entryID = entryID

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)
	s.baseCtx = cancelCtx

	s.cron.Start()
	s.isRunning = true
	logger.Info("sync scheduler started", "schedule", s.schedule, "user_id", s.userID, "next_run", s.nextRunLocked())

	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()
	return nil
}

// Stop waits for a running job and stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	cancel := s.cancelFunc
	s.cancelFunc = nil
	s.cron.Remove(s.entryID)
	s.mu.Unlock()

	done := s.cron.Stop()
	<-done.Done()
	if cancel != nil {
		cancel()
	}
	logger.Info("sync scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// NextRun returns when the job fires next, or nil when stopped.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return nil
	}
	next := s.nextRunLocked()
	return &next
}

func (s *Scheduler) nextRunLocked() time.Time {
	return s.cron.Entry(s.entryID).Next
}

// RunOnce pushes and then pulls. It returns false without doing anything
// when a previous run is still in progress.
func (s *Scheduler) RunOnce() bool {
	s.mu.Lock()
	if s.isSyncing {
		s.mu.Unlock()
		logger.Info("sync skipped: previous run still in progress")
		return false
	}
	s.isSyncing = true
	base := s.baseCtx
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isSyncing = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(base, s.timeout)
	defer cancel()

	push := s.engine.PushLocalChanges(ctx)
	pull := s.engine.PullFromRemote(ctx, s.userID)
	if err := push.Err(); err != nil {
		logger.Warn("scheduled push had errors", "error", err)
	}
	if err := pull.Err(); err != nil {
		logger.Warn("scheduled pull had errors", "error", err)
	}
	return true
}
