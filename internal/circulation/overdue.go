package circulation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Promoter runs one overdue sweep.
type Promoter interface {
	PromoteOverdue(ctx context.Context) (PromotionResult, error)
}

// Sweeper runs overdue promotion on a cron schedule so reads do not have to.
type Sweeper struct {
	promoter Promoter
	schedule string
	timeout  time.Duration
	log      logrus.FieldLogger

	cron      *cron.Cron
	entryID   cron.EntryID
	mu        sync.Mutex
	isRunning bool
}

// NewSweeper validates schedule and prepares a stopped sweeper.
func NewSweeper(p Promoter, schedule string, log logrus.FieldLogger) (*Sweeper, error) {
	s := &Sweeper{
		promoter: p,
		schedule: schedule,
		timeout:  30 * time.Second,
		log:      log.WithField("component", "overdue_sweeper"),
		cron:     cron.New(),
	}
	id, err := s.cron.AddFunc(schedule, s.RunNow)
	if err != nil {
		return nil, fmt.Errorf("invalid overdue sweep schedule %q: %w", schedule, err)
	}
	s.entryID = id
	return s, nil
}

// Start runs one sweep right away and then follows the schedule until ctx
// is done or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.cron.Start()
	s.mu.Unlock()

	go s.RunNow()
	s.log.WithFields(logrus.Fields{"schedule": s.schedule, "next_run": s.NextRun()}).Info("overdue sweeper started")

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return
	}
	<-s.cron.Stop().Done()
	s.isRunning = false
	s.log.Info("overdue sweeper stopped")
}

// NextRun reports the next scheduled sweep, or nil when stopped.
func (s *Sweeper) NextRun() *time.Time {
	for _, e := range s.cron.Entries() {
		if e.ID == s.entryID && !e.Next.IsZero() {
			t := e.Next
			return &t
		}
	}
	return nil
}

// RunNow performs one sweep. Errors are logged, never returned.
func (s *Sweeper) RunNow() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	started := time.Now()
	res, err := s.promoter.PromoteOverdue(ctx)
	if err != nil {
		s.log.WithError(err).Warn("overdue sweep failed")
		return
	}
	s.log.WithFields(logrus.Fields{
		"rentals":  res.Rentals,
		"items":    res.Items,
		"duration": time.Since(started).Round(time.Millisecond),
	}).Debug("overdue sweep finished")
}
