package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/deusflow/topicnews/internal/article"
)

// Refresher runs one full refresh of every category.
type Refresher interface {
	RefreshAll(ctx context.Context) (map[string][]article.Article, error)
}

type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	logger    *slog.Logger

	mu  sync.Mutex
	ctx context.Context
	wg  sync.WaitGroup
}

// New schedules a full refresh every interval.
func New(interval time.Duration, refresher Refresher, logger *slog.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("invalid refresh interval %s", interval)
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	s := &Scheduler{
		cron:      c,
		refresher: refresher,
		logger:    logger,
		ctx:       context.Background(),
	}

	if _, err := c.AddFunc("@every "+interval.String(), s.runOnce); err != nil {
		return nil, fmt.Errorf("schedule refresh: %w", err)
	}
	return s, nil
}

// Start runs the first refresh immediately and then starts the cron loop.
// Jobs inherit ctx, so canceling it aborts any refresh in flight.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runOnce()
	}()
}

// RunOnce triggers a full refresh synchronously.
func (s *Scheduler) RunOnce() {
	s.runOnce()
}

// Stop halts the cron loop and waits for the startup refresh and any running
// job to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

func (s *Scheduler) runOnce() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	s.logger.Info("scheduled refresh started")
	sections, err := s.refresher.RefreshAll(ctx)
	if err != nil {
		s.logger.Warn("scheduled refresh failed", "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Info("scheduled refresh done", "sections", len(sections), "duration", time.Since(start))
}
