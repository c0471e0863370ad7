// Package scheduler runs fixed-interval tasks with pause/resume support.
package scheduler

import (
	"context"
	"sync"
	"time"

	"sigrelay/internal/logger"
)

// IntervalScheduler invokes a task on a fixed interval. The schedule can be
// paused and resumed at runtime; while paused, ticks are absorbed without
// running the task. With RunImmediately set, each pause-to-resume
// transition also runs the task right away instead of waiting out the
// current interval.
type IntervalScheduler struct {
	Name           string
	Interval       time.Duration
	RunImmediately bool

	mu     sync.Mutex
	paused bool
	kick   chan struct{}
}

func NewIntervalScheduler(name string, interval time.Duration) *IntervalScheduler {
	return &IntervalScheduler{
		Name:     name,
		Interval: interval,
		paused:   true,
		kick:     make(chan struct{}, 1),
	}
}

// Resume lets subsequent ticks run the task.
func (s *IntervalScheduler) Resume() {
	s.mu.Lock()
	was := s.paused
	s.paused = false
	s.mu.Unlock()
	if !was {
		return
	}
	logger.Debugf("scheduler %s: resumed", s.Name)
	if s.RunImmediately {
		select {
		case s.kick <- struct{}{}:
		default:
		}
	}
}

// Pause absorbs subsequent ticks without running the task.
func (s *IntervalScheduler) Pause() {
	s.mu.Lock()
	was := s.paused
	s.paused = true
	s.mu.Unlock()
	if !was {
		logger.Debugf("scheduler %s: paused", s.Name)
	}
}

func (s *IntervalScheduler) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.paused
}

// Start blocks until ctx is cancelled, running task each interval while the
// scheduler is resumed.
func (s *IntervalScheduler) Start(ctx context.Context, task func()) {
	if s == nil || task == nil {
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("scheduler %s: invalid interval=%s, exit", s.Name, s.Interval)
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	logger.Infof("scheduler %s: started interval=%s", s.Name, s.Interval)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Infof("scheduler %s: ctx done, exit", s.Name)
			return
		case <-s.kick:
			if s.running() {
				task()
			}
		case <-ticker.C:
			if s.running() {
				task()
			}
		}
	}
}
