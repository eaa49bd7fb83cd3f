// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFunc performs one maintenance pass and reports how many rows it touched
type TaskFunc func(ctx context.Context) (int64, error)

type task struct {
	name string
	fn   TaskFunc
}

// Scheduler runs maintenance tasks on a fixed interval
type Scheduler struct {
	interval time.Duration
	tasks    []task
	logger   *zap.Logger
	stopChan chan struct{}
	done     chan struct{}
	started  bool
	once     sync.Once
}

// NewScheduler creates a new scheduler
func NewScheduler(interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// AddTask registers fn under name. Call before Start.
func (s *Scheduler) AddTask(name string, fn TaskFunc) {
	s.tasks = append(s.tasks, task{name: name, fn: fn})
}

// Start begins the scheduler
func (s *Scheduler) Start() {
	s.started = true
	ticker := time.NewTicker(s.interval)
	go func() {
		defer close(s.done)
		for {
			select {
			case <-ticker.C:
				s.RunOnce(context.Background())
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the scheduler and waits for an in-flight pass to finish
func (s *Scheduler) Stop() {
	s.once.Do(func() {
		close(s.stopChan)
		if s.started {
			<-s.done
		}
	})
}

// RunOnce runs every task once; a failing task does not stop the others
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, t := range s.tasks {
		n, err := t.fn(ctx)
		if err != nil {
			s.logger.Warn("maintenance task failed", zap.String("task", t.name), zap.Error(err))
			continue
		}
		if n > 0 {
			s.logger.Info("maintenance task completed", zap.String("task", t.name), zap.Int64("rows", n))
		}
	}
}
