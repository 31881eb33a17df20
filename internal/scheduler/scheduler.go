/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package scheduler runs the engine's periodic jobs. Each job is a named
// function on its own ticker; a job error is logged and the job retries on
// its next tick. All state transitions go through the instruction lease, so
// overlapping runs of the same job on different hosts are safe.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one periodic unit of work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler fans jobs out onto their own polling loops.
type Scheduler struct {
	jobs []Job

	wg       sync.WaitGroup
	stopChan chan struct{}
}

func New(jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs:     jobs,
		stopChan: make(chan struct{}),
	}
}

// Add registers another job. Must be called before Start.
func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, job)
}

// Start launches every job loop. Each job runs once immediately, then on its
// interval.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.runLoop(ctx, job)
		zap.L().Info("Scheduled job started",
			zap.String("job", job.Name),
			zap.Duration("interval", job.Interval))
	}
}

// Stop gracefully stops all job loops and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	zap.L().Info("Stopping scheduler")
	close(s.stopChan)
	s.wg.Wait()
	zap.L().Info("Scheduler stopped")
}

func (s *Scheduler) runLoop(ctx context.Context, job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.runJob(ctx, job)

	for {
		select {
		case <-ticker.C:
			s.runJob(ctx, job)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	started := time.Now()
	if err := job.Run(ctx); err != nil {
		zap.L().Error("Scheduled job failed",
			zap.String("job", job.Name),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err))
		return
	}
	zap.L().Debug("Scheduled job finished",
		zap.String("job", job.Name),
		zap.Duration("elapsed", time.Since(started)))
}
