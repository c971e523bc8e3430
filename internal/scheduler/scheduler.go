// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

// Package scheduler runs the periodic beat jobs: observation ingest,
// data cleanup and report generation. Jobs fire on plain durations with
// optional jitter; there is no cron syntax, and every interval is
// floored at one minute. A firing never does the work inline, it only
// submits a task to the queue and rearms its timer.
package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/bgapp-platform/bgapp/internal/config"
	"github.com/bgapp-platform/bgapp/internal/logging"
	"github.com/bgapp-platform/bgapp/internal/metrics"
	"github.com/bgapp-platform/bgapp/internal/tasks"
)

// Submitter is the slice of the task manager the scheduler needs.
type Submitter interface {
	Submit(ctx context.Context, taskType string, queue tasks.Queue, payload json.RawMessage) (*tasks.Record, error)
}

// Job is one periodic submission.
type Job struct {
	Name     string
	TaskType string
	Queue    tasks.Queue
	Interval time.Duration
	Payload  json.RawMessage

	mu      sync.Mutex
	lastRun time.Time
	nextRun time.Time
	runs    int64
}

// JobInfo is the queryable view of a job for GET /api/scheduler/jobs.
type JobInfo struct {
	Name     string        `json:"name"`
	TaskType string        `json:"task_type"`
	Queue    tasks.Queue   `json:"queue"`
	Interval time.Duration `json:"interval"`
	LastRun  time.Time     `json:"last_run"`
	NextRun  time.Time     `json:"next_run"`
	Runs     int64         `json:"runs"`
}

// Scheduler owns the beat jobs and their timers.
type Scheduler struct {
	cfg       *config.SchedulerConfig
	submitter Submitter
	jobs      []*Job
}

// New builds the scheduler with the standard job set. Intervals below
// the floor are clamped rather than rejected; config validation already
// refuses them, this is the safety net for programmatic construction.
func New(cfg *config.SchedulerConfig, submitter Submitter) *Scheduler {
	s := &Scheduler{cfg: cfg, submitter: submitter}

	s.jobs = []*Job{
		{
			Name:     "ingest-observations",
			TaskType: tasks.TypeIngest,
			Queue:    tasks.QueueHigh,
			Interval: clampInterval(cfg.IngestInterval),
		},
		{
			Name:     "cleanup-observations",
			TaskType: tasks.TypeDataCleanup,
			Queue:    tasks.QueueLow,
			Interval: clampInterval(cfg.CleanupInterval),
		},
		{
			Name:     "generate-report",
			TaskType: tasks.TypeReport,
			Queue:    tasks.QueueLow,
			Interval: clampInterval(cfg.ReportInterval),
		},
	}
	return s
}

func clampInterval(d time.Duration) time.Duration {
	if d < config.MinInterval {
		return config.MinInterval
	}
	return d
}

// Serve runs every job until the context is canceled. Implements the
// suture service contract.
func (s *Scheduler) Serve(ctx context.Context) error {
	if !s.cfg.Enabled {
		logging.Info().Msg("Scheduler disabled, beat jobs will not fire")
		<-ctx.Done()
		return ctx.Err()
	}

	if s.cfg.RunIngestOnStart {
		s.fire(ctx, s.jobs[0])
	}

	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(j *Job) {
			defer wg.Done()
			s.runJob(ctx, j)
		}(job)
	}
	wg.Wait()
	return ctx.Err()
}

// runJob arms a timer for one job and rearms it after each firing.
func (s *Scheduler) runJob(ctx context.Context, job *Job) {
	delay := s.nextDelay(job.Interval)
	job.setNextRun(time.Now().Add(delay))

	logging.Info().
		Str("job", job.Name).
		Dur("interval", job.Interval).
		Time("next_run", time.Now().Add(delay)).
		Msg("Scheduler job armed")

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.fire(ctx, job)
			delay = s.nextDelay(job.Interval)
			job.setNextRun(time.Now().Add(delay))
			timer.Reset(delay)
		}
	}
}

// fire submits the job's task. Submission failures are logged and the
// timer rearms; the next firing retries naturally.
func (s *Scheduler) fire(ctx context.Context, job *Job) {
	rec, err := s.submitter.Submit(ctx, job.TaskType, job.Queue, job.Payload)
	if err != nil {
		logging.Error().Err(err).Str("job", job.Name).Msg("Scheduled submission failed")
		return
	}

	job.mu.Lock()
	job.lastRun = time.Now().UTC()
	job.runs++
	job.mu.Unlock()

	metrics.SchedulerRuns.WithLabelValues(job.Name).Inc()
	metrics.SchedulerLastRun.WithLabelValues(job.Name).SetToCurrentTime()

	logging.Info().
		Str("job", job.Name).
		Str("task_id", rec.ID).
		Str("queue", string(job.Queue)).
		Msg("Scheduled task submitted")
}

// nextDelay applies jitter so jobs with equal intervals spread out
// instead of thundering together.
func (s *Scheduler) nextDelay(interval time.Duration) time.Duration {
	fraction := s.cfg.JitterFraction
	if fraction <= 0 {
		return interval
	}
	if fraction > 0.5 {
		fraction = 0.5
	}
	jitter := time.Duration((rand.Float64()*2 - 1) * fraction * float64(interval))
	d := interval + jitter
	if d < config.MinInterval {
		d = config.MinInterval
	}
	return d
}

func (j *Job) setNextRun(at time.Time) {
	j.mu.Lock()
	j.nextRun = at.UTC()
	j.mu.Unlock()
}

// Jobs returns the current job states.
func (s *Scheduler) Jobs() []JobInfo {
	out := make([]JobInfo, 0, len(s.jobs))
	for _, job := range s.jobs {
		job.mu.Lock()
		out = append(out, JobInfo{
			Name:     job.Name,
			TaskType: job.TaskType,
			Queue:    job.Queue,
			Interval: job.Interval,
			LastRun:  job.lastRun,
			NextRun:  job.nextRun,
			Runs:     job.runs,
		})
		job.mu.Unlock()
	}
	return out
}

// Enabled reports whether the beat is active.
func (s *Scheduler) Enabled() bool {
	return s.cfg.Enabled
}
