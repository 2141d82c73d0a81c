// Package maintenance runs periodic housekeeping (cache sweeps, context
// cleanup, rate-limit pruning) on cron expressions.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"
)

// Task is one scheduled job.
type Task struct {
	Name string
	Expr string
	Run  func()
}

// Scheduler checks each task's cron expression once a minute and runs
// due tasks in their own goroutines.
type Scheduler struct {
	gron     *gronx.Gronx
	interval time.Duration

	mu    sync.Mutex
	tasks []Task
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		gron:     gronx.New(),
		interval: time.Minute,
	}
}

// Add registers a task. The cron expression is validated up front.
func (s *Scheduler) Add(name, expr string, run func()) error {
	if !s.gron.IsValid(expr) {
		return fmt.Errorf("invalid cron expression %q for task %s", expr, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, Task{Name: name, Expr: expr, Run: run})
	return nil
}

// TaskNames lists the registered task names.
func (s *Scheduler) TaskNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tasks))
	for _, t := range s.tasks {
		names = append(names, t.Name)
	}
	return names
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("maintenance scheduler started", "tasks", len(s.TaskNames()))
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.runDue(now)
		}
	}
}

// runDue fires every task whose expression matches the reference time.
func (s *Scheduler) runDue(now time.Time) {
	s.mu.Lock()
	tasks := make([]Task, len(s.tasks))
	copy(tasks, s.tasks)
	s.mu.Unlock()

	for _, task := range tasks {
		due, err := s.gron.IsDue(task.Expr, now)
		if err != nil {
			slog.Warn("cron check failed", "task", task.Name, "error", err)
			continue
		}
		if !due {
			continue
		}
		go func(task Task) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("maintenance task panicked", "task", task.Name, "panic", r)
				}
			}()
			start := time.Now()
			task.Run()
			slog.Debug("maintenance task done", "task", task.Name, "elapsed", time.Since(start))
		}(task)
	}
}
