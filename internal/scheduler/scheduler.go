// Package scheduler runs periodic maintenance jobs on cron specs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	appLog "pushcal/internal/log"
)

// Task is a maintenance job. It receives the scheduler's context, which is
// cancelled on Stop.
type Task func(ctx context.Context) error

// Scheduler wraps a cron engine with named jobs.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	tasks map[string]Task
}

// New returns a stopped Scheduler with standard five-field specs and
// descriptors such as "@daily".
func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(),
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]Task),
	}
}

// Add registers task under name on spec. An empty spec leaves the job
// disabled and is not an error.
func (s *Scheduler) Add(name, spec string, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[name]; ok {
		return fmt.Errorf("scheduler: job %q already registered", name)
	}
	s.tasks[name] = task

	if spec == "" {
		appLog.Info("scheduled job disabled", "job", name)
		return nil
	}
	if _, err := s.cron.AddFunc(spec, func() { s.run(name, task) }); err != nil {
		delete(s.tasks, name)
		return fmt.Errorf("scheduler: job %q: invalid spec %q: %w", name, spec, err)
	}
	appLog.Info("scheduled job registered", "job", name, "spec", spec)
	return nil
}

// RunNow runs the named job synchronously.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	task, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", name)
	}
	return s.run(name, task)
}

func (s *Scheduler) run(name string, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: job %q panicked: %v", name, r)
			appLog.Error("scheduled job panicked", err, "job", name)
		}
	}()

	appLog.Debug("scheduled job start", "job", name)
	if err = task(s.ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			appLog.Error("scheduled job failed", err, "job", name)
		}
		return err
	}
	appLog.Info("scheduled job done", "job", name)
	return nil
}

// Start starts the cron engine in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}
