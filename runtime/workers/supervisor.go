package workers

import (
	"chat-relay/contract"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultRestartInterval = 200 * time.Millisecond
	// MaxRestartDelay caps the backoff of a worker crashing in a loop, a dead Redis included.
	MaxRestartDelay = 30 * time.Second
)

// Supervisor keeps the background workers of the relay alive.
// A worker returning an error or panicking is restarted with an exponential delay
// starting at the restart interval. Returning nil means the worker is done.
type Supervisor struct {
	log             *slog.Logger
	workers         []contract.Worker
	restartInterval time.Duration
	wg              sync.WaitGroup

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
}

func NewSupervisor(log *slog.Logger, restartInterval time.Duration) *Supervisor {
	if restartInterval <= 0 {
		restartInterval = DefaultRestartInterval
	}
	return &Supervisor{log: log, restartInterval: restartInterval}
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Run starts every added worker and blocks until all of them are done.
// Stop cancels the workers without touching ctx.
func (s *Supervisor) Run(ctx context.Context) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	for _, worker := range s.workers {
		s.Start(ctx, worker)
	}
	s.wg.Wait()
	s.Stop()
}

// Start supervises one worker in its own goroutine.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.supervise(ctx, worker)
	}()
}

// Stop cancels every supervised worker, Run returns once they are all done.
// A supervisor stopped before Run never starts its workers.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Supervisor) supervise(ctx context.Context, worker contract.Worker) {
	name := contract.GetWorkerName(worker)
	delay := s.restartInterval
	for restarts := 0; ; restarts++ {
		startedAt := time.Now()
		err := runGuarded(ctx, worker)
		switch {
		case ctx.Err() != nil:
			s.log.Info("Worker stopped", "name", name)
			return
		case err == nil:
			s.log.Info("Worker finished", "name", name)
			return
		}

		// A worker that ran longer than the longest delay was healthy, its backoff starts over
		if time.Since(startedAt) > MaxRestartDelay {
			delay = s.restartInterval
		}
		s.log.Warn("Worker crashed, restarting", "name", name, "error", err, "restarts", restarts+1, "delay", delay)
		select {
		case <-ctx.Done():
			s.log.Info("Worker stopped", "name", name)
			return
		case <-time.After(delay):
		}
		delay = min(2*delay, MaxRestartDelay)
	}
}

// runGuarded turns a panic of the worker into ErrWorkerPanic.
func runGuarded(ctx context.Context, worker contract.Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
		}
	}()
	return worker.Run(ctx)
}
