package poller

import (
	"context"
	"log/slog"
	"time"
)

// Task runs once per tick. Returning ErrStop ends the loop without error.
type Task func(ctx context.Context) error

type stopError struct{}

func (stopError) Error() string { return "poller: stop" }

var ErrStop error = stopError{}

// Run executes task immediately and then every interval until ctx is done,
// task returns ErrStop, or task fails. It never outlives ctx.
func Run(ctx context.Context, interval time.Duration, task Task) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := task(ctx); err != nil {
			if err == ErrStop {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Scheduled is a task bound to a lifecycle: Start launches it, Stop cancels
// it and waits for the loop to return.
type Scheduled struct {
	name     string
	interval time.Duration
	task     Task
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(name string, interval time.Duration, task Task, logger *slog.Logger) *Scheduled {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduled{name: name, interval: interval, task: task, logger: logger}
}

func (s *Scheduled) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := Run(ctx, s.interval, s.task); err != nil {
			s.logger.Warn("scheduled task stopped", "task", s.name, "error", err)
		}
	}()
}

func (s *Scheduled) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}
