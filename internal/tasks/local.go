package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// LocalDispatcher runs each task on its own goroutine inside the API process.
// Tasks do not survive a restart; use the asynq backend when that matters.
type LocalDispatcher struct {
	log     *slog.Logger
	timeout time.Duration

	mu       sync.RWMutex
	handlers map[string]Handler
	wg       sync.WaitGroup
}

func NewLocalDispatcher(log *slog.Logger, timeout time.Duration) *LocalDispatcher {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LocalDispatcher{log: log, timeout: timeout, handlers: make(map[string]Handler)}
}

var (
	_ Dispatcher = (*LocalDispatcher)(nil)
	_ Registry   = (*LocalDispatcher)(nil)
)

func (d *LocalDispatcher) Register(taskType string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[taskType] = h
}

// Enqueue starts the task and returns immediately. The task outlives ctx cancellation.
func (d *LocalDispatcher) Enqueue(ctx context.Context, t Task) error {
	if t.Type == "" {
		return ErrInvalidTask
	}
	d.mu.RLock()
	h, ok := d.handlers[t.Type]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, t.Type)
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("task panicked", "task_type", t.Type, "panic", fmt.Sprint(r))
			}
		}()

		start := time.Now()
		if err := h(runCtx, t); err != nil {
			d.log.Error("task failed", "task_type", t.Type, "err", err, "duration_ms", time.Since(start).Milliseconds())
			return
		}
		d.log.Debug("task done", "task_type", t.Type, "duration_ms", time.Since(start).Milliseconds())
	}()
	return nil
}

// Wait blocks until every started task has returned.
func (d *LocalDispatcher) Wait() {
	d.wg.Wait()
}
