// Package jobs runs background work: hook fan-out and scheduled feed refreshes.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sevigo/revision-warden/internal/core"
	"github.com/sevigo/revision-warden/internal/metrics"
)

// ErrStopped is returned by Dispatch after Stop.
var ErrStopped = errors.New("hook dispatcher stopped")

// HookSource lists the hooks to run for each interaction.
type HookSource interface {
	Hooks() []core.Hook
}

// dispatcher implements core.HookDispatcher with a pool of workers. Each worker
// takes one interaction at a time and runs every hook for it concurrently.
type dispatcher struct {
	hooks       HookSource            // Hooks run for every interaction.
	queue       chan core.Interaction // Queue of stored interactions.
	maxWorkers  int                   // Number of concurrent workers.
	hookTimeout time.Duration         // Per-hook deadline, zero for none.
	wg          sync.WaitGroup        // Tracks active workers for graceful shutdown.
	pending     sync.WaitGroup        // Deliveries waiting for room in the queue.
	mu          sync.RWMutex
	stopped     bool
	metrics     *metrics.Metrics
	logger      *slog.Logger // Logger instance for the dispatcher.
}

// Dispatcher is a core.HookDispatcher that can be stopped.
type Dispatcher interface {
	core.HookDispatcher
	Stop()
}

// NewDispatcher starts maxWorkers workers. Non-positive values default to 1
// worker, a queue of 100 and no hook timeout.
func NewDispatcher(hooks HookSource, maxWorkers, queueSize int, hookTimeout time.Duration, m *metrics.Metrics, logger *slog.Logger) Dispatcher {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	d := &dispatcher{
		hooks:       hooks,
		maxWorkers:  maxWorkers,
		queue:       make(chan core.Interaction, queueSize),
		hookTimeout: hookTimeout,
		metrics:     m,
		logger:      logger.With("component", "hook_dispatcher"),
	}
	d.startWorkers()
	return d
}

func (d *dispatcher) startWorkers() {
	for i := range d.maxWorkers {
		d.wg.Add(1)
		go d.startWorker(i)
	}
}

func (d *dispatcher) startWorker(workerID int) {
	defer d.wg.Done()
	d.logger.Debug("starting hook worker", "id", workerID)

	for interaction := range d.queue {
		d.fanOut(interaction)
	}

	d.logger.Debug("shutting down hook worker", "id", workerID)
}

// fanOut runs every hook concurrently and waits for all of them. Hook errors
// and panics are logged and counted; they never reach the submitter.
func (d *dispatcher) fanOut(interaction core.Interaction) {
	var wg sync.WaitGroup
	for _, hook := range d.hooks.Hooks() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := d.runHook(hook, interaction)
			if err != nil {
				d.metrics.HookInvocations.WithLabelValues(hook.Name(), "failed").Inc()
				d.logger.Error("hook failed",
					"hook", hook.Name(),
					"wiki", interaction.Wiki,
					"rev_id", interaction.RevisionID,
					"error", err,
				)
				return
			}
			d.metrics.HookInvocations.WithLabelValues(hook.Name(), "success").Inc()
		}()
	}
	wg.Wait()
}

func (d *dispatcher) runHook(hook core.Hook, interaction core.Interaction) (err error) {
	ctx := context.Background()
	if d.hookTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.hookTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", core.ErrHookFailure, r)
		}
	}()
	return hook.Handle(ctx, interaction)
}

// Dispatch queues the interaction and returns immediately. When the queue is
// full the interaction waits in its own goroutine; Stop drains those first.
func (d *dispatcher) Dispatch(_ context.Context, interaction core.Interaction) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}

	select {
	case d.queue <- interaction:
	default:
		d.logger.Warn("hook queue is full, delivery deferred", "wiki", interaction.Wiki, "rev_id", interaction.RevisionID)
		d.pending.Add(1)
		go func() {
			defer d.pending.Done()
			d.queue <- interaction
		}()
	}
	return nil
}

// Stop rejects new interactions and waits for queued and deferred ones to finish.
func (d *dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	d.logger.Info("stopping hook dispatcher and waiting for hooks to finish")
	d.pending.Wait()
	close(d.queue)
	d.wg.Wait()
	d.logger.Info("all hooks have finished")
}
