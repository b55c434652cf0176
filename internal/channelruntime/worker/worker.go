package worker

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrQueueFull = errors.New("worker queue is full")

type StartOptions[J any] struct {
	// Ctx ends the worker loop between jobs.
	Ctx context.Context
	// HandleCtx is passed to Handle; defaults to Ctx.
	HandleCtx context.Context
	// WG, if set, tracks the worker goroutine until it exits.
	WG     *sync.WaitGroup
	Sem    chan struct{}
	Jobs   <-chan J
	Handle func(context.Context, J)
	// IdleTimeout > 0 asks OnIdle whether to retire after a quiet period.
	IdleTimeout time.Duration
	// OnIdle returns true when the worker may exit. It must unregister the
	// worker so no further jobs are sent to Jobs.
	OnIdle func() bool
}

// Start runs one worker goroutine that handles Jobs in order, holding a
// slot of Sem while each job runs.
func Start[J any](opts StartOptions[J]) {
	handleCtx := opts.HandleCtx
	if handleCtx == nil {
		handleCtx = opts.Ctx
	}
	if opts.WG != nil {
		opts.WG.Add(1)
	}
	go func() {
		if opts.WG != nil {
			defer opts.WG.Done()
		}
		var idle *time.Timer
		var idleC <-chan time.Time
		if opts.IdleTimeout > 0 && opts.OnIdle != nil {
			idle = time.NewTimer(opts.IdleTimeout)
			defer idle.Stop()
			idleC = idle.C
		}
		for {
			select {
			case <-opts.Ctx.Done():
				return
			case <-idleC:
				if opts.OnIdle() {
					return
				}
				idle.Reset(opts.IdleTimeout)
			case job, ok := <-opts.Jobs:
				if !ok || opts.Ctx.Err() != nil {
					return
				}
				select {
				case opts.Sem <- struct{}{}:
				case <-opts.Ctx.Done():
					return
				}
				func() {
					defer func() { <-opts.Sem }()
					opts.Handle(handleCtx, job)
				}()
				if idle != nil {
					if !idle.Stop() {
						select {
						case <-idle.C:
						default:
						}
					}
					idle.Reset(opts.IdleTimeout)
				}
			}
		}
	}()
}

// TryEnqueue queues job without blocking.
func TryEnqueue[J any](jobs chan<- J, job J) error {
	select {
	case jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}
