// Package dispatch runs queries in the background so an interactive caller
// keeps its prompt while the executor polls.
package dispatch

import (
	"context"
	"sync"

	"github.com/athenaq/athenaq/internal/executor"
	"github.com/athenaq/athenaq/internal/output"
)

// Runner is satisfied by *executor.Executor.
type Runner interface {
	Run(ctx context.Context, req executor.Request) (executor.Result, error)
}

// Future delivers one query outcome exactly once.
type Future struct {
	done   chan struct{}
	cancel context.CancelFunc

	mu        sync.Mutex
	result    executor.Result
	err       error
	callbacks []func(executor.Result, error)
}

// Go starts req on its own goroutine. Status text for the run goes to sink
// unless req already names one; a table result is displayed on sink once the
// run completes.
func Go(ctx context.Context, runner Runner, req executor.Request, sink output.Sink) *Future {
	if sink == nil {
		sink = output.Discard
	} else if req.Sink == nil {
		req.Sink = sink
	}
	runCtx, cancel := context.WithCancel(ctx)
	f := &Future{done: make(chan struct{}), cancel: cancel}

	go func() {
		defer cancel()
		result, err := runner.Run(runCtx, req)
		if err == nil && result.Table != nil {
			sink.Display(*result.Table)
		}
		f.complete(result, err)
	}()
	return f
}

func (f *Future) complete(result executor.Result, err error) {
	f.mu.Lock()
	f.result, f.err = result, err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, callback := range callbacks {
		callback(result, err)
	}
}

// Done is closed once the outcome is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the run completes or ctx ends. Ending ctx does not
// cancel the run; use Cancel for that.
func (f *Future) Wait(ctx context.Context) (executor.Result, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.result, f.err
	case <-ctx.Done():
		return executor.Result{}, ctx.Err()
	}
}

// OnComplete registers callback. Callbacks registered after completion run
// immediately on the caller's goroutine.
func (f *Future) OnComplete(callback func(executor.Result, error)) {
	f.mu.Lock()
	select {
	case <-f.done:
		result, err := f.result, f.err
		f.mu.Unlock()
		callback(result, err)
		return
	default:
	}
	f.callbacks = append(f.callbacks, callback)
	f.mu.Unlock()
}

// Cancel interrupts the run, which stops the remote execution.
func (f *Future) Cancel() {
	f.cancel()
}
