package gui

import (
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	// ErrExecutorClosed is returned when work is scheduled after Close.
	ErrExecutorClosed = errors.New("ui executor closed")

	// ErrTaskBusy is returned when a Task is invoked while a previous
	// invocation is still waiting for the UI.
	ErrTaskBusy = errors.New("ui task already in flight")
)

// Executor runs functions one at a time on a single UI goroutine.
type Executor struct {
	logger *zap.Logger
	tasks  chan func()

	closeOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

// NewExecutor starts the UI goroutine. queue bounds the number of
// scheduled but not yet started functions.
func NewExecutor(logger *zap.Logger, queue int) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queue <= 0 {
		queue = 64
	}
	e := &Executor{
		logger:  logger,
		tasks:   make(chan func(), queue),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go e.loop()
	return e
}

func (e *Executor) loop() {
	defer close(e.stopped)
	for {
		select {
		case <-e.done:
			return
		case fn := <-e.tasks:
			e.run(fn)
		}
	}
}

func (e *Executor) run(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("ui task panicked", zap.Any("panic", p))
		}
	}()
	fn()
}

// Later schedules fn and returns without waiting for it.
func (e *Executor) Later(fn func()) error {
	select {
	case <-e.done:
		return ErrExecutorClosed
	default:
	}
	select {
	case e.tasks <- fn:
		return nil
	case <-e.done:
		return ErrExecutorClosed
	}
}

// AndWait schedules fn and blocks until it has run. It must not be called
// from the UI goroutine itself.
func (e *Executor) AndWait(fn func()) error {
	finished := make(chan struct{})
	if err := e.Later(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-e.stopped:
		select {
		case <-finished:
			return nil
		default:
		}
		return ErrExecutorClosed
	}
}

// Close stops the UI goroutine. Scheduled functions that have not started
// are dropped. Close does not wait for a running function.
func (e *Executor) Close() {
	e.closeOnce.Do(func() { close(e.done) })
}

// Task is a blocking UI call with a result. One invocation may be in
// flight per Task.
type Task[A, R any] struct {
	exec *Executor
	fn   func(A) R
	busy atomic.Bool
}

// NewTask binds fn to exec.
func NewTask[A, R any](exec *Executor, fn func(A) R) *Task[A, R] {
	return &Task[A, R]{exec: exec, fn: fn}
}

// Run executes fn(arg) on the UI goroutine and returns its result.
func (t *Task[A, R]) Run(arg A) (R, error) {
	var result R
	if !t.busy.CompareAndSwap(false, true) {
		return result, ErrTaskBusy
	}
	defer t.busy.Store(false)
	err := t.exec.AndWait(func() { result = t.fn(arg) })
	return result, err
}

// Busy reports whether an invocation is in flight.
func (t *Task[A, R]) Busy() bool { return t.busy.Load() }
