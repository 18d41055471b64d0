// Package affinity provides Loop, a single goroutine that executes submitted work
// one item at a time in submission order. It is the designated serialized context the
// broker's Affinity mode targets, the role a UI dispatcher thread plays in desktop
// toolkits.
//
// Example usage:
//
//	loop := affinity.NewLoop(affinity.LockOSThread(true))
//	go loop.Run(ctx)
//	defer loop.Stop()
//
//	b := courier.New(courier.WithAffinity(loop))
//
// Invoking the loop from its own goroutine while the loop is waiting on that same
// caller deadlocks. Work running on the loop may call Post, never Invoke.
package affinity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/casualjim/courier/dispatch"
	"github.com/casualjim/courier/pkg/slogx"
	"github.com/fogfish/opts"
)

// ErrAlreadyRunning is returned by Run when the loop is already running.
var ErrAlreadyRunning = errors.New("affinity: loop already running")

var errStopped = fmt.Errorf("affinity: loop stopped: %w", dispatch.ErrAffinityUnavailable)

var _ dispatch.Executor = (*Loop)(nil)

// PanicError is returned by Invoke when the invoked function panicked. The loop
// itself survives the panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("affinity: invoked function panicked: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

type job struct {
	fn   func()
	done chan struct{}
	err  error
}

// Loop is a serialized execution context. Create it with NewLoop.
type Loop struct {
	work         chan *job
	stop         chan struct{}
	done         chan struct{}
	stopOnce     sync.Once
	running      atomic.Bool
	lockOSThread bool
	buffer       int
	logger       *slog.Logger
}

var (
	// LockOSThread pins the goroutine calling Run to its OS thread for the lifetime
	// of the loop, for toolkits that require thread affinity.
	LockOSThread = opts.ForName[Loop, bool]("lockOSThread")
	// Buffer sets how many posted functions may wait before Post blocks.
	Buffer = opts.ForName[Loop, int]("buffer")
	// Logger sets the logger used to report panics in posted functions.
	Logger = opts.ForName[Loop, *slog.Logger]("logger")
)

// NewLoop creates a loop. It does not run until Run or Start is called.
func NewLoop(options ...opts.Option[Loop]) *Loop {
	l := &Loop{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	if err := opts.Apply(l, options); err != nil {
		panic(err)
	}
	if l.buffer < 0 {
		l.buffer = 0
	}
	if l.logger == nil {
		l.logger = slog.Default().With(slogx.LoggerName("affinity"))
	}
	l.work = make(chan *job, l.buffer)
	return l
}

// Run executes submitted work on the calling goroutine until ctx is done or Stop is
// called. A loop runs at most once.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	if l.lockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			l.Stop()
			return ctx.Err()
		case <-l.stop:
			return nil
		case j := <-l.work:
			l.execute(j)
		}
	}
}

// Start runs the loop on a new goroutine.
func (l *Loop) Start(ctx context.Context) {
	go func() {
		if err := l.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Error("affinity loop exited", slogx.Error(err))
		}
	}()
}

// Stop makes the loop exit after the function it is currently running, if any.
// Work still queued is discarded and its Invoke callers get an error.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Done is closed once Run returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Invoke runs fn on the loop and waits for it to return. It blocks until the loop
// picks the work up, so invoking a loop that was never started blocks.
func (l *Loop) Invoke(fn func()) error {
	j := &job{fn: fn, done: make(chan struct{})}
	if err := l.submit(j); err != nil {
		return err
	}

	select {
	case <-j.done:
		return j.err
	case <-l.done:
		select {
		case <-j.done:
			return j.err
		default:
			return errStopped
		}
	}
}

// Post queues fn on the loop without waiting for it.
func (l *Loop) Post(fn func()) error {
	return l.submit(&job{fn: fn})
}

func (l *Loop) submit(j *job) error {
	select {
	case <-l.stop:
		return errStopped
	default:
	}

	select {
	case <-l.stop:
		return errStopped
	case l.work <- j:
		return nil
	}
}

func (l *Loop) execute(j *job) {
	defer func() {
		if r := recover(); r != nil {
			j.err = &PanicError{Value: r, Stack: debug.Stack()}
			if j.done == nil {
				l.logger.Error("posted function panicked", slogx.Error(j.err))
			}
		}
		if j.done != nil {
			close(j.done)
		}
	}()
	j.fn()
}
