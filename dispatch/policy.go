package dispatch

import (
	"errors"
)

// ErrAffinityUnavailable is returned (wrapped) by an Executor that cannot accept work,
// for example because its loop has stopped.
var ErrAffinityUnavailable = errors.New("dispatch: affinity context unavailable")

// Executor is a single serialized execution context, the stand-in for a UI thread.
// Affinity mode marshals work onto it.
//
// Invoke runs fn on that context and returns once fn returned. Calling Invoke from
// the affinity context itself while it waits on the caller deadlocks; implementations
// are not required to detect this.
type Executor interface {
	Invoke(fn func()) error
}

// Action is what Policy does for a given mode.
type Action uint8

const (
	Inline Action = iota
	Worker
	Marshal
	// InlineFallback is an Affinity request that ran inline because no affinity
	// context was available.
	InlineFallback
)

func (a Action) String() string {
	switch a {
	case Inline:
		return "inline"
	case Worker:
		return "worker"
	case Marshal:
		return "marshal"
	case InlineFallback:
		return "inline-fallback"
	default:
		return "unknown"
	}
}

// Policy executes work according to a Mode. The zero value has no affinity context,
// so Affinity requests run inline.
type Policy struct {
	Affinity Executor
}

// Resolve returns the action Execute would take for mode.
func (p Policy) Resolve(mode Mode) Action {
	switch mode {
	case New:
		return Worker
	case Affinity:
		if p.Affinity == nil {
			return InlineFallback
		}
		return Marshal
	default:
		return Inline
	}
}

// Execute runs fn according to mode and reports the action that was taken.
//
// When the affinity context refuses work with ErrAffinityUnavailable, fn runs inline
// and the action is InlineFallback. Any other error from the affinity context is
// returned as is; fn has been handed to the context in that case.
func (p Policy) Execute(mode Mode, fn func()) (Action, error) {
	action := p.Resolve(mode)
	switch action {
	case Worker:
		go fn()
	case Marshal:
		if err := p.Affinity.Invoke(fn); err != nil {
			if !errors.Is(err, ErrAffinityUnavailable) {
				return Marshal, err
			}
			fn()
			return InlineFallback, nil
		}
	default:
		fn()
	}
	return action, nil
}
