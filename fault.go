package courier

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrCallbackPanic matches faults raised by a subscriber callback.
	ErrCallbackPanic = errors.New("courier: callback panicked")
	// ErrRegistryFault matches faults raised while reading or changing subscriptions.
	ErrRegistryFault = errors.New("courier: registry operation failed")
	// ErrHookPanic matches faults raised by a Hook.
	ErrHookPanic = errors.New("courier: hook panicked")
)

const (
	opDeliver = "deliver"
	opHook    = "hook"
)

// Fault describes a panic the broker recovered in a subscriber callback, inside a
// registry operation or in a hook.
type Fault struct {
	// Op is the operation that failed: "deliver" for callbacks, "hook" for hooks,
	// otherwise the registry operation ("register", "resolve", "unregister_all", ...).
	Op string
	// MessageType is the message type being delivered, nil for registry faults.
	MessageType reflect.Type
	// Subscriber is the identity whose callback failed, nil for registry faults.
	Subscriber any
	// Handle identifies the callback that failed, uuid.Nil for registry faults.
	Handle uuid.UUID
	// Value is what was recovered.
	Value any
	Stack []byte
}

func (f *Fault) Error() string {
	switch f.Op {
	case opDeliver:
		return fmt.Sprintf("courier: callback for %v on %T panicked: %v", f.MessageType, f.Subscriber, f.Value)
	case opHook:
		return fmt.Sprintf("courier: hook for %v panicked: %v", f.MessageType, f.Value)
	}
	return fmt.Sprintf("courier: %s failed: %v", f.Op, f.Value)
}

func (f *Fault) Unwrap() []error {
	kind := ErrRegistryFault
	switch f.Op {
	case opDeliver:
		kind = ErrCallbackPanic
	case opHook:
		kind = ErrHookPanic
	}
	if err, ok := f.Value.(error); ok {
		return []error{kind, err}
	}
	return []error{kind}
}

// FaultPolicy decides what happens after a fault was logged.
type FaultPolicy uint8

const (
	// LogAndContinue logs the fault and keeps going. The broker stays available for
	// other subscribers, at the cost of hiding the failure from the caller.
	LogAndContinue FaultPolicy = iota
	// Propagate logs the fault and then panics with it. Registry faults panic in the
	// caller once the registry lock is released. Callback faults of Current and
	// Affinity callbacks panic once every resolved callback was invoked; faults of New
	// callbacks panic on the goroutine that ran the callback.
	Propagate
)

func (p FaultPolicy) String() string {
	switch p {
	case LogAndContinue:
		return "log"
	case Propagate:
		return "propagate"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// ParseFaultPolicy parses "log" or "propagate".
func ParseFaultPolicy(s string) (FaultPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "log", "log-and-continue":
		return LogAndContinue, nil
	case "propagate", "panic":
		return Propagate, nil
	default:
		return LogAndContinue, fmt.Errorf("courier: unknown fault policy %q", s)
	}
}
