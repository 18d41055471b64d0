package courier

import (
	"log/slog"
	"reflect"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/casualjim/courier/dispatch"
	"github.com/casualjim/courier/internal/registry"
	"github.com/casualjim/courier/internal/stats"
	"github.com/casualjim/courier/messages"
	"github.com/casualjim/courier/pkg/slogx"
	"github.com/fogfish/opts"
)

// Mode selects the execution context of a callback or of a publish fan-out. The values
// are dispatch.Current, dispatch.New and dispatch.Affinity.
type Mode = dispatch.Mode

// Stats holds the delivery counters of one message type.
type Stats = stats.Snapshot

type affinityRef struct {
	Affinity dispatch.Executor
}

// Broker routes published messages to the callbacks subscribed to their type.
// A Broker is safe for concurrent use. Create it with New or use Default.
type Broker struct {
	logger      *slog.Logger
	affinity    dispatch.Executor
	faultPolicy FaultPolicy
	onFault     func(*Fault)
	hook        Hook

	current  atomic.Pointer[affinityRef]
	warned   atomic.Bool
	registry *registry.Registry
	counters *stats.Counters
}

// New creates a broker. It panics when an option fails to apply.
func New(options ...Option) *Broker {
	b := &Broker{faultPolicy: LogAndContinue}
	if err := opts.Apply(b, options); err != nil {
		panic(err)
	}
	if b.logger == nil {
		b.logger = slog.Default().With(slogx.LoggerName("courier"))
	}
	b.registry = registry.New(b.registryFault)
	b.counters = stats.New()
	b.SetAffinity(b.affinity)
	return b
}

var defaultBroker = sync.OnceValue(func() *Broker { return New() })

// Default returns the process-wide broker, creating it on first use. Prefer passing a
// *Broker to the components that need one; Default is for code that cannot be handed
// one.
func Default() *Broker {
	return defaultBroker()
}

// SetAffinity replaces the affinity context. With a nil context, Affinity mode runs
// callbacks inline on the publishing goroutine, and the broker logs a warning the first
// time that happens.
func (b *Broker) SetAffinity(affinity dispatch.Executor) {
	b.current.Store(&affinityRef{Affinity: affinity})
	b.warned.Store(false)
	if affinity == nil {
		b.logger.Debug("no affinity context configured, affinity mode runs inline")
		return
	}
	b.logger.Debug("affinity context configured", slogx.TypeOf("affinity", affinity))
}

// AffinityConfigured reports whether Affinity mode currently has a context to marshal
// onto.
func (b *Broker) AffinityConfigured() bool {
	return b.policy().Affinity != nil
}

// FaultPolicy returns the policy the broker was created with.
func (b *Broker) FaultPolicy() FaultPolicy {
	return b.faultPolicy
}

// UnsubscribeAll removes every callback subscriber registered, for every message type.
// Unknown subscribers are ignored.
func (b *Broker) UnsubscribeAll(subscriber any) {
	n := b.registry.UnregisterAll(subscriber)
	b.logger.Debug("unsubscribed", slogx.TypeOf("subscriber", subscriber), slog.Int("callbacks", n))
}

// UnsubscribeCallback removes the single callback identified by handle from
// subscriber. It reports whether a callback was removed.
func (b *Broker) UnsubscribeCallback(subscriber any, handle Handle) bool {
	if !handle.Valid() {
		return false
	}
	return b.registry.UnregisterCallback(subscriber, handle.id)
}

// SubscriptionCount returns how many callbacks subscriber has registered.
func (b *Broker) SubscriptionCount(subscriber any) int {
	return b.registry.Count(subscriber)
}

// Stats returns the delivery counters keyed by message type, named by import path
// and type name ("github.com/casualjim/courier/messages.Text").
func (b *Broker) Stats() map[string]Stats {
	return b.counters.Snapshot()
}

// StatsOf returns the delivery counters of message type T, false when nothing was
// published or delivered for it yet.
func StatsOf[T messages.Message](b *Broker) (Stats, bool) {
	return b.counters.Get(stats.Key(reflect.TypeFor[T]()))
}

// MessageTypes returns the message types that were ever subscribed to, in the order
// they were first seen.
func (b *Broker) MessageTypes() []reflect.Type {
	return b.registry.Types()
}

// Subscribers returns how many subscribers currently have callbacks for message
// type T.
func Subscribers[T messages.Message](b *Broker) int {
	return b.registry.Subscribers(reflect.TypeFor[T]())
}

func (b *Broker) policy() dispatch.Policy {
	if ref := b.current.Load(); ref != nil {
		return dispatch.Policy{Affinity: ref.Affinity}
	}
	return dispatch.Policy{}
}

func (b *Broker) noteFallback(messageType reflect.Type) {
	if b.warned.CompareAndSwap(false, true) {
		b.logger.Warn("affinity mode requested without an available affinity context, running inline",
			slogx.Type("message_type", messageType))
	}
}

func (b *Broker) registryFault(op string, recovered any) {
	f := &Fault{Op: op, Value: recovered, Stack: debug.Stack()}
	b.report(f)
	if b.faultPolicy == Propagate {
		panic(f)
	}
}

func (b *Broker) report(f *Fault) {
	b.logger.Error("recovered fault",
		slogx.Error(f),
		slog.String("op", f.Op),
		slogx.Type("message_type", f.MessageType),
		slogx.TypeOf("subscriber", f.Subscriber),
		slog.String("policy", b.faultPolicy.String()),
	)
	if b.onFault != nil {
		b.onFault(f)
	}
	if b.hook != nil {
		b.observe(f.MessageType, func() { b.hook.OnFault(f) })
	}
}

// observe runs a hook method. A panicking hook is logged and handed to the fault
// handler; it is not counted against a subscriber and never propagates.
func (b *Broker) observe(messageType reflect.Type, fn func()) {
	defer func() {
		if v := recover(); v != nil {
			f := &Fault{Op: opHook, MessageType: messageType, Value: v, Stack: debug.Stack()}
			b.logger.Error("hook panicked", slogx.Error(f), slogx.Type("message_type", messageType))
			if b.onFault != nil {
				b.onFault(f)
			}
		}
	}()
	fn()
}
