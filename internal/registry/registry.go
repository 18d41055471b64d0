// Package registry holds the subscription table of the broker: per message type, the
// subscribers registered for it and, per subscriber, its callbacks in registration
// order.
//
// A single mutex guards the whole table. Every operation releases it on all exit paths
// and recovers panics at its boundary. Recovered panics go to the fault reporter the
// registry was built with, after the lock was released, so the reporter may call back
// into the registry. A recovered operation keeps whatever progress it made.
// Lookups return snapshots, so callers iterate without holding the lock and callbacks
// may subscribe or unsubscribe while a publish is in flight.
package registry

import (
	"reflect"
	"slices"
	"sync"

	"github.com/casualjim/courier/dispatch"
	"github.com/casualjim/courier/pkg/uuidx"
	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Callback is the type-erased form of a subscriber function. Implementations check the
// dynamic type of the message before invoking the typed function.
type Callback interface {
	// Accepts reports whether msg has exactly the type the callback was registered for.
	Accepts(msg any) bool
	// Invoke calls the subscriber function with msg.
	Invoke(msg any)
}

// Record is one registered callback.
type Record struct {
	ID          uuid.UUID
	Subscriber  any
	MessageType reflect.Type
	Mode        dispatch.Mode
	Callback    Callback
}

// FaultReporter receives the value of a panic recovered inside operation op.
type FaultReporter func(op string, recovered any)

type entry struct {
	records []Record
}

type subscribers = orderedmap.OrderedMap[any, *entry]

// Registry is safe for concurrent use. Create it with New.
type Registry struct {
	mu     sync.Mutex
	types  *orderedmap.OrderedMap[reflect.Type, *subscribers]
	report FaultReporter
}

// New creates an empty registry. report may be nil, in which case recovered panics
// are dropped.
func New(report FaultReporter) *Registry {
	if report == nil {
		report = func(string, any) {}
	}
	return &Registry{
		types:  orderedmap.New[reflect.Type, *subscribers](),
		report: report,
	}
}

// release unlocks the registry and then hands a panic recovered from op to the
// reporter. It is deferred right after Lock, so the reporter never runs under the lock.
func (r *Registry) release(op string) {
	v := recover()
	r.mu.Unlock()
	if v != nil {
		r.report(op, v)
	}
}

// Register appends cb to the callbacks of subscriber for messageType, creating the
// entry on first use. It returns false when the registration could not be recorded.
func (r *Registry) Register(messageType reflect.Type, subscriber any, cb Callback, mode dispatch.Mode) (rec Record, ok bool) {
	rec = Record{
		ID:          uuidx.New(),
		Subscriber:  subscriber,
		MessageType: messageType,
		Mode:        mode,
		Callback:    cb,
	}

	r.mu.Lock()
	defer r.release("register")

	subs, found := r.types.Get(messageType)
	if !found {
		subs = orderedmap.New[any, *entry]()
		r.types.Set(messageType, subs)
	}

	if e, exists := subs.Get(subscriber); exists {
		e.records = append(e.records, rec)
		return rec, true
	}
	subs.Set(subscriber, &entry{records: []Record{rec}})
	return rec, true
}

// UnregisterAll removes every callback of subscriber for every message type and
// returns how many were removed.
func (r *Registry) UnregisterAll(subscriber any) (removed int) {
	r.mu.Lock()
	defer r.release("unregister_all")

	for pair := r.types.Oldest(); pair != nil; pair = pair.Next() {
		if e, ok := pair.Value.Delete(subscriber); ok {
			removed += len(e.records)
		}
	}
	return removed
}

// UnregisterType removes the callbacks of subscriber for messageType and returns how
// many were removed.
func (r *Registry) UnregisterType(messageType reflect.Type, subscriber any) (removed int) {
	r.mu.Lock()
	defer r.release("unregister_type")

	subs, ok := r.types.Get(messageType)
	if !ok {
		return 0
	}
	if e, ok := subs.Delete(subscriber); ok {
		removed = len(e.records)
	}
	return removed
}

// UnregisterCallback removes the callback with the given id from subscriber, whatever
// message type it was registered for. An entry left without callbacks is removed.
func (r *Registry) UnregisterCallback(subscriber any, id uuid.UUID) (removed bool) {
	r.mu.Lock()
	defer r.release("unregister_callback")

	for pair := r.types.Oldest(); pair != nil; pair = pair.Next() {
		e, ok := pair.Value.Get(subscriber)
		if !ok {
			continue
		}
		idx := slices.IndexFunc(e.records, func(rec Record) bool { return rec.ID == id })
		if idx < 0 {
			continue
		}
		e.records = slices.Delete(e.records, idx, idx+1)
		if len(e.records) == 0 {
			pair.Value.Delete(subscriber)
		}
		return true
	}
	return false
}

// Resolve returns a snapshot of every callback registered for messageType.
func (r *Registry) Resolve(messageType reflect.Type) []Record {
	return r.collect("resolve", messageType, func(subs *subscribers) []*entry {
		out := make([]*entry, 0, subs.Len())
		for pair := subs.Oldest(); pair != nil; pair = pair.Next() {
			out = append(out, pair.Value)
		}
		return out
	})
}

// ResolveTarget returns a snapshot of the callbacks target registered for messageType.
func (r *Registry) ResolveTarget(messageType reflect.Type, target any) []Record {
	return r.collect("resolve_target", messageType, func(subs *subscribers) []*entry {
		if e, ok := subs.Get(target); ok {
			return []*entry{e}
		}
		return nil
	})
}

// ResolveType returns a snapshot of the callbacks registered for messageType by
// subscribers whose dynamic type is exactly targetType.
func (r *Registry) ResolveType(messageType, targetType reflect.Type) []Record {
	return r.collect("resolve_type", messageType, func(subs *subscribers) []*entry {
		var out []*entry
		for pair := subs.Oldest(); pair != nil; pair = pair.Next() {
			if reflect.TypeOf(pair.Key) == targetType {
				out = append(out, pair.Value)
			}
		}
		return out
	})
}

func (r *Registry) collect(op string, messageType reflect.Type, match func(*subscribers) []*entry) (out []Record) {
	r.mu.Lock()
	defer r.release(op)

	subs, ok := r.types.Get(messageType)
	if !ok {
		return nil
	}
	for _, e := range match(subs) {
		out = append(out, e.records...)
	}
	return out
}

// Count returns how many callbacks subscriber has registered across all types.
func (r *Registry) Count(subscriber any) (n int) {
	r.mu.Lock()
	defer r.release("count")

	for pair := r.types.Oldest(); pair != nil; pair = pair.Next() {
		if e, ok := pair.Value.Get(subscriber); ok {
			n += len(e.records)
		}
	}
	return n
}

// Types returns the message types that have ever been subscribed to, in the order
// they were first seen. A type stays listed after its last subscriber left.
func (r *Registry) Types() (out []reflect.Type) {
	r.mu.Lock()
	defer r.release("types")

	out = make([]reflect.Type, 0, r.types.Len())
	for pair := r.types.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// Subscribers returns how many subscribers currently hold an entry for messageType.
func (r *Registry) Subscribers(messageType reflect.Type) int {
	r.mu.Lock()
	defer r.release("subscribers")

	if subs, ok := r.types.Get(messageType); ok {
		return subs.Len()
	}
	return 0
}
