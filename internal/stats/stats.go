// Package stats keeps lock-free delivery counters per message type.
package stats

import (
	"reflect"
	"sync/atomic"

	"github.com/alphadose/haxmap"
)

// Snapshot is a point-in-time copy of the counters of one message type.
type Snapshot struct {
	// Published counts publish calls whose fan-out ran.
	Published uint64 `json:"published"`
	// Delivered counts callback invocations that returned normally.
	Delivered uint64 `json:"delivered"`
	// Unmatched counts publish calls that resolved no callback.
	Unmatched uint64 `json:"unmatched"`
	// Faults counts callback invocations that panicked.
	Faults uint64 `json:"faults"`
}

// Key names messageType by import path and name, so equally named types from
// different packages get separate counters.
func Key(messageType reflect.Type) string {
	switch {
	case messageType == nil:
		return "<nil>"
	case messageType.Name() != "" && messageType.PkgPath() != "":
		return messageType.PkgPath() + "." + messageType.Name()
	case messageType.Kind() == reflect.Pointer:
		return "*" + Key(messageType.Elem())
	default:
		return messageType.String()
	}
}

type counters struct {
	published atomic.Uint64
	delivered atomic.Uint64
	unmatched atomic.Uint64
	faults    atomic.Uint64
}

// Counters is safe for concurrent use.
type Counters struct {
	values *haxmap.Map[string, *counters]
}

func New() *Counters {
	return &Counters{values: haxmap.New[string, *counters]()}
}

func (c *Counters) of(key string) *counters {
	v, _ := c.values.GetOrCompute(key, func() *counters { return &counters{} })
	return v
}

func (c *Counters) Published(key string) { c.of(key).published.Add(1) }
func (c *Counters) Delivered(key string) { c.of(key).delivered.Add(1) }
func (c *Counters) Unmatched(key string) { c.of(key).unmatched.Add(1) }
func (c *Counters) Fault(key string)     { c.of(key).faults.Add(1) }

// Get returns the counters of key, false when nothing was recorded for it.
func (c *Counters) Get(key string) (Snapshot, bool) {
	v, ok := c.values.Get(key)
	if !ok {
		return Snapshot{}, false
	}
	return v.snapshot(), true
}

// Snapshot copies all counters.
func (c *Counters) Snapshot() map[string]Snapshot {
	out := make(map[string]Snapshot, c.values.Len())
	c.values.ForEach(func(key string, v *counters) bool {
		out[key] = v.snapshot()
		return true
	})
	return out
}

func (c *counters) snapshot() Snapshot {
	return Snapshot{
		Published: c.published.Load(),
		Delivered: c.delivered.Load(),
		Unmatched: c.unmatched.Load(),
		Faults:    c.faults.Load(),
	}
}
