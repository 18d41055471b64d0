package courier

import (
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"time"

	"github.com/casualjim/courier/dispatch"
	"github.com/casualjim/courier/internal/registry"
	"github.com/casualjim/courier/internal/stats"
	"github.com/casualjim/courier/messages"
	"github.com/casualjim/courier/pkg/slogx"
	"github.com/go-openapi/strfmt"
)

type routeKind uint8

const (
	routeAll routeKind = iota
	routeIdentity
	routeType
)

type route struct {
	kind     routeKind
	identity any
	typ      reflect.Type
}

func (t route) String() string {
	switch t.kind {
	case routeIdentity:
		return fmt.Sprintf("identity:%T", t.identity)
	case routeType:
		return fmt.Sprintf("type:%v", t.typ)
	default:
		return ""
	}
}

// Publish delivers msg to every callback subscribed to its exact type. Each callback
// runs according to the mode it was subscribed with; the optional mode here (default
// dispatch.Current) decides where resolving the callbacks and fanning out happens.
//
// Publishing a type nobody subscribed to does nothing.
func Publish[T messages.Message](b *Broker, msg T, mode ...Mode) {
	b.publish(msg, route{kind: routeAll}, modeOf(mode))
}

// PublishTo is Publish restricted to the callbacks registered by the subscriber
// identity target.
func PublishTo[T messages.Message](b *Broker, msg T, target any, mode ...Mode) {
	b.publish(msg, route{kind: routeIdentity, identity: target}, modeOf(mode))
}

// PublishToType is Publish restricted to callbacks registered by subscribers whose
// dynamic type is exactly targetType. A subscriber of type *T does not match T, and a
// struct embedding T does not match T.
func PublishToType[T messages.Message](b *Broker, msg T, targetType reflect.Type, mode ...Mode) {
	b.publish(msg, route{kind: routeType, typ: targetType}, modeOf(mode))
}

// PublishToTypeOf is PublishToType with the subscriber type given as type parameter S.
func PublishToTypeOf[S any, T messages.Message](b *Broker, msg T, mode ...Mode) {
	PublishToType(b, msg, reflect.TypeFor[S](), mode...)
}

func (b *Broker) publish(msg messages.Message, tgt route, mode Mode) {
	messageType := reflect.TypeOf(msg)
	if messageType == nil {
		b.logger.Debug("ignoring nil message")
		return
	}

	policy := b.policy()
	onAffinity := mode == dispatch.Affinity && policy.Affinity != nil
	action, err := policy.Execute(mode, func() {
		b.fanOut(policy, msg, messageType, tgt, mode, onAffinity)
	})
	if action == dispatch.InlineFallback {
		b.noteFallback(messageType)
	}
	if err != nil {
		b.logger.Error("publish failed on the affinity context", slogx.Error(err), slogx.Type("message_type", messageType))
		if b.faultPolicy == Propagate {
			panic(err)
		}
	}
}

func (b *Broker) resolve(messageType reflect.Type, tgt route) []registry.Record {
	switch tgt.kind {
	case routeIdentity:
		return b.registry.ResolveTarget(messageType, tgt.identity)
	case routeType:
		return b.registry.ResolveType(messageType, tgt.typ)
	default:
		return b.registry.Resolve(messageType)
	}
}

func (b *Broker) fanOut(policy dispatch.Policy, msg messages.Message, messageType reflect.Type, tgt route, mode Mode, onAffinity bool) {
	records := b.resolve(messageType, tgt)
	key := stats.Key(messageType)

	b.counters.Published(key)
	if b.hook != nil {
		b.observe(messageType, func() {
			b.hook.OnPublish(PublishEvent{
				MessageType: key,
				Target:      tgt.String(),
				Mode:        mode,
				Matched:     len(records),
				Message:     msg,
				Timestamp:   strfmt.DateTime(time.Now()),
			})
		})
	}
	if len(records) == 0 {
		b.counters.Unmatched(key)
		return
	}

	var faults []error
	for _, rec := range records {
		run := rec.Mode
		if onAffinity && run == dispatch.Affinity {
			// already on the affinity context, marshaling again would wait on ourselves
			run = dispatch.Current
		}

		var fault *Fault
		action, err := policy.Execute(run, func() {
			f := b.invoke(rec, msg)
			if f == nil {
				return
			}
			if rec.Mode == dispatch.New {
				// nobody waits for a worker, so propagating means panicking right here
				if b.faultPolicy == Propagate {
					panic(f)
				}
				return
			}
			fault = f
		})
		if action == dispatch.InlineFallback {
			b.noteFallback(messageType)
		}
		if err != nil {
			b.logger.Error("delivery failed on the affinity context",
				slogx.Error(err),
				slogx.Type("message_type", messageType),
				slogx.TypeOf("subscriber", rec.Subscriber),
			)
			faults = append(faults, err)
		}
		if fault != nil {
			faults = append(faults, fault)
		}
	}

	if len(faults) > 0 && b.faultPolicy == Propagate {
		if len(faults) == 1 {
			panic(faults[0])
		}
		panic(errors.Join(faults...))
	}
}

// invoke runs one callback and reports its delivery to the hooks. A failing callback
// never stops the remaining deliveries.
func (b *Broker) invoke(rec registry.Record, msg messages.Message) *Fault {
	delivered, fault := b.call(rec, msg)
	if delivered && b.hook != nil {
		b.observe(rec.MessageType, func() {
			b.hook.OnDeliver(DeliverEvent{
				MessageType: stats.Key(rec.MessageType),
				Subscriber:  fmt.Sprintf("%T", rec.Subscriber),
				Handle:      rec.ID.String(),
				Mode:        rec.Mode,
				Timestamp:   strfmt.DateTime(time.Now()),
			})
		})
	}
	return fault
}

// call runs the callback under its own recover.
func (b *Broker) call(rec registry.Record, msg messages.Message) (delivered bool, fault *Fault) {
	key := stats.Key(rec.MessageType)
	defer func() {
		if v := recover(); v != nil {
			fault = &Fault{
				Op:          opDeliver,
				MessageType: rec.MessageType,
				Subscriber:  rec.Subscriber,
				Handle:      rec.ID,
				Value:       v,
				Stack:       debug.Stack(),
			}
			b.counters.Fault(key)
			b.report(fault)
		}
	}()

	if !rec.Callback.Accepts(msg) {
		return false, nil
	}
	rec.Callback.Invoke(msg)
	b.counters.Delivered(key)
	return true, nil
}
