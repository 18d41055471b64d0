package courier

import (
	"log/slog"
	"reflect"

	"github.com/casualjim/courier/dispatch"
	"github.com/casualjim/courier/internal/registry"
	"github.com/casualjim/courier/messages"
	"github.com/casualjim/courier/pkg/slogx"
)

var _ registry.Callback = handler[messages.Text]{}

// handler adapts a typed subscriber function to the registry's type-erased callback.
type handler[T messages.Message] struct {
	fn func(T)
}

func (h handler[T]) Accepts(msg any) bool {
	_, ok := msg.(T)
	return ok
}

func (h handler[T]) Invoke(msg any) {
	if m, ok := msg.(T); ok {
		h.fn(m)
	}
}

func modeOf(modes []Mode) Mode {
	if len(modes) == 0 {
		return dispatch.Current
	}
	return modes[0]
}

// Subscribe registers fn to receive every message of exactly type T, on behalf of
// subscriber. The optional mode (default dispatch.Current) selects where fn runs for
// each delivery. A subscriber may register any number of callbacks, also for the same
// type; they run in registration order.
//
// The broker holds on to fn until the subscriber unsubscribes. Subscribers that go out
// of use must call UnsubscribeAll, Unsubscribe or UnsubscribeCallback.
//
// The returned handle identifies this callback for UnsubscribeCallback. It is the zero
// handle when the subscription could not be recorded.
func Subscribe[T messages.Message](b *Broker, subscriber any, fn func(T), mode ...Mode) Handle {
	messageType := reflect.TypeFor[T]()
	if fn == nil {
		b.logger.Warn("ignoring subscription without a callback", slogx.Type("message_type", messageType))
		return Handle{}
	}
	if messageType.Kind() == reflect.Interface {
		b.logger.Warn("subscribing to an interface type, messages route by their concrete type and will not match",
			slogx.Type("message_type", messageType))
	}

	m := modeOf(mode)
	rec, ok := b.registry.Register(messageType, subscriber, handler[T]{fn: fn}, m)
	if !ok {
		return Handle{}
	}
	b.logger.Debug("subscribed",
		slogx.Type("message_type", messageType),
		slogx.TypeOf("subscriber", subscriber),
		slogx.Stringer("mode", m),
	)
	return Handle{id: rec.ID, messageType: messageType}
}

// Unsubscribe removes every callback subscriber registered for message type T.
// Unknown subscribers are ignored.
func Unsubscribe[T messages.Message](b *Broker, subscriber any) {
	messageType := reflect.TypeFor[T]()
	n := b.registry.UnregisterType(messageType, subscriber)
	b.logger.Debug("unsubscribed",
		slogx.Type("message_type", messageType),
		slogx.TypeOf("subscriber", subscriber),
		slog.Int("callbacks", n),
	)
}
