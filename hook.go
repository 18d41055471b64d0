package courier

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/casualjim/courier/dispatch"
	"github.com/casualjim/courier/messages"
	"github.com/casualjim/courier/pkg/slogx"
	"github.com/go-openapi/strfmt"
	"github.com/goccy/go-json"
	"github.com/tidwall/sjson"
)

// PublishEvent is reported once per publish, after its callbacks were resolved.
type PublishEvent struct {
	MessageType string           `json:"message_type"`
	Target      string           `json:"target,omitempty"`
	Mode        dispatch.Mode    `json:"mode"`
	Matched     int              `json:"matched"`
	Message     messages.Message `json:"message"`
	Timestamp   strfmt.DateTime  `json:"timestamp"`
}

// DeliverEvent is reported after a callback returned normally.
type DeliverEvent struct {
	MessageType string          `json:"message_type"`
	Subscriber  string          `json:"subscriber"`
	Handle      string          `json:"handle"`
	Mode        dispatch.Mode   `json:"mode"`
	Timestamp   strfmt.DateTime `json:"timestamp"`
}

// Hook observes the broker. Hooks run on the goroutine doing the work they report,
// so they must be quick and safe for concurrent use.
type Hook interface {
	OnPublish(PublishEvent)
	OnDeliver(DeliverEvent)
	OnFault(*Fault)
}

// LoggingHook returns a hook that logs publishes and deliveries at debug level and
// faults at error level. Events are rendered as JSON records under the "event" key.
func LoggingHook(logger *slog.Logger) Hook {
	if logger == nil {
		logger = slog.Default()
	}
	return &loggingHook{logger: logger.With(slogx.LoggerName("courier.trace"))}
}

type loggingHook struct {
	logger *slog.Logger
}

func (h *loggingHook) OnPublish(e PublishEvent) {
	h.logger.Debug("published", slog.String("event", renderPublish(e)))
}

func (h *loggingHook) OnDeliver(e DeliverEvent) {
	b, err := json.Marshal(e)
	if err != nil {
		h.logger.Debug("delivered", slog.String("message_type", e.MessageType), slog.String("subscriber", e.Subscriber))
		return
	}
	h.logger.Debug("delivered", slog.String("event", string(b)))
}

func (h *loggingHook) OnFault(f *Fault) {
	h.logger.Error("fault",
		slogx.Error(f),
		slog.String("op", f.Op),
		slogx.Type("message_type", f.MessageType),
		slogx.TypeOf("subscriber", f.Subscriber),
	)
}

// renderPublish encodes the event as JSON. Payloads that cannot be encoded (a relayed
// channel or func, for example) are replaced by their %+v rendering.
func renderPublish(e PublishEvent) string {
	msg := e.Message
	e.Message = nil

	record, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf("%+v", e)
	}
	out := string(record)

	if payload, err := json.Marshal(msg); err == nil {
		out, _ = sjson.SetRaw(out, "message", string(payload))
	} else {
		out, _ = sjson.Set(out, "message", fmt.Sprintf("%+v", msg))
	}
	if msg != nil && msg.Publisher() != nil {
		out, _ = sjson.Set(out, "publisher", fmt.Sprintf("%T", msg.Publisher()))
	}
	return out
}

// NewCompositeHook combines hooks into one.
func NewCompositeHook(hooks ...Hook) Hook {
	return CompositeHook(hooks)
}

// CompositeHook calls each of its hooks in order.
type CompositeHook []Hook

func (c CompositeHook) OnPublish(e PublishEvent) {
	for h := range slices.Values(c) {
		h.OnPublish(e)
	}
}

func (c CompositeHook) OnDeliver(e DeliverEvent) {
	for h := range slices.Values(c) {
		h.OnDeliver(e)
	}
}

func (c CompositeHook) OnFault(f *Fault) {
	for h := range slices.Values(c) {
		h.OnFault(f)
	}
}
