package courier

import (
	"log/slog"

	"github.com/casualjim/courier/dispatch"
	"github.com/fogfish/opts"
)

// Option configures a Broker created with New.
type Option = opts.Option[Broker]

var (
	// WithLogger sets the logger the broker reports subscriptions and faults to.
	WithLogger = opts.ForName[Broker, *slog.Logger]("logger")

	// WithAffinity sets the affinity context that Affinity mode marshals onto. It can
	// be replaced later with Broker.SetAffinity.
	WithAffinity = opts.ForName[Broker, dispatch.Executor]("affinity")

	// WithFaultPolicy selects between logging faults and propagating them.
	WithFaultPolicy = opts.ForName[Broker, FaultPolicy]("faultPolicy")
)

// WithFaultHandler registers fn to observe every fault, whatever the policy.
func WithFaultHandler(fn func(*Fault)) Option {
	return opts.Type[Broker](func(b *Broker) error {
		b.onFault = fn
		return nil
	})
}

// WithHook adds hooks that observe publishes, deliveries and faults.
func WithHook(hook Hook, extraHooks ...Hook) Option {
	return opts.Type[Broker](func(b *Broker) error {
		hooks := make(CompositeHook, 0, len(extraHooks)+2)
		if b.hook != nil {
			hooks = append(hooks, b.hook)
		}
		hooks = append(hooks, hook)
		hooks = append(hooks, extraHooks...)
		b.hook = hooks
		return nil
	})
}
