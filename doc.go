/*
Package courier is an in-process publish/subscribe broker. Components send each other
typed messages without holding references to one another: a subscriber registers a
callback for a message type, a publisher hands a message to the broker, and the broker
routes it to every callback registered for exactly that type.

# Basic Usage

	b := courier.New()

	h := courier.Subscribe(b, view, func(m messages.Text) {
		fmt.Println(m.Text)
	})

	courier.Publish(b, messages.NewText("Hello", controller))

	// later
	b.UnsubscribeCallback(view, h)
	b.UnsubscribeAll(view)

Messages are any type implementing messages.Message. Routing uses the exact dynamic type
of the published value: a subscription to messages.Text does not see a type embedding
messages.Text, nor *messages.Text.

# Targeting

Publishing can be narrowed to one subscriber identity with PublishTo, or to subscribers
of one exact dynamic type with PublishToType and PublishToTypeOf. Subscriber identity is
Go equality, so subscribers are usually pointers. A subscriber value that is not
comparable cannot be registered; the attempt is reported as a fault and the broker
keeps working.

# Dispatch Modes

Every callback carries a mode chosen at subscription time, and every publish carries one
for the resolve-and-fan-out step:

  - dispatch.Current runs on the publishing goroutine, before Publish returns.
  - dispatch.New runs on a fresh goroutine; Publish does not wait.
  - dispatch.Affinity runs on the affinity context given with WithAffinity or
    Broker.SetAffinity, typically an affinity.Loop. Without one it degrades to
    Current and logs a warning once.

# Faults

A panicking callback never stops delivery to the others. The broker recovers it, logs
it, counts it and reports it as a *Fault to the handler from WithFaultHandler and to the
hooks. With the Propagate policy the fault is then raised as a panic, see FaultPolicy.

# Lifetime

The broker keeps every callback until it is unsubscribed. A subscriber that goes out of
use must unsubscribe, otherwise it stays reachable and keeps receiving messages.
*/
package courier
