// Package messages defines the payload contract carried through the broker.
//
// A message is any value implementing Message. The broker routes a message by its
// own dynamic Go type, so two distinct struct types are always two distinct routes,
// even when one embeds the other. Messages are passed by value: every callback gets
// its own copy, and nothing in the broker retains a message after dispatch.
//
// Design decisions:
//   - Exact routing: no delivery to callbacks registered for an embedded type or an
//     interface the message satisfies
//   - Optional publisher: Base carries a reference to whoever published the message,
//     it is informational and never used for routing
//   - Plain values: define a message by embedding Base in a struct
//
// Example usage:
//
//	type SwitchView struct {
//	    messages.Base
//	    View string `json:"view"`
//	}
//
//	courier.Publish(b, SwitchView{Base: messages.From(vm), View: "settings"})
package messages
