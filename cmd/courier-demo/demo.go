package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/casualjim/courier"
	"github.com/casualjim/courier/dispatch"
	"github.com/casualjim/courier/messages"
	"github.com/fatih/color"
)

// switchView asks the UI to show another view.
type switchView struct {
	messages.Base
	View string `json:"view"`
}

type console struct {
	mu sync.Mutex
	w  io.Writer
}

func (c *console) printf(who, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "%s: %s\n", color.MagentaString(who), fmt.Sprintf(format, args...))
}

// responder answers every text it receives on a worker goroutine.
type responder struct {
	out     *console
	replies sync.WaitGroup
}

func (r *responder) subscribe(b *courier.Broker) {
	courier.Subscribe(b, r, func(m messages.Text) {
		defer r.replies.Done()
		r.out.printf("Responder", "received %q, answering from a worker", m.Text)
	}, dispatch.New)
}

// listener subscribes, listens for a while and unsubscribes again.
type listener struct {
	name string
	out  *console
}

func (l *listener) subscribe(b *courier.Broker) courier.Handle {
	return courier.Subscribe(b, l, func(m messages.Text) {
		l.out.printf(l.name, "got %q", m.Text)
	})
}

// window stands in for a UI component; its callbacks run on the UI loop.
type window struct {
	out     *console
	current string
}

func (w *window) subscribe(b *courier.Broker) {
	courier.Subscribe(b, w, func(m switchView) {
		w.current = m.View
		w.out.printf("Window", "switched to %s", color.CyanString(m.View))
	}, dispatch.Affinity)
	courier.Subscribe(b, w, func(m messages.ObjectRelay) {
		w.out.printf("Window", "relayed %v", m.Object)
	}, dispatch.Affinity)
}

func run(ctx context.Context, b *courier.Broker, w io.Writer) error {
	out := &console{w: w}
	resp := &responder{out: out}
	first := &listener{name: "Listener A", out: out}
	second := &listener{name: "Listener B", out: out}
	win := &window{out: out}

	resp.subscribe(b)
	first.subscribe(b)
	h := second.subscribe(b)
	win.subscribe(b)

	// untargeted: responder and both listeners
	resp.replies.Add(1)
	courier.Publish(b, messages.NewText("Hello.", nil))

	// identity-targeted: only the first listener
	courier.PublishTo(b, messages.NewText("just for A", nil), first)

	// type-targeted: every *listener
	courier.PublishToTypeOf[*listener](b, messages.NewText("all listeners", nil))

	second.out.printf("Listener B", "unsubscribing")
	b.UnsubscribeCallback(second, h)
	resp.replies.Add(1)
	courier.Publish(b, messages.NewText("B is gone", nil))

	courier.Publish(b, switchView{Base: messages.From(first), View: "settings"})
	courier.Publish(b, messages.NewObjectRelay([]string{"a", "b"}, nil), dispatch.Affinity)

	// nobody is subscribed to a message of this type
	courier.PublishTo(b, messages.NewText("nobody home", nil), &listener{})

	done := make(chan struct{})
	go func() {
		resp.replies.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("responder did not answer in time")
	}

	b.UnsubscribeAll(resp)
	b.UnsubscribeAll(first)
	b.UnsubscribeAll(win)
	return nil
}
