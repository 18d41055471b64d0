package registry

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/casualjim/courier/dispatch"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type textMessage struct{ text string }

type otherMessage struct{}

type subscriber struct{ name string }

type derivedSubscriber struct{ subscriber }

// recordingCallback counts invocations and tags them with a label.
type recordingCallback struct {
	label string
	log   *[]string
}

func (c recordingCallback) Accepts(msg any) bool {
	_, ok := msg.(textMessage)
	return ok
}

func (c recordingCallback) Invoke(any) {
	*c.log = append(*c.log, c.label)
}

var (
	textType  = reflect.TypeFor[textMessage]()
	otherType = reflect.TypeFor[otherMessage]()
)

func labels(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Callback.(recordingCallback).label)
	}
	return out
}

func TestRegister(t *testing.T) {
	var log []string
	reg := New(nil)
	a := &subscriber{name: "a"}
	b := &subscriber{name: "b"}

	t.Run("creates one entry per subscriber", func(t *testing.T) {
		rec, ok := reg.Register(textType, a, recordingCallback{"a1", &log}, dispatch.Current)
		require.True(t, ok)
		assert.Same(t, a, rec.Subscriber)
		assert.Equal(t, textType, rec.MessageType)
		assert.NotEqual(t, uuid.Nil, rec.ID)

		_, ok = reg.Register(textType, a, recordingCallback{"a2", &log}, dispatch.New)
		require.True(t, ok)
		_, ok = reg.Register(textType, b, recordingCallback{"b1", &log}, dispatch.Current)
		require.True(t, ok)

		assert.Equal(t, 2, reg.Subscribers(textType))
		assert.Equal(t, 2, reg.Count(a))
	})

	t.Run("resolves in registration order", func(t *testing.T) {
		_, ok := reg.Register(textType, a, recordingCallback{"a3", &log}, dispatch.Current)
		require.True(t, ok)
		assert.Equal(t, []string{"a1", "a2", "a3", "b1"}, labels(reg.Resolve(textType)))
	})

	t.Run("keeps each record's mode", func(t *testing.T) {
		records := reg.ResolveTarget(textType, a)
		require.Len(t, records, 3)
		assert.Equal(t, dispatch.Current, records[0].Mode)
		assert.Equal(t, dispatch.New, records[1].Mode)
	})
}

func TestResolveFilters(t *testing.T) {
	var log []string
	reg := New(nil)
	a := &subscriber{name: "a"}
	b := &subscriber{name: "b"}
	d := &derivedSubscriber{}

	reg.Register(textType, a, recordingCallback{"a", &log}, dispatch.Current)
	reg.Register(textType, b, recordingCallback{"b", &log}, dispatch.Current)
	reg.Register(textType, d, recordingCallback{"d", &log}, dispatch.Current)
	reg.Register(otherType, a, recordingCallback{"other", &log}, dispatch.Current)

	t.Run("by identity", func(t *testing.T) {
		assert.Equal(t, []string{"b"}, labels(reg.ResolveTarget(textType, b)))
		assert.Empty(t, reg.ResolveTarget(textType, &subscriber{name: "b"}), "identity is pointer equality")
	})

	t.Run("by exact type", func(t *testing.T) {
		assert.Equal(t, []string{"a", "b"}, labels(reg.ResolveType(textType, reflect.TypeFor[*subscriber]())))
		assert.Equal(t, []string{"d"}, labels(reg.ResolveType(textType, reflect.TypeFor[*derivedSubscriber]())))
		assert.Empty(t, reg.ResolveType(textType, reflect.TypeFor[subscriber]()), "pointer and value types differ")
	})

	t.Run("by message type", func(t *testing.T) {
		assert.Equal(t, []string{"other"}, labels(reg.Resolve(otherType)))
		assert.Empty(t, reg.Resolve(reflect.TypeFor[int]()))
	})

	t.Run("value identities compare by value", func(t *testing.T) {
		reg.Register(textType, "named", recordingCallback{"named", &log}, dispatch.Current)
		assert.Equal(t, []string{"named"}, labels(reg.ResolveTarget(textType, "named")))
	})
}

func TestResolveReturnsSnapshot(t *testing.T) {
	var log []string
	reg := New(nil)
	a := &subscriber{name: "a"}
	reg.Register(textType, a, recordingCallback{"a1", &log}, dispatch.Current)

	snapshot := reg.Resolve(textType)
	reg.Register(textType, a, recordingCallback{"a2", &log}, dispatch.Current)
	reg.UnregisterAll(a)

	assert.Equal(t, []string{"a1"}, labels(snapshot))
	assert.Empty(t, reg.Resolve(textType))
}

func TestUnregister(t *testing.T) {
	var log []string

	t.Run("all types", func(t *testing.T) {
		reg := New(nil)
		a := &subscriber{name: "a"}
		b := &subscriber{name: "b"}
		reg.Register(textType, a, recordingCallback{"a1", &log}, dispatch.Current)
		reg.Register(otherType, a, recordingCallback{"a2", &log}, dispatch.Current)
		reg.Register(textType, b, recordingCallback{"b1", &log}, dispatch.Current)

		assert.Equal(t, 2, reg.UnregisterAll(a))
		assert.Equal(t, 0, reg.Count(a))
		assert.Equal(t, []string{"b1"}, labels(reg.Resolve(textType)))
		assert.Empty(t, reg.Resolve(otherType))
		assert.Equal(t, 0, reg.Subscribers(otherType))
		assert.Equal(t, []reflect.Type{textType, otherType}, reg.Types(), "type keys survive their last subscriber")
	})

	t.Run("unknown subscriber is a no-op", func(t *testing.T) {
		reg := New(nil)
		assert.Equal(t, 0, reg.UnregisterAll(&subscriber{}))
		assert.Equal(t, 0, reg.UnregisterType(textType, &subscriber{}))
		assert.False(t, reg.UnregisterCallback(&subscriber{}, uuid.New()))
	})

	t.Run("one type", func(t *testing.T) {
		reg := New(nil)
		a := &subscriber{name: "a"}
		reg.Register(textType, a, recordingCallback{"a1", &log}, dispatch.Current)
		reg.Register(textType, a, recordingCallback{"a2", &log}, dispatch.Current)
		reg.Register(otherType, a, recordingCallback{"a3", &log}, dispatch.Current)

		assert.Equal(t, 2, reg.UnregisterType(textType, a))
		assert.Equal(t, 0, reg.UnregisterType(textType, a), "double unsubscribe is a no-op")
		assert.Equal(t, []string{"a3"}, labels(reg.Resolve(otherType)))
	})

	t.Run("one callback", func(t *testing.T) {
		reg := New(nil)
		a := &subscriber{name: "a"}
		first, _ := reg.Register(textType, a, recordingCallback{"a1", &log}, dispatch.Current)
		second, _ := reg.Register(textType, a, recordingCallback{"a2", &log}, dispatch.Current)

		assert.True(t, reg.UnregisterCallback(a, first.ID))
		assert.Equal(t, []string{"a2"}, labels(reg.Resolve(textType)))
		assert.Equal(t, 1, reg.Subscribers(textType))

		assert.True(t, reg.UnregisterCallback(a, second.ID))
		assert.Equal(t, 0, reg.Subscribers(textType), "empty entry is removed")
		assert.False(t, reg.UnregisterCallback(a, second.ID))
	})

	t.Run("callback of another subscriber", func(t *testing.T) {
		reg := New(nil)
		a := &subscriber{name: "a"}
		b := &subscriber{name: "b"}
		rec, _ := reg.Register(textType, a, recordingCallback{"a1", &log}, dispatch.Current)

		assert.False(t, reg.UnregisterCallback(b, rec.ID))
		assert.Len(t, reg.Resolve(textType), 1)
	})
}

func TestFaultsAreRecovered(t *testing.T) {
	var (
		log    []string
		faults []string
	)
	reg := New(func(op string, recovered any) {
		faults = append(faults, op)
	})

	unhashable := []int{1, 2, 3}
	_, ok := reg.Register(textType, unhashable, recordingCallback{"bad", &log}, dispatch.Current)
	assert.False(t, ok)
	assert.Empty(t, reg.ResolveTarget(textType, unhashable))
	assert.Equal(t, []string{"register", "resolve_target"}, faults)

	// the lock was released and the registry still works
	a := &subscriber{name: "a"}
	_, ok = reg.Register(textType, a, recordingCallback{"a1", &log}, dispatch.Current)
	require.True(t, ok)
	assert.Equal(t, []string{"a1"}, labels(reg.Resolve(textType)))
}

func TestReporterRunsWithoutTheLock(t *testing.T) {
	var (
		reg    *Registry
		counts []int
	)
	reg = New(func(op string, recovered any) {
		counts = append(counts, reg.Count(&subscriber{}), len(reg.Types()))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		var log []string
		_, ok := reg.Register(textType, map[string]int{}, recordingCallback{"bad", &log}, dispatch.Current)
		assert.False(t, ok)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reporter could not call back into the registry")
	}
	assert.Equal(t, []int{0, 1}, counts)
}

func TestReporterMayPanic(t *testing.T) {
	reg := New(func(op string, recovered any) {
		panic(fmt.Sprintf("%s: %v", op, recovered))
	})

	var log []string
	assert.Panics(t, func() {
		reg.Register(textType, []int{1}, recordingCallback{"bad", &log}, dispatch.Current)
	})

	a := &subscriber{name: "a"}
	_, ok := reg.Register(textType, a, recordingCallback{"a1", &log}, dispatch.Current)
	require.True(t, ok)
	assert.Equal(t, 1, reg.Subscribers(textType))
}

func TestConcurrentAccess(t *testing.T) {
	var log []string
	reg := New(nil)

	const workers = 16
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			s := &subscriber{}
			for j := 0; j < 50; j++ {
				rec, ok := reg.Register(textType, s, recordingCallback{"x", &log}, dispatch.Current)
				assert.True(t, ok)
				_ = reg.Resolve(textType)
				if j%2 == 0 {
					reg.UnregisterCallback(s, rec.ID)
				}
			}
			assert.Equal(t, 25, reg.Count(s))
			reg.UnregisterAll(s)
		}()
	}
	wg.Wait()

	assert.Empty(t, reg.Resolve(textType))
	assert.Equal(t, 0, reg.Subscribers(textType))
}
