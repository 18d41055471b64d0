package dispatch

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingAffinity runs work on a single goroutine and records how often it was used.
type recordingAffinity struct {
	mu    sync.Mutex
	calls int
	work  chan func()
	err   error
}

func newRecordingAffinity() *recordingAffinity {
	a := &recordingAffinity{work: make(chan func())}
	go func() {
		for fn := range a.work {
			fn()
		}
	}()
	return a
}

func (a *recordingAffinity) Invoke(fn func()) error {
	a.mu.Lock()
	a.calls++
	err := a.err
	a.mu.Unlock()
	if err != nil {
		return err
	}
	done := make(chan struct{})
	a.work <- func() {
		defer close(done)
		fn()
	}
	<-done
	return nil
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		policy   Policy
		mode     Mode
		expected Action
	}{
		{"current", Policy{}, Current, Inline},
		{"new", Policy{}, New, Worker},
		{"affinity without context", Policy{}, Affinity, InlineFallback},
		{"affinity with context", Policy{Affinity: newRecordingAffinity()}, Affinity, Marshal},
		{"unknown mode", Policy{}, Mode(42), Inline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.policy.Resolve(tt.mode))
		})
	}
}

func TestExecuteCurrent(t *testing.T) {
	ran := false
	action, err := Policy{}.Execute(Current, func() { ran = true })
	require.NoError(t, err)
	assert.Equal(t, Inline, action)
	assert.True(t, ran, "current mode must run before Execute returns")
}

func TestExecuteNew(t *testing.T) {
	release := make(chan struct{})
	done := make(chan struct{})

	action, err := Policy{}.Execute(New, func() {
		<-release
		close(done)
	})
	require.NoError(t, err)
	assert.Equal(t, Worker, action)

	// Execute returned while the work is still blocked, so it runs elsewhere.
	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for worker")
	}
}

func TestExecuteAffinity(t *testing.T) {
	t.Run("marshals onto the context", func(t *testing.T) {
		aff := newRecordingAffinity()
		ran := false
		action, err := Policy{Affinity: aff}.Execute(Affinity, func() { ran = true })
		require.NoError(t, err)
		assert.Equal(t, Marshal, action)
		assert.True(t, ran, "affinity mode blocks until the work ran")
		assert.Equal(t, 1, aff.calls)
	})

	t.Run("falls back inline without a context", func(t *testing.T) {
		ran := false
		action, err := Policy{}.Execute(Affinity, func() { ran = true })
		require.NoError(t, err)
		assert.Equal(t, InlineFallback, action)
		assert.True(t, ran)
	})

	t.Run("falls back inline when unavailable", func(t *testing.T) {
		aff := newRecordingAffinity()
		aff.err = fmt.Errorf("loop stopped: %w", ErrAffinityUnavailable)
		ran := false
		action, err := Policy{Affinity: aff}.Execute(Affinity, func() { ran = true })
		require.NoError(t, err)
		assert.Equal(t, InlineFallback, action)
		assert.True(t, ran)
	})

	t.Run("returns other errors", func(t *testing.T) {
		aff := newRecordingAffinity()
		aff.err = errors.New("boom")
		ran := false
		action, err := Policy{Affinity: aff}.Execute(Affinity, func() { ran = true })
		require.Error(t, err)
		assert.Equal(t, Marshal, action)
		assert.False(t, ran)
	})
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input    string
		expected Mode
		wantErr  bool
	}{
		{"", Current, false},
		{"current", Current, false},
		{"NEW", New, false},
		{" affinity ", Affinity, false},
		{"dispatcher", Affinity, false},
		{"sideways", Current, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			mode, err := ParseMode(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, mode)
		})
	}
}

func TestModeText(t *testing.T) {
	for _, mode := range []Mode{Current, New, Affinity} {
		text, err := mode.MarshalText()
		require.NoError(t, err)

		var parsed Mode
		require.NoError(t, parsed.UnmarshalText(text))
		assert.Equal(t, mode, parsed)
	}
	assert.Equal(t, "mode(9)", Mode(9).String())
}
