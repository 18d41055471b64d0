package stats

import (
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	c := New()

	_, ok := c.Get("messages.Text")
	assert.False(t, ok)

	c.Published("messages.Text")
	c.Delivered("messages.Text")
	c.Delivered("messages.Text")
	c.Fault("messages.Text")
	c.Published("messages.ObjectRelay")
	c.Unmatched("messages.ObjectRelay")

	text, ok := c.Get("messages.Text")
	require.True(t, ok)
	assert.Equal(t, Snapshot{Published: 1, Delivered: 2, Faults: 1}, text)

	all := c.Snapshot()
	assert.Len(t, all, 2)
	assert.Equal(t, Snapshot{Published: 1, Unmatched: 1}, all["messages.ObjectRelay"])
}

func TestCountersConcurrent(t *testing.T) {
	c := New()

	const workers = 8
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Delivered("hot")
			}
		}()
	}
	wg.Wait()

	snap, ok := c.Get("hot")
	require.True(t, ok)
	assert.Equal(t, uint64(workers*1000), snap.Delivered)
}

type sample struct{}

func TestKey(t *testing.T) {
	tests := []struct {
		name string
		typ  reflect.Type
		want string
	}{
		{"named", reflect.TypeFor[sample](), "github.com/casualjim/courier/internal/stats.sample"},
		{"pointer", reflect.TypeFor[*sample](), "*github.com/casualjim/courier/internal/stats.sample"},
		{"builtin", reflect.TypeFor[int](), "int"},
		{"unnamed", reflect.TypeFor[[]sample](), "[]stats.sample"},
		{"nil", nil, "<nil>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Key(tt.typ))
		})
	}
}
