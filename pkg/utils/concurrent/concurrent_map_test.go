package concurrent

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapConcurrentSet(t *testing.T) {
	m := NewMap[string, int](HashString, WithShardCount[string, int](4))
	var wg sync.WaitGroup
	for i := range 100 {
		wg.Go(func() { m.Set(fmt.Sprintf("k%03d", i), i) })
	}
	wg.Wait()
	require.Equal(t, 100, m.Count())
	v, ok := m.Get("k042")
	require.True(t, ok)
	require.Equal(t, 42, v)

	keys := SortedKeys(m)
	require.Equal(t, "k000", keys[0])
	require.Equal(t, "k099", keys[99])

	m.Clear()
	require.Zero(t, m.Count())
}

func TestMapSetIfAbsent(t *testing.T) {
	m := NewMap[string, string](HashString)
	v, stored := m.SetIfAbsent("a", "first")
	require.True(t, stored)
	require.Equal(t, "first", v)
	v, stored = m.SetIfAbsent("a", "second")
	require.False(t, stored)
	require.Equal(t, "first", v)
}
