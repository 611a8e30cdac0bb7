package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/opflow/errors"
)

func lenSizer(s string) int64 { return int64(len(s)) }

func TestLRU_GetSet(t *testing.T) {
	c, err := New[string]()
	require.NoError(t, err)

	created, err := c.Set("a", "1")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = c.Set("a", "2")
	require.NoError(t, err)
	assert.False(t, created)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "2", v)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	_, err = c.Set("", "x")
	assert.ErrorIs(t, err, errors.ErrInvalidData)

	assert.Equal(t, int64(1), c.Stats().Hits())
	assert.Equal(t, int64(1), c.Stats().Misses())
	assert.Equal(t, 0.5, c.Stats().HitRatio())
}

func TestLRU_ObjectBudget(t *testing.T) {
	var evicted []string
	c, err := New(
		WithMaxObjects[int](2),
		WithEvictionCallback(func(key string, _ int) { evicted = append(evicted, key) }),
	)
	require.NoError(t, err)

	_, _ = c.Set("a", 1)
	_, _ = c.Set("b", 2)
	_, _ = c.Get("a")
	_, _ = c.Set("c", 3)

	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, []string{"c", "a"}, c.Keys())
	assert.Equal(t, int64(1), c.Stats().Evictions())
}

func TestLRU_ByteBudget(t *testing.T) {
	t.Run("evicts least recently used until within budget", func(t *testing.T) {
		c, err := New(WithMaxBytes[string](10), WithSizer(lenSizer))
		require.NoError(t, err)

		_, _ = c.Set("a", "xxxx")
		_, _ = c.Set("b", "yyyy")
		assert.Equal(t, int64(8), c.Bytes())

		_, _ = c.Set("c", "zzzz")
		assert.False(t, c.Contains("a"))
		assert.True(t, c.Contains("b"))
		assert.True(t, c.Contains("c"))
		assert.Equal(t, int64(8), c.Bytes())
	})

	t.Run("touch protects an entry", func(t *testing.T) {
		c, err := New(WithMaxBytes[string](10), WithSizer(lenSizer))
		require.NoError(t, err)

		_, _ = c.Set("a", "xxxx")
		_, _ = c.Set("b", "yyyy")
		_, _ = c.Get("a")
		_, _ = c.Set("c", "zzzz")
		assert.True(t, c.Contains("a"))
		assert.False(t, c.Contains("b"))
	})

	t.Run("oversized entry does not stay", func(t *testing.T) {
		c, err := New(WithMaxBytes[string](10), WithSizer(lenSizer))
		require.NoError(t, err)

		_, _ = c.Set("a", "xx")
		_, _ = c.Set("huge", "0123456789abc")
		assert.Equal(t, 0, c.Len())
		assert.Equal(t, int64(0), c.Bytes())
	})

	t.Run("update adjusts size", func(t *testing.T) {
		c, err := New(WithMaxBytes[string](10), WithSizer(lenSizer))
		require.NoError(t, err)

		_, _ = c.Set("a", "xx")
		_, _ = c.Set("a", "xxxxxx")
		assert.Equal(t, int64(6), c.Bytes())
		assert.Equal(t, int64(6), c.Stats().Bytes())
	})
}

func TestLRU_PeekDoesNotTouch(t *testing.T) {
	c, err := New(WithMaxObjects[int](2))
	require.NoError(t, err)

	_, _ = c.Set("a", 1)
	_, _ = c.Set("b", 2)
	v, ok := c.Peek("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	_, _ = c.Set("c", 3)
	assert.False(t, c.Contains("a"))
	assert.Equal(t, int64(0), c.Stats().Hits())
}

func TestLRU_DeleteAndClear(t *testing.T) {
	var evicted []string
	c, err := New(
		WithSizer(func(int) int64 { return 4 }),
		WithEvictionCallback(func(key string, _ int) { evicted = append(evicted, key) }),
	)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _ = c.Set(fmt.Sprint(i), i)
	}
	ok, err := c.Delete("1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = c.Delete("1")
	assert.False(t, ok)
	assert.Equal(t, int64(8), c.Bytes())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Bytes())
	assert.Equal(t, []string{"1", "0", "2"}, evicted)
}

func TestLRU_Statistics(t *testing.T) {
	c, err := New(WithMaxObjects[string](3), WithMaxBytes[string](10), WithSizer(lenSizer))
	require.NoError(t, err)

	_, _ = c.Set("a", "xxx")
	_, _ = c.Set("b", "xxx")
	_, _ = c.Set("a", "xxxx")
	_, _ = c.Set("c", "xxx")
	_, _ = c.Set("d", "xxxxx")
	_, _ = c.Set("e", "x")
	_, _ = c.Delete("e")

	stats := c.Stats()
	t.Run("stores", func(t *testing.T) {
		assert.Equal(t, int64(5), stats.Inserts())
		assert.Equal(t, int64(1), stats.Updates())
		assert.Equal(t, int64(1), stats.Deletes())
	})
	t.Run("evictions by budget", func(t *testing.T) {
		assert.Equal(t, int64(2), stats.Evictions())
		assert.Equal(t, int64(1), stats.ByteEvictions())
	})
	t.Run("sizes and peaks", func(t *testing.T) {
		assert.Equal(t, int64(c.Len()), stats.Entries())
		assert.Equal(t, c.Bytes(), stats.Bytes())
		assert.Equal(t, int64(3), stats.PeakEntries())
		assert.Equal(t, int64(10), stats.PeakBytes())
	})
	t.Run("hit ratio without lookups", func(t *testing.T) {
		assert.Zero(t, stats.HitRatio())
	})
}

func TestLRU_NegativeBudget(t *testing.T) {
	_, err := New(WithMaxObjects[int](-1))
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestLRU_Concurrent(t *testing.T) {
	c, err := New(WithMaxObjects[int](50))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("%d-%d", g, i%70)
				_, _ = c.Set(key, i)
				_, _ = c.Get(key)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, int64(2*1024*1024), cfg.MaxBytes)
	assert.Zero(t, cfg.MaxObjects)
	require.NoError(t, cfg.Validate())

	assert.ErrorIs(t, Config{MaxBytes: -1}.Validate(), errors.ErrInvalidConfig)
	assert.ErrorIs(t, Config{MaxObjects: -1}.Validate(), errors.ErrInvalidConfig)

	c, err := NewFromConfig(Config{MaxBytes: 10}, lenSizer)
	require.NoError(t, err)
	_, _ = c.Set("a", "0123456789")
	_, _ = c.Set("b", "x")
	assert.Equal(t, []string{"b"}, c.Keys())

	_, err = NewFromConfig(Config{MaxObjects: -3}, lenSizer)
	assert.Error(t, err)
}
