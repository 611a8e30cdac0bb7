package cache

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/opflow/metric"
)

func TestCacheMetricsIntegration(t *testing.T) {
	registry := metric.NewMetricsRegistry()

	c, err := New(
		WithMetrics[string](registry, "test_cache"),
		WithSizer(lenSizer),
		WithMaxObjects[string](1),
	)
	require.NoError(t, err)

	_, _ = c.Set("key1", "value1")
	_, _ = c.Set("key2", "value22")
	_, found := c.Get("key2")
	assert.True(t, found)
	_, found = c.Get("key1")
	assert.False(t, found)

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	byName := make(map[string]*dto.MetricFamily)
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}

	labeled := func(name, label string) float64 {
		mf := byName[name]
		require.NotNil(t, mf, name)
		for _, m := range mf.Metric {
			for _, lp := range m.Label {
				if lp.GetValue() == label {
					return m.GetCounter().GetValue()
				}
			}
		}
		return 0
	}
	gauge := func(name string) float64 {
		mf := byName[name]
		require.NotNil(t, mf, name)
		return mf.Metric[0].GetGauge().GetValue()
	}

	t.Run("lookups", func(t *testing.T) {
		assert.Equal(t, 1.0, labeled("opflow_cache_lookups_total", "hit"))
		assert.Equal(t, 1.0, labeled("opflow_cache_lookups_total", "miss"))
	})
	t.Run("stores and removals", func(t *testing.T) {
		assert.Equal(t, 2.0, labeled("opflow_cache_stores_total", "insert"))
		assert.Equal(t, 1.0, labeled("opflow_cache_removals_total", string(evictObjects)))
		assert.Zero(t, labeled("opflow_cache_removals_total", string(evictBytes)))
	})
	t.Run("gauges", func(t *testing.T) {
		assert.Equal(t, 1.0, gauge("opflow_cache_entries"))
		assert.Equal(t, 7.0, gauge("opflow_cache_bytes"))
	})
	t.Run("component label", func(t *testing.T) {
		for _, m := range byName["opflow_cache_lookups_total"].Metric {
			labels := make(map[string]string)
			for _, lp := range m.Label {
				labels[lp.GetName()] = lp.GetValue()
			}
			assert.Equal(t, "test_cache", labels["component"])
		}
	})
}

func TestCacheMetrics_DuplicatePrefix(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	_, err := New(WithMetrics[int](registry, "dup"))
	require.NoError(t, err)
	_, err = New(WithMetrics[int](registry, "dup"))
	assert.Error(t, err)
}

func TestCacheWithoutMetrics(t *testing.T) {
	c, err := New[string]()
	require.NoError(t, err)
	assert.Nil(t, c.metrics)
	assert.NotNil(t, c.stats)
}
