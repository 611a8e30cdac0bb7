//go:build integration

package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/opflow/metric"
)

func TestIntegration_Connect(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	tc := NewTestClient(t, WithMetrics(registry))

	assert.True(t, tc.Client.IsHealthy())
	assert.Equal(t, StatusConnected, tc.Client.Status())
	assert.Equal(t, float64(1), testutil.ToFloat64(registry.CoreMetrics().NATSConnected))

	rtt, err := tc.Client.RTT()
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))

	require.NoError(t, tc.Client.Close(context.Background()))
	assert.Equal(t, float64(0), testutil.ToFloat64(registry.CoreMetrics().NATSConnected))
}

func TestIntegration_PublishSubscribeSync(t *testing.T) {
	tc := NewTestClient(t)
	peer := tc.Peer(t)

	sub, err := tc.Client.SubscribeSync("opflow.test")
	require.NoError(t, err)
	assert.Equal(t, "opflow.test", sub.Subject())

	t.Run("timeout returns no data", func(t *testing.T) {
		data, err := sub.Next(20 * time.Millisecond)
		require.NoError(t, err)
		assert.Nil(t, data)
	})

	t.Run("messages arrive in order", func(t *testing.T) {
		ctx := context.Background()
		for _, m := range []string{"one", "two", "three"} {
			require.NoError(t, peer.Publish(ctx, "opflow.test", []byte(m)))
		}
		require.NoError(t, peer.Flush(time.Second))

		var got []string
		for len(got) < 3 {
			data, err := sub.Next(time.Second)
			require.NoError(t, err)
			require.NotNil(t, data)
			got = append(got, string(data))
		}
		assert.Equal(t, []string{"one", "two", "three"}, got)
	})

	t.Run("closed client ends the subscription", func(t *testing.T) {
		require.NoError(t, tc.Client.Close(context.Background()))
		_, err := sub.Next(20 * time.Millisecond)
		assert.Error(t, err)
	})
}
