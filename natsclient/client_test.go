package natsclient

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/opflow/errors"
	"github.com/c360/opflow/metric"
	"github.com/c360/opflow/pkg/retry"
)

// unreachable refuses connections immediately.
const unreachable = "nats://127.0.0.1:1"

func fastRetry(attempts int) retry.Config {
	return retry.Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestNewClient(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", client.URL())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.False(t, client.IsHealthy())
	assert.Nil(t, client.Conn())
}

func TestNewClient_Invalid(t *testing.T) {
	t.Run("empty url", func(t *testing.T) {
		_, err := NewClient("")
		assert.ErrorIs(t, err, errors.ErrMissingConfig)
	})

	t.Run("non-positive timeout", func(t *testing.T) {
		_, err := NewClient("nats://localhost:4222", WithTimeout(0))
		assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		assert.True(t, errors.IsInvalid(err))
	})
}

func TestConnectionStatus_String(t *testing.T) {
	tests := []struct {
		status ConnectionStatus
		want   string
	}{
		{StatusDisconnected, "disconnected"},
		{StatusConnecting, "connecting"},
		{StatusConnected, "connected"},
		{StatusReconnecting, "reconnecting"},
		{ConnectionStatus(42), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestConnectionOptions(t *testing.T) {
	base, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	full, err := NewClient("nats://localhost:4222",
		WithCredentials("user", "secret"),
		WithToken("token"),
		WithName("opflow-test"),
		WithTLS(&tls.Config{MinVersion: tls.VersionTLS12}),
	)
	require.NoError(t, err)

	assert.Len(t, full.ConnectionOptions(), len(base.ConnectionOptions())+4)

	t.Run("nil tls config is ignored", func(t *testing.T) {
		plain, err := NewClient("nats://localhost:4222", WithTLS(nil))
		require.NoError(t, err)
		assert.Len(t, plain.ConnectionOptions(), len(base.ConnectionOptions()))
	})

	t.Run("username without password is ignored", func(t *testing.T) {
		partial, err := NewClient("nats://localhost:4222", WithCredentials("user", ""))
		require.NoError(t, err)
		assert.Len(t, partial.ConnectionOptions(), len(base.ConnectionOptions()))
	})
}

func TestClient_NotConnected(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.ErrorIs(t, client.Publish(context.Background(), "a.b", []byte("x")), ErrNotConnected)
	assert.ErrorIs(t, client.Flush(time.Second), ErrNotConnected)

	_, err = client.SubscribeSync("a.b")
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = client.RTT()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConnect_Unreachable(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	var retries atomic.Int32

	cfg := fastRetry(3)
	cfg.OnRetry = func(int, error, time.Duration) { retries.Add(1) }

	client, err := NewClient(unreachable,
		WithRetry(cfg),
		WithTimeout(200*time.Millisecond),
		WithMetrics(registry),
	)
	require.NoError(t, err)

	err = client.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNoConnection)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, int32(2), retries.Load())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.Equal(t, float64(0), testutil.ToFloat64(registry.CoreMetrics().NATSConnected))
}

func TestConnect_RetryPolicy(t *testing.T) {
	policy := errors.RetryConfig{
		MaxRetries:    2,
		InitialDelay:  time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		BackoffFactor: 2,
	}
	var retries atomic.Int32
	cfg := policy.ToRetryConfig()
	cfg.OnRetry = func(int, error, time.Duration) { retries.Add(1) }

	client, err := NewClient(unreachable, WithRetry(cfg), WithTimeout(200*time.Millisecond))
	require.NoError(t, err)

	err = client.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNoConnection)
	assert.Equal(t, int32(2), retries.Load())
}

func TestClassifyConnectError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, classifyConnectError(nil))
	})

	t.Run("refused dial is transient", func(t *testing.T) {
		err := classifyConnectError(nats.ErrNoServers)
		assert.ErrorIs(t, err, errors.ErrNoConnection)
		assert.ErrorIs(t, err, nats.ErrNoServers)
		assert.True(t, errors.IsTransient(err))
	})

	for _, cause := range []error{nats.ErrAuthorization, nats.ErrAuthExpired, nats.ErrSecureConnRequired} {
		t.Run(cause.Error(), func(t *testing.T) {
			err := classifyConnectError(cause)
			assert.ErrorIs(t, err, cause)
			assert.True(t, errors.IsInvalid(err))
			assert.False(t, errors.IsTransient(err))
			assert.False(t, errors.DefaultRetryConfig().ShouldRetry(err, 0))
		})
	}
}

func TestConnect_ContextCancelled(t *testing.T) {
	client, err := NewClient(unreachable,
		WithRetry(retry.Config{MaxAttempts: 100, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second}),
		WithTimeout(200*time.Millisecond),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = client.Connect(ctx)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClose(t *testing.T) {
	client, err := NewClient("nats://localhost:4222", WithCredentials("user", "secret"))
	require.NoError(t, err)

	require.NoError(t, client.Close(context.Background()))
	require.NoError(t, client.Close(context.Background()))

	assert.Empty(t, client.username)
	assert.Empty(t, client.password)
	assert.ErrorIs(t, client.Connect(context.Background()), ErrClosed)
}
