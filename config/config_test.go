package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/opflow/errors"
	"github.com/c360/opflow/pkg/buffer"
	"github.com/c360/opflow/pkg/cache"
	"github.com/c360/opflow/pkg/tlsutil"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.Runtime.QueueCapacity)
	assert.Equal(t, buffer.Block, cfg.Runtime.QueuePolicy())
	assert.True(t, cfg.Runtime.HaltOnFault)
	assert.Equal(t, int64(cache.DefaultMaxBytes), cfg.Cache.MaxBytes)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.False(t, cfg.NATS.Enabled)
	assert.Equal(t, 2*time.Second, cfg.NATS.ReconnectWait)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_DefaultsRoundTrip(t *testing.T) {
	loader := NewLoader()
	loader.lookupEnv = func(string) (string, bool) { return "", false }

	got, err := loader.Load()
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), got); diff != "" {
		t.Errorf("defaults changed by loading (-want +got):\n%s", diff)
	}
}

func TestLoader_LoadJSON(t *testing.T) {
	path := writeFile(t, "opflow.json", `{
		"runtime": {"queue_capacity": 8, "policy": "reject", "shutdown_timeout": "3s"},
		"cache": {"max_objects": 100, "allow_order_changes": true},
		"nats": {"enabled": true, "url": "nats://broker:4222", "reconnect_wait": "250ms",
			"retry": {"max_retries": 2, "initial_delay": "20ms"},
			"input_subject": "opflow.keys.>", "subscriber": {"idle_timeout": "1m"},
			"publisher": {"subject": "opflow.values", "forward_stop": true}},
		"demo": {"keys": ["a"], "interval": "10ms"}
	}`)

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Runtime.QueueCapacity)
	assert.Equal(t, buffer.Reject, cfg.Runtime.QueuePolicy())
	assert.Equal(t, 3*time.Second, cfg.Runtime.ShutdownTimeout)
	assert.Equal(t, 100, cfg.Cache.MaxObjects)
	assert.True(t, cfg.Cache.AllowOrderChanges)
	assert.Equal(t, int64(cache.DefaultMaxBytes), cfg.Cache.MaxBytes, "untouched fields keep defaults")
	assert.Equal(t, 250*time.Millisecond, cfg.NATS.ReconnectWait)
	assert.Equal(t, 5*time.Second, cfg.NATS.ConnectTimeout)
	assert.Equal(t, 2, cfg.NATS.Retry.MaxRetries)
	assert.Equal(t, 20*time.Millisecond, cfg.NATS.Retry.InitialDelay)
	assert.Equal(t, time.Second, cfg.NATS.Retry.MaxDelay, "untouched retry fields keep defaults")
	assert.Equal(t, time.Minute, cfg.NATS.Subscriber.IdleTimeout)
	assert.Equal(t, "opflow.values", cfg.NATS.Publisher.Subject)
	assert.True(t, cfg.NATS.Publisher.ForwardStop)
	assert.Equal(t, []string{"a"}, cfg.Demo.Keys)
	assert.Equal(t, 10*time.Millisecond, cfg.Demo.Interval)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_LoadYAML(t *testing.T) {
	path := writeFile(t, "opflow.yaml", `
log:
  level: debug
  format: json
metrics:
  enabled: true
  addr: 127.0.0.1:9191
demo:
  keys: [x, y, x]
  passes: -1
  delay: 2d
`)

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "127.0.0.1:9191", cfg.Metrics.Addr)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, []string{"x", "y", "x"}, cfg.Demo.Keys)
	assert.Equal(t, -1, cfg.Demo.Passes)
	assert.Equal(t, 48*time.Hour, cfg.Demo.Delay)
}

func TestLoader_Layers(t *testing.T) {
	base := writeFile(t, "base.yaml", `
runtime:
  queue_capacity: 16
log:
  level: warn
`)
	override := writeFile(t, "override.json", `{"runtime": {"policy": "reject"}, "log": {"level": "error"}}`)

	loader := NewLoader()
	loader.AddLayer(base)
	loader.AddLayer(override)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Runtime.QueueCapacity)
	assert.Equal(t, "reject", cfg.Runtime.Policy)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("OPFLOW_LOG_LEVEL", "debug")
	t.Setenv("OPFLOW_RUNTIME_QUEUE_CAPACITY", "7")
	t.Setenv("OPFLOW_CACHE_MAX_BYTES", "1024")
	t.Setenv("OPFLOW_NATS_ENABLED", "true")
	t.Setenv("OPFLOW_NATS_URL", "nats://env:4222")
	t.Setenv("OPFLOW_NATS_TOKEN", "s3cret")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 7, cfg.Runtime.QueueCapacity)
	assert.Equal(t, int64(1024), cfg.Cache.MaxBytes)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://env:4222", cfg.NATS.URL)
	assert.Equal(t, "s3cret", cfg.NATS.Token)

	t.Run("secrets are masked", func(t *testing.T) {
		assert.NotContains(t, cfg.String(), "s3cret")
		assert.Equal(t, "s3cret", cfg.NATS.Token)
	})

	t.Run("bad number", func(t *testing.T) {
		t.Setenv("OPFLOW_CACHE_MAX_OBJECTS", "many")
		_, err := NewLoader().Load()
		assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	})
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"malformed json", "bad.json", `{"runtime": {`},
		{"malformed yaml", "bad.yaml", "runtime: [unclosed"},
		{"bad duration", "dur.json", `{"runtime": {"shutdown_timeout": "soon"}}`},
		{"wrong type", "type.json", `{"runtime": {"queue_capacity": "eight"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().LoadFile(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err) || errors.IsFatal(err))
		})
	}

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := NewLoader().LoadFile(writeFile(t, "opflow.toml", "x = 1"))
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewLoader().LoadFile(filepath.Join(t.TempDir(), "missing.json"))
		assert.Error(t, err)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"queue capacity", func(c *Config) { c.Runtime.QueueCapacity = 0 }, "runtime.queue_capacity"},
		{"policy", func(c *Config) { c.Runtime.Policy = "drop" }, "runtime.policy"},
		{"cache bytes", func(c *Config) { c.Cache.MaxBytes = -1 }, "cache.max_bytes"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"metrics path", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Path = "metrics" }, "metrics.path"},
		{"nats url", func(c *Config) { c.NATS.Enabled = true; c.NATS.URL = "" }, "nats.url"},
		{"publisher wildcard", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.Publisher.Subject = "out.*"
		}, "nats.publisher.subject"},
		{"input subject", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.InputSubject = "a..b"
		}, "nats.input_subject"},
		{"tls pair", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.TLS = tlsutil.ClientConfig{Enabled: true, KeyFile: "client-key.pem"}
		}, "nats.tls"},
		{"retry schedule", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.Retry.InitialDelay = time.Second
			c.NATS.Retry.MaxDelay = time.Millisecond
		}, "nats.retry"},
		{"no keys", func(c *Config) { c.Demo.Keys = nil }, "demo.keys"},
		{"empty key", func(c *Config) { c.Demo.Keys = []string{"a", ""} }, "demo.keys[1]"},
		{"passes", func(c *Config) { c.Demo.Passes = -2 }, "demo.passes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
			assert.True(t, errors.IsInvalid(err))
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	t.Run("every problem is reported", func(t *testing.T) {
		cfg := Default()
		cfg.Runtime.Policy = "drop"
		cfg.Log.Format = "xml"
		err := cfg.Validate()
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "runtime.policy") && strings.Contains(err.Error(), "log.format"))
	})

	t.Run("nats input replaces demo keys", func(t *testing.T) {
		cfg := Default()
		cfg.Demo.Keys = nil
		cfg.NATS.Enabled = true
		cfg.NATS.InputSubject = "opflow.keys.>"
		assert.NoError(t, cfg.Validate())
	})
}

func TestLoader_ValidationEnabled(t *testing.T) {
	path := writeFile(t, "invalid.json", `{"log": {"level": "loud"}}`)

	_, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	loader := NewLoader()
	loader.EnableValidation(true)
	_, err = loader.LoadFile(path)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}
