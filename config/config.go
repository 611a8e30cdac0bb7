package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/c360/opflow/errors"
	"github.com/c360/opflow/input/natssub"
	"github.com/c360/opflow/output/natspub"
	"github.com/c360/opflow/pkg/buffer"
	"github.com/c360/opflow/pkg/tlsutil"
	"github.com/c360/opflow/processor/cacheop"
)

// Config is the complete opflow configuration.
type Config struct {
	Runtime RuntimeConfig  `json:"runtime" yaml:"runtime"`
	Cache   cacheop.Config `json:"cache" yaml:"cache"`
	Log     LogConfig      `json:"log" yaml:"log"`
	Metrics MetricsConfig  `json:"metrics" yaml:"metrics"`
	NATS    NATSConfig     `json:"nats" yaml:"nats"`
	Demo    DemoConfig     `json:"demo" yaml:"demo"`
}

// RuntimeConfig holds the settings shared by every operation of a pipeline.
type RuntimeConfig struct {
	// QueueCapacity is the capacity of every input queue.
	QueueCapacity int `json:"queue_capacity" yaml:"queue_capacity"`

	// Policy is "block" or "reject".
	Policy string `json:"policy" yaml:"policy"`

	// HaltOnFault stops the whole pipeline on the first fault.
	HaltOnFault bool `json:"halt_on_fault" yaml:"halt_on_fault"`

	// ShutdownTimeout bounds the wait for a stopped pipeline to drain.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// QueuePolicy returns the parsed queue policy.
func (r RuntimeConfig) QueuePolicy() buffer.Policy {
	p, _ := buffer.ParsePolicy(r.Policy)
	return p
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
	Path    string `json:"path" yaml:"path"`
}

// NATSConfig configures the NATS bridge.
type NATSConfig struct {
	Enabled        bool          `json:"enabled" yaml:"enabled"`
	URL            string        `json:"url" yaml:"url"`
	Name           string        `json:"name,omitempty" yaml:"name,omitempty"`
	MaxReconnects  int           `json:"max_reconnects" yaml:"max_reconnects"`
	ReconnectWait  time.Duration `json:"reconnect_wait" yaml:"reconnect_wait"`
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	Username       string        `json:"username,omitempty" yaml:"username,omitempty"`
	Password       string        `json:"password,omitempty" yaml:"password,omitempty"`
	Token          string        `json:"token,omitempty" yaml:"token,omitempty"`

	TLS tlsutil.ClientConfig `json:"tls" yaml:"tls"`

	// Retry paces the initial connect. Rejected credentials end it at once.
	Retry errors.RetryConfig `json:"retry" yaml:"retry"`

	// InputSubject feeds the pipeline when set.
	InputSubject string         `json:"input_subject,omitempty" yaml:"input_subject,omitempty"`
	Subscriber   natssub.Config `json:"subscriber" yaml:"subscriber"`

	// Publisher.Subject receives the pipeline results when set.
	Publisher natspub.Config `json:"publisher" yaml:"publisher"`
}

// DemoConfig drives the cache-loop pipeline of the run command.
type DemoConfig struct {
	// Keys are looked up in order. Repeated keys are answered by the cache.
	Keys []string `json:"keys" yaml:"keys"`

	// Passes repeats Keys; -1 repeats until interrupted.
	Passes int `json:"passes" yaml:"passes"`

	// Interval paces the key source.
	Interval time.Duration `json:"interval" yaml:"interval"`

	// Delay simulates an expensive computation for every miss.
	Delay time.Duration `json:"delay" yaml:"delay"`
}

// Default returns the built-in configuration every layer is merged onto.
func Default() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			QueueCapacity:   64,
			Policy:          buffer.Block.String(),
			HaltOnFault:     true,
			ShutdownTimeout: 10 * time.Second,
		},
		Cache: cacheop.DefaultConfig(),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
			Path: "/metrics",
		},
		NATS: NATSConfig{
			URL:            "nats://localhost:4222",
			Name:           "opflow",
			MaxReconnects:  -1,
			ReconnectWait:  2 * time.Second,
			ConnectTimeout: 5 * time.Second,
			Retry: errors.RetryConfig{
				MaxRetries:    9,
				InitialDelay:  50 * time.Millisecond,
				MaxDelay:      time.Second,
				BackoffFactor: 1.5,
			},
			Subscriber: natssub.Config{
				PollTimeout: natssub.DefaultPollTimeout,
			},
			Publisher: natspub.Config{
				FlushTimeout: natspub.DefaultFlushTimeout,
			},
		},
		Demo: DemoConfig{
			Keys:   []string{"alpha", "beta", "alpha", "gamma", "beta", "alpha"},
			Passes: 1,
		},
	}
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Runtime.QueueCapacity < 1 {
		add("runtime.queue_capacity must be positive, got %d", c.Runtime.QueueCapacity)
	}
	if _, ok := buffer.ParsePolicy(c.Runtime.Policy); !ok {
		add("runtime.policy %q is not one of block, reject", c.Runtime.Policy)
	}
	if c.Runtime.ShutdownTimeout < 0 {
		add("runtime.shutdown_timeout must not be negative")
	}

	if c.Cache.MaxBytes < 0 {
		add("cache.max_bytes must not be negative")
	}
	if c.Cache.MaxObjects < 0 {
		add("cache.max_objects must not be negative")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		add("log.format %q is not one of json, text", c.Log.Format)
	}

	if c.Metrics.Enabled {
		if c.Metrics.Addr == "" {
			add("metrics.addr is required when metrics are enabled")
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			add("metrics.path %q must start with /", c.Metrics.Path)
		}
	}

	if c.NATS.Enabled {
		errs = append(errs, c.NATS.validate()...)
	}

	if len(c.Demo.Keys) == 0 && (!c.NATS.Enabled || c.NATS.InputSubject == "") {
		add("demo.keys is required without nats.input_subject")
	}
	for i, k := range c.Demo.Keys {
		if k == "" {
			add("demo.keys[%d] is empty", i)
		}
	}
	if c.Demo.Passes < -1 {
		add("demo.passes must be -1 or more, got %d", c.Demo.Passes)
	}
	if c.Demo.Interval < 0 || c.Demo.Delay < 0 {
		add("demo.interval and demo.delay must not be negative")
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.WrapInvalid(
		fmt.Errorf("%w: %w", errors.ErrInvalidConfig, stderrors.Join(errs...)),
		"Config", "Validate", "check configuration")
}

func (n NATSConfig) validate() []error {
	var errs []error
	if n.URL == "" {
		errs = append(errs, stderrors.New("nats.url is required when nats is enabled"))
	}
	if n.ConnectTimeout <= 0 {
		errs = append(errs, stderrors.New("nats.connect_timeout must be positive"))
	}
	if err := n.TLS.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("nats.tls: %w", err))
	}
	if err := n.Retry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("nats.retry: %w", err))
	}
	if n.InputSubject != "" && !isValidSubject(n.InputSubject, true) {
		errs = append(errs, fmt.Errorf("nats.input_subject %q is not a valid subject", n.InputSubject))
	}
	if n.Publisher.Subject != "" && !isValidSubject(n.Publisher.Subject, false) {
		errs = append(errs, fmt.Errorf("nats.publisher.subject %q is not a valid literal subject",
			n.Publisher.Subject))
	}
	if n.Publisher.RateLimit < 0 || n.Publisher.Burst < 0 {
		errs = append(errs, stderrors.New("nats.publisher rate_limit and burst must not be negative"))
	}
	if n.Subscriber.PollTimeout < 0 || n.Subscriber.IdleTimeout < 0 || n.Subscriber.Limit < 0 {
		errs = append(errs, stderrors.New("nats.subscriber timeouts and limit must not be negative"))
	}
	return errs
}

// isValidSubject checks a dot separated NATS subject. Tokens are letters,
// digits, dashes and underscores; wildcards only when allowed.
func isValidSubject(s string, wildcards bool) bool {
	if s == "" {
		return false
	}
	tokens := strings.Split(s, ".")
	for i, tok := range tokens {
		if tok == "" {
			return false
		}
		if wildcards && (tok == "*" || (tok == ">" && i == len(tokens)-1)) {
			continue
		}
		for _, r := range tok {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
				return false
			}
		}
	}
	return true
}

// String returns the configuration as indented JSON with secrets masked.
func (c *Config) String() string {
	masked := *c
	for _, s := range []*string{&masked.NATS.Password, &masked.NATS.Token} {
		if *s != "" {
			*s = "***"
		}
	}
	data, err := json.MarshalIndent(&masked, "", "  ")
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}
