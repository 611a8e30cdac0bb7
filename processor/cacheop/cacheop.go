// Package cacheop provides an operation that caches computed values by key.
//
// Keys arrive on the key input. A cached key is answered at once: true on
// the found output and the cached value on the data output. An unknown key
// is answered with false on found and passed on through the key output,
// which is expected to feed a loop that computes the value and sends it back
// to the data input. The value is cached and emitted on the data output.
//
// Unless AllowOrderChanges is set, values leave the data output in the
// order their keys arrived.
package cacheop

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360/opflow/errors"
	"github.com/c360/opflow/metric"
	"github.com/c360/opflow/operation"
	"github.com/c360/opflow/pkg/cache"
	"github.com/c360/opflow/variant"
)

// Socket names.
const (
	InputKey    = "key"
	InputData   = "data"
	OutputFound = "found"
	OutputKey   = "key"
	OutputData  = "data"
)

const (
	outFound = iota
	outKey
	outData
)

const (
	lineKey = iota
	lineData
)

// Config configures a Cache.
type Config struct {
	// MaxBytes bounds the estimated size of cached values. Zero means no
	// limit. Defaults to 2 MiB.
	MaxBytes int64 `json:"max_bytes" yaml:"max_bytes"`

	// MaxObjects bounds the number of cached values. Zero means no limit.
	MaxObjects int `json:"max_objects" yaml:"max_objects"`

	// AllowOrderChanges emits values as soon as they are known instead of
	// in key arrival order.
	AllowOrderChanges bool `json:"allow_order_changes" yaml:"allow_order_changes"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{MaxBytes: cache.DefaultMaxBytes}
}

// request is one key received on the key input.
type request struct {
	key      string
	value    variant.Variant
	resolved bool
}

// Cache is the Processor behind a cache operation.
type Cache struct {
	cfg    Config
	store  *cache.LRU[variant.Variant]
	logger *slog.Logger

	// queue holds requests not yet answered on the data output, in arrival
	// order. Only used when order is preserved.
	queue []*request
	// misses holds the keys emitted on the key output, oldest first. Each
	// value on the data input answers the oldest one.
	misses []string
	// waiting maps an emitted key to every request it will answer.
	waiting map[string][]*request
}

// NewCache creates the processor. When registry is not nil the cache
// statistics are exported under name.
func NewCache(name string, cfg Config, registry *metric.MetricsRegistry) (*Cache, error) {
	opts := []cache.Option[variant.Variant]{}
	if registry != nil {
		opts = append(opts, cache.WithMetrics[variant.Variant](registry, name))
	}
	store, err := cache.NewFromConfig(
		cache.Config{MaxBytes: cfg.MaxBytes, MaxObjects: cfg.MaxObjects},
		variant.SizeOf,
		opts...,
	)
	if err != nil {
		return nil, errors.Wrap(err, "Cache", "NewCache", "create store")
	}

	c := &Cache{
		cfg:     cfg,
		store:   store,
		logger:  slog.Default().With("component", "cacheop", "operation", name),
		waiting: make(map[string][]*request),
	}
	return c, nil
}

// New creates a cache operation. The data input is a feedback input served
// independently of the key input.
func New(name string, cfg Config, registry *metric.MetricsRegistry, opts ...operation.Option) (*operation.Operation, *Cache, error) {
	c, err := NewCache(name, cfg, registry)
	if err != nil {
		return nil, nil, err
	}

	base := []operation.Option{
		operation.WithInput(InputKey),
		operation.WithFeedbackInput(InputData),
		operation.WithOutput(OutputFound),
		operation.WithOutput(OutputKey),
		operation.WithOutput(OutputData),
		operation.WithIndependentLines(),
	}
	if registry != nil {
		base = append(base, operation.WithMetrics(registry))
	}
	op, err := operation.New(name, c, append(base, opts...)...)
	if err != nil {
		return nil, nil, err
	}
	return op, c, nil
}

// Reset forgets cached values and unanswered requests.
func (c *Cache) Reset() {
	c.store.Clear()
	c.queue = nil
	c.misses = nil
	c.waiting = make(map[string][]*request)
}

// Pending reports whether a request still waits for its value.
func (c *Cache) Pending() bool {
	return len(c.misses) > 0 || len(c.queue) > 0
}

// Stats returns the statistics of the underlying store.
func (c *Cache) Stats() *cache.Statistics {
	return c.store.Stats()
}

// Len returns the number of cached values.
func (c *Cache) Len() int {
	return c.store.Len()
}

// Process serves one variant from either input.
func (c *Cache) Process(_ context.Context, in operation.Group, out *operation.Emitter) error {
	switch in.Line {
	case lineKey:
		return c.lookup(in.Value(lineKey), out)
	case lineData:
		return c.answer(in.Value(lineData), out)
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: unexpected line %d", errors.ErrInvalidData, in.Line),
			"Cache", "Process", "select line")
	}
}

func (c *Cache) lookup(v variant.Variant, out *operation.Emitter) error {
	key, err := KeyString(v)
	if err != nil {
		return err
	}

	if value, ok := c.store.Get(key); ok {
		if err := out.Emit(outFound, variant.New(true)); err != nil {
			return err
		}
		if c.cfg.AllowOrderChanges || len(c.queue) == 0 {
			return out.Emit(outData, value)
		}
		c.queue = append(c.queue, &request{key: key, value: value, resolved: true})
		return nil
	}

	if err := out.Emit(outFound, variant.New(false)); err != nil {
		return err
	}

	req := &request{key: key}
	if !c.cfg.AllowOrderChanges {
		c.queue = append(c.queue, req)
	}
	if reqs, pending := c.waiting[key]; pending {
		c.waiting[key] = append(reqs, req)
		c.logger.Debug("Miss joins pending key", "key", key, "requests", len(reqs)+1)
		return nil
	}

	c.waiting[key] = []*request{req}
	c.misses = append(c.misses, key)
	return out.Emit(outKey, v)
}

func (c *Cache) answer(v variant.Variant, out *operation.Emitter) error {
	if len(c.misses) == 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: value %s arrived with no pending key", errors.ErrInvalidData, v),
			"Cache", "Process", "match data")
	}
	key := c.misses[0]
	c.misses = c.misses[1:]

	reqs := c.waiting[key]
	delete(c.waiting, key)
	if _, err := c.store.Set(key, v); err != nil {
		return err
	}

	for _, req := range reqs {
		req.value = v
		req.resolved = true
		if c.cfg.AllowOrderChanges {
			if err := out.Emit(outData, v); err != nil {
				return err
			}
		}
	}
	return c.flush(out)
}

// flush emits resolved requests from the head of the queue.
func (c *Cache) flush(out *operation.Emitter) error {
	for len(c.queue) > 0 && c.queue[0].resolved {
		req := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		if err := out.Emit(outData, req.value); err != nil {
			return err
		}
	}
	return nil
}

// KeyString converts a key variant to a cache key. Strings are used as is
// and primitive kinds are formatted.
func KeyString(v variant.Variant) (string, error) {
	switch {
	case v.Type() == variant.String:
		key, _ := variant.ValueAs[string](v)
		if key == "" {
			return "", errors.WrapInvalid(errors.ErrInvalidData, "Cache", "KeyString", "empty key")
		}
		return key, nil
	case v.Type().IsPrimitive():
		return fmt.Sprint(v.Interface()), nil
	default:
		return "", errors.WrapInvalid(
			fmt.Errorf("%w: %s cannot be a cache key", errors.ErrTypeMismatch, v.Type()),
			"Cache", "KeyString", "convert key")
	}
}
