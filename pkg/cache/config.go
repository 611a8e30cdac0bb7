package cache

import (
	"fmt"

	"github.com/c360/opflow/errors"
)

// DefaultMaxBytes is the default byte budget, 2 MiB.
const DefaultMaxBytes = 2 << 20

// Config holds the cache budgets.
type Config struct {
	// MaxBytes bounds the estimated size of all entries. Zero means no limit.
	MaxBytes int64 `json:"max_bytes" yaml:"max_bytes"`

	// MaxObjects bounds the number of entries. Zero means no limit.
	MaxObjects int `json:"max_objects" yaml:"max_objects"`
}

// DefaultConfig returns a 2 MiB byte budget and no object limit.
func DefaultConfig() Config {
	return Config{MaxBytes: DefaultMaxBytes}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.MaxBytes < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "Validate",
			fmt.Sprintf("max_bytes must not be negative, got %d", c.MaxBytes))
	}
	if c.MaxObjects < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "Validate",
			fmt.Sprintf("max_objects must not be negative, got %d", c.MaxObjects))
	}
	return nil
}

// NewFromConfig creates an LRU cache with the budgets of config. Options
// given later override the budgets.
func NewFromConfig[V any](config Config, sizer Sizer[V], options ...Option[V]) (*LRU[V], error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	base := []Option[V]{
		WithMaxBytes[V](config.MaxBytes),
		WithMaxObjects[V](config.MaxObjects),
		WithSizer(sizer),
	}
	return New(append(base, options...)...)
}
