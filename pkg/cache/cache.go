// Package cache provides a thread-safe LRU cache bounded by an entry count
// and by an estimated byte size.
//
// Entry sizes come from a Sizer supplied by the caller. When an insertion
// pushes the cache over either budget, least recently used entries are
// evicted until both budgets hold again. An entry larger than the byte
// budget on its own does not stay in the cache.
//
// Statistics are always collected; Prometheus metrics are optional.
package cache

import (
	"github.com/c360/opflow/errors"
)

// EvictCallback is called after an entry has been evicted, outside the
// cache lock.
type EvictCallback[V any] func(key string, value V)

// Sizer estimates the size of a value in bytes.
type Sizer[V any] func(value V) int64

// validateKey validates a cache key for basic requirements.
func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
