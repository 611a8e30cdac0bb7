package cache

import "sync/atomic"

// Statistics counts lookups, stores and removals of one cache. Counters are
// independent atomics, so a reader racing a Set may see it half applied.
type Statistics struct {
	hits    atomic.Int64
	misses  atomic.Int64
	inserts atomic.Int64
	updates atomic.Int64
	deletes atomic.Int64

	// evictions by the budget that forced them
	objectEvictions atomic.Int64
	byteEvictions   atomic.Int64

	entries     atomic.Int64
	bytes       atomic.Int64
	peakEntries atomic.Int64
	peakBytes   atomic.Int64
}

func (s *Statistics) lookup(hit bool) {
	if hit {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
}

func (s *Statistics) store(created bool) {
	if created {
		s.inserts.Add(1)
	} else {
		s.updates.Add(1)
	}
}

func (s *Statistics) evict(reason evictReason) {
	if reason == evictBytes {
		s.byteEvictions.Add(1)
	} else {
		s.objectEvictions.Add(1)
	}
}

// resize is called with the cache lock held, so the peaks need no CAS.
func (s *Statistics) resize(entries int, bytes int64) {
	s.entries.Store(int64(entries))
	s.bytes.Store(bytes)
	if int64(entries) > s.peakEntries.Load() {
		s.peakEntries.Store(int64(entries))
	}
	if bytes > s.peakBytes.Load() {
		s.peakBytes.Store(bytes)
	}
}

// Hits counts Get calls that found their key.
func (s *Statistics) Hits() int64 { return s.hits.Load() }

// Misses counts Get calls that did not.
func (s *Statistics) Misses() int64 { return s.misses.Load() }

func (s *Statistics) Inserts() int64 { return s.inserts.Load() }
func (s *Statistics) Updates() int64 { return s.updates.Load() }
func (s *Statistics) Deletes() int64 { return s.deletes.Load() }

// Evictions counts entries dropped by either budget.
func (s *Statistics) Evictions() int64 {
	return s.objectEvictions.Load() + s.byteEvictions.Load()
}

// ByteEvictions counts the evictions forced by the byte budget alone.
func (s *Statistics) ByteEvictions() int64 { return s.byteEvictions.Load() }

func (s *Statistics) Entries() int64     { return s.entries.Load() }
func (s *Statistics) Bytes() int64       { return s.bytes.Load() }
func (s *Statistics) PeakEntries() int64 { return s.peakEntries.Load() }
func (s *Statistics) PeakBytes() int64   { return s.peakBytes.Load() }

// HitRatio is hits over lookups, 0 before the first lookup.
func (s *Statistics) HitRatio() float64 {
	hits := s.Hits()
	total := hits + s.Misses()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
