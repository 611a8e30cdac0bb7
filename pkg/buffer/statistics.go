package buffer

import (
	"sync/atomic"
	"time"
)

// Statistics tracks queue activity. All methods are safe for concurrent use.
type Statistics struct {
	writes    atomic.Int64
	reads     atomic.Int64
	peeks     atomic.Int64
	overflows atomic.Int64
	rejects   atomic.Int64
	drops     atomic.Int64

	currentSize atomic.Int64
	maxSize     atomic.Int64
	startTime   time.Time
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

// Write records a push.
func (s *Statistics) Write() { s.writes.Add(1) }

// Read records a pop.
func (s *Statistics) Read() { s.reads.Add(1) }

// Peek records a successful peek.
func (s *Statistics) Peek() { s.peeks.Add(1) }

// Overflow records a push that found the queue full.
func (s *Statistics) Overflow() { s.overflows.Add(1) }

// Reject records a push refused by the Reject policy.
func (s *Statistics) Reject() { s.rejects.Add(1) }

// Drop records n items discarded by Reset or Close.
func (s *Statistics) Drop(n int64) { s.drops.Add(n) }

// UpdateSize records the current size and tracks the high-water mark.
func (s *Statistics) UpdateSize(size int64) {
	s.currentSize.Store(size)
	for {
		peak := s.maxSize.Load()
		if size <= peak || s.maxSize.CompareAndSwap(peak, size) {
			return
		}
	}
}

// Writes returns the number of pushes.
func (s *Statistics) Writes() int64 { return s.writes.Load() }

// Reads returns the number of pops.
func (s *Statistics) Reads() int64 { return s.reads.Load() }

// Peeks returns the number of peeks.
func (s *Statistics) Peeks() int64 { return s.peeks.Load() }

// Overflows returns how often a push found the queue full.
func (s *Statistics) Overflows() int64 { return s.overflows.Load() }

// Rejects returns the number of refused pushes.
func (s *Statistics) Rejects() int64 { return s.rejects.Load() }

// Drops returns the number of discarded items.
func (s *Statistics) Drops() int64 { return s.drops.Load() }

// CurrentSize returns the last recorded size.
func (s *Statistics) CurrentSize() int64 { return s.currentSize.Load() }

// MaxSize returns the high-water mark.
func (s *Statistics) MaxSize() int64 { return s.maxSize.Load() }

// StatsSummary is a snapshot of all statistics.
type StatsSummary struct {
	Writes      int64         `json:"writes"`
	Reads       int64         `json:"reads"`
	Peeks       int64         `json:"peeks"`
	Overflows   int64         `json:"overflows"`
	Rejects     int64         `json:"rejects"`
	Drops       int64         `json:"drops"`
	CurrentSize int64         `json:"current_size"`
	MaxSize     int64         `json:"max_size"`
	Uptime      time.Duration `json:"uptime"`
}

// Summary returns a snapshot of all statistics.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Writes:      s.Writes(),
		Reads:       s.Reads(),
		Peeks:       s.Peeks(),
		Overflows:   s.Overflows(),
		Rejects:     s.Rejects(),
		Drops:       s.Drops(),
		CurrentSize: s.CurrentSize(),
		MaxSize:     s.MaxSize(),
		Uptime:      time.Since(s.startTime),
	}
}
