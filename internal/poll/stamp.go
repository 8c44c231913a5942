package poll

import "sync"

// Stamp is the generation of one task run. Stamps from one Scheduler
// increase monotonically across all of its tasks.
type Stamp uint64

// Latest holds the most recent accepted result of a polled value. A result
// is accepted only if its stamp is newer than the last accepted one, so a
// slow response that lands after a fresher one is dropped.
type Latest[T any] struct {
	mu    sync.RWMutex
	value T
	stamp Stamp
	set   bool
}

// Set stores v if stamp is newer than the current value's stamp and
// reports whether it did.
func (l *Latest[T]) Set(stamp Stamp, v T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.set && stamp <= l.stamp {
		return false
	}
	l.value, l.stamp, l.set = v, stamp, true
	return true
}

// Get returns the current value, its stamp, and whether anything was set.
func (l *Latest[T]) Get() (T, Stamp, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.value, l.stamp, l.set
}

// Value returns the current value.
func (l *Latest[T]) Value() T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.value
}
