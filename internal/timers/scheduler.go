// Package timers provides a single cancellable-timer abstraction keyed
// by (owner, purpose), so "cancel every timer this connection owns" is
// one call and no interval can leak past a disconnect.
package timers

import (
	"sync"
	"time"
)

type key struct {
	owner   string
	purpose string
}

type entry struct {
	timer  *time.Timer
	gen    uint64
	repeat time.Duration
	fn     func()
}

// Scheduler owns every pending timer. Scheduling onto an existing
// (owner, purpose) key replaces the previous timer. A cancelled timer
// never fires again: each entry carries a generation that is checked
// under the lock before its callback is claimed.
type Scheduler struct {
	mu      sync.Mutex
	entries map[key]*entry
	nextGen uint64
	stopped bool
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		entries: make(map[key]*entry),
	}
}

// After schedules fn to run once after d.
func (s *Scheduler) After(owner, purpose string, d time.Duration, fn func()) {
	s.schedule(owner, purpose, d, 0, fn)
}

// Every schedules fn to run repeatedly with period d, first firing
// after d.
func (s *Scheduler) Every(owner, purpose string, d time.Duration, fn func()) {
	s.schedule(owner, purpose, d, d, fn)
}

func (s *Scheduler) schedule(owner, purpose string, d, repeat time.Duration, fn func()) {
	k := key{owner: owner, purpose: purpose}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if old, ok := s.entries[k]; ok {
		old.timer.Stop()
	}
	s.nextGen++
	e := &entry{gen: s.nextGen, repeat: repeat, fn: fn}
	gen := e.gen
	e.timer = time.AfterFunc(d, func() { s.fire(k, gen) })
	s.entries[k] = e
}

func (s *Scheduler) fire(k key, gen uint64) {
	s.mu.Lock()
	e, ok := s.entries[k]
	if !ok || e.gen != gen {
		// Cancelled or replaced while the firing raced the stop.
		s.mu.Unlock()
		return
	}
	if e.repeat > 0 {
		e.timer = time.AfterFunc(e.repeat, func() { s.fire(k, gen) })
	} else {
		delete(s.entries, k)
	}
	fn := e.fn
	s.mu.Unlock()

	fn()
}

// Cancel stops the timer for (owner, purpose), if any. Idempotent.
func (s *Scheduler) Cancel(owner, purpose string) {
	k := key{owner: owner, purpose: purpose}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[k]; ok {
		e.timer.Stop()
		delete(s.entries, k)
	}
}

// CancelOwner stops every timer the owner holds.
func (s *Scheduler) CancelOwner(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if k.owner == owner {
			e.timer.Stop()
			delete(s.entries, k)
		}
	}
}

// Active reports whether a timer is pending for (owner, purpose).
func (s *Scheduler) Active(owner, purpose string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key{owner: owner, purpose: purpose}]
	return ok
}

// Len returns the number of pending timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop cancels everything and refuses further scheduling.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for k, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, k)
	}
}
