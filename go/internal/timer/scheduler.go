// Package timer implements the per-session round timer: keyed, cancelable,
// one-shot delayed actions.
package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Key names the timer slot of one session.
func Key(sessionID, slot string) string {
	return sessionID + "/" + slot
}

// Scheduler holds at most one armed timer per key. Firing is at-most-once: a
// timer that was disarmed or superseded never runs its callback, even when its
// clock already expired.
type Scheduler struct {
	clock clockwork.Clock

	mu     sync.Mutex
	timers map[string]*entry
	wg     sync.WaitGroup
}

type entry struct {
	timer clockwork.Timer
	done  chan struct{}
}

func NewScheduler(clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		clock:  clock,
		timers: make(map[string]*entry),
	}
}

// Arm cancels any timer armed under key and schedules onFire after d.
// onFire runs on its own goroutine.
func (s *Scheduler) Arm(key string, d time.Duration, onFire func()) {
	e := &entry{
		timer: s.clock.NewTimer(d),
		done:  make(chan struct{}),
	}

	s.mu.Lock()
	if existing, ok := s.timers[key]; ok {
		existing.cancel()
		log.Debug().Str("timer", key).Msg("replaced existing timer")
	}
	s.timers[key] = e
	s.wg.Add(1)
	s.mu.Unlock()

	go s.wait(key, e, onFire)

	log.Debug().Str("timer", key).Dur("duration", d).Msg("armed timer")
}

func (s *Scheduler) wait(key string, e *entry, onFire func()) {
	defer s.wg.Done()

	select {
	case <-e.timer.Chan():
		s.mu.Lock()
		current, ok := s.timers[key]
		if !ok || current != e {
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.mu.Unlock()

		log.Debug().Str("timer", key).Msg("timer fired")
		onFire()
	case <-e.done:
	}
}

// Disarm cancels the timer under key. It reports whether one was armed.
func (s *Scheduler) Disarm(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.timers[key]
	if !ok {
		return false
	}
	e.cancel()
	delete(s.timers, key)
	log.Debug().Str("timer", key).Msg("disarmed timer")
	return true
}

// Armed reports whether a timer is pending under key.
func (s *Scheduler) Armed(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop disarms every timer and waits for their goroutines to exit. Callbacks
// already running are waited for as well.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for key, e := range s.timers {
		e.cancel()
		delete(s.timers, key)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// cancel must be called with s.mu held.
func (e *entry) cancel() {
	stopAndDrainTimer(e.timer)
	close(e.done)
}

// stopAndDrainTimer stops a timer and drains a pending tick so the channel
// does not hold a stale value.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
