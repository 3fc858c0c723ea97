package rooms

import (
	"sync"
	"time"
)

// countdown is the handle for a room's running clock.
type countdown struct {
	stop chan struct{}
	once sync.Once
}

func (c *countdown) cancel() {
	c.once.Do(func() { close(c.stop) })
}

func wholeSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// startCountdownLocked starts the room's clock if it was created with one.
func (s *Session) startCountdownLocked() {
	if s.settings.Countdown <= 0 {
		return
	}

	cd := &countdown{stop: make(chan struct{})}
	s.countdown = cd
	s.remaining = s.settings.Countdown

	s.publish(s.timerUpdateLocked(), "")

	interval := s.registry.opts.Tick

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-cd.stop:
				return
			case <-ticker.C:
				if !s.tick(cd, interval) {
					return
				}
			}
		}
	}()
}

// tick is a mutation like any other and runs under the session lock, so it
// cannot race a claim that ends the game.
func (s *Session) tick(cd *countdown, elapsed time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.countdown != cd || s.phase != PhaseActive {
		return false
	}

	s.remaining = max(s.remaining-elapsed, 0)
	s.publish(s.timerUpdateLocked(), "")

	if s.remaining == 0 {
		s.endLocked(EndedTimer)
		return false
	}

	return true
}
