package application

import (
	"time"

	"github.com/rs/zerolog"
)

// supervisor schedules reconnects at a fixed interval and counts
// consecutive authentication failures. It is owned by the event loop.
type supervisor struct {
	interval  time.Duration
	threshold int
	log       zerolog.Logger
	post      func(loopEvent)

	timer        *time.Timer
	generation   uint64
	pending      bool
	authFailures int
}

func newSupervisor(interval time.Duration, threshold int, log zerolog.Logger, post func(loopEvent)) *supervisor {
	return &supervisor{
		interval:  interval,
		threshold: threshold,
		log:       log,
		post:      post,
	}
}

// schedule arms one reconnect. It returns false when one is already pending.
func (s *supervisor) schedule() bool {
	if s.pending {
		return false
	}

	s.generation++
	s.pending = true
	generation := s.generation
	s.timer = time.AfterFunc(s.interval, func() {
		s.post(reconnectDue{generation: generation})
	})

	s.log.Info().Dur("in", s.interval).Msg("reconnect scheduled")
	return true
}

// cancel drops the pending reconnect, if any.
func (s *supervisor) cancel() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = false
	s.generation++
}

// fire consumes a reconnectDue event and reports whether it is current.
func (s *supervisor) fire(generation uint64) bool {
	if !s.pending || generation != s.generation {
		return false
	}
	s.pending = false
	s.timer = nil
	return true
}

// authFailed records one failure and returns the consecutive count.
func (s *supervisor) authFailed(err error) int {
	s.authFailures++
	if s.threshold > 0 && s.authFailures >= s.threshold {
		s.log.Error().Err(err).Int("failures", s.authFailures).Msg("authentication keeps failing")
	} else {
		s.log.Warn().Err(err).Int("failures", s.authFailures).Msg("authentication failed")
	}
	return s.authFailures
}

func (s *supervisor) authSucceeded() {
	s.authFailures = 0
}
