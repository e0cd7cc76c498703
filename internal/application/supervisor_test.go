package application

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupervisorSchedulesOnePendingReconnect(t *testing.T) {
	t.Parallel()

	fired := make(chan loopEvent, 4)
	s := newSupervisor(10*time.Millisecond, 3, zerolog.Nop(), func(ev loopEvent) { fired <- ev })

	require.True(t, s.schedule())
	assert.False(t, s.schedule())
	assert.True(t, s.pending)

	var due reconnectDue
	select {
	case ev := <-fired:
		due = ev.(reconnectDue)
	case <-time.After(time.Second):
		t.Fatal("reconnect never fired")
	}

	require.True(t, s.fire(due.generation))
	assert.False(t, s.pending)
	assert.False(t, s.fire(due.generation))

	select {
	case <-fired:
		t.Fatal("second reconnect fired")
	case <-time.After(30 * time.Millisecond):
	}
}

func TestSupervisorCancelInvalidatesInFlightTimer(t *testing.T) {
	t.Parallel()

	fired := make(chan loopEvent, 4)
	s := newSupervisor(time.Millisecond, 3, zerolog.Nop(), func(ev loopEvent) { fired <- ev })

	require.True(t, s.schedule())
	ev := (<-fired).(reconnectDue)

	s.cancel()
	assert.False(t, s.fire(ev.generation))
	assert.True(t, s.schedule())
}

func TestSupervisorCountsConsecutiveAuthFailures(t *testing.T) {
	t.Parallel()

	s := newSupervisor(time.Second, 2, zerolog.Nop(), func(loopEvent) {})
	failure := errors.New("bad password")

	assert.Equal(t, 1, s.authFailed(failure))
	assert.Equal(t, 2, s.authFailed(failure))
	assert.Equal(t, 3, s.authFailed(failure))

	s.authSucceeded()
	assert.Equal(t, 1, s.authFailed(failure))
}
