package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/YadneshTeli/TaskForge-sub000/config"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
)

func TestNewBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	cb := NewBreaker("test", config.BreakerConfig{MaxRequests: 1, Timeout: time.Hour, ConsecutiveFailures: 2})
	boom := errors.New("boom")
	fail := func() (interface{}, error) { return nil, boom }

	_, err := cb.Execute(fail)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, gobreaker.StateClosed, cb.State())

	_, err = cb.Execute(fail)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	calls := 0
	_, err = cb.Execute(func() (interface{}, error) {
		calls++
		return nil, nil
	})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Zero(t, calls)
}

func TestNewBreaker_HalfOpenRecovers(t *testing.T) {
	cb := NewBreaker("test", config.BreakerConfig{MaxRequests: 1, Timeout: 10 * time.Millisecond, ConsecutiveFailures: 1})
	_, _ = cb.Execute(func() (interface{}, error) { return nil, errors.New("boom") })
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, gobreaker.StateHalfOpen, cb.State())

	_, err := cb.Execute(func() (interface{}, error) { return "ok", nil })
	assert.NoError(t, err)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}
