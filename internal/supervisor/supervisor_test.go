package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gdshr/attendance-agent/internal/common/clock"
	"github.com/gdshr/attendance-agent/internal/common/logger"
)

func newTestSupervisor() (*Supervisor, *clock.Fake, *[]time.Duration) {
	clk := clock.NewFake(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	s := New("test", clk, logger.NewNop())

	var delays []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		clk.Advance(d)
		return nil
	}
	return s, clk, &delays
}

func TestCleanExitStopsLoop(t *testing.T) {
	s, _, delays := newTestSupervisor()
	runs := 0

	err := s.Run(context.Background(), func(context.Context) error {
		runs++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, runs)
	assert.Empty(t, *delays)
}

func TestRestartsAfterError(t *testing.T) {
	s, _, delays := newTestSupervisor()
	runs := 0

	err := s.Run(context.Background(), func(context.Context) error {
		runs++
		if runs < 3 {
			return errors.New("crash")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, runs)
	assert.Equal(t, []time.Duration{10 * time.Second, 20 * time.Second}, *delays)
}

func TestPanicIsRecoveredAndRestarted(t *testing.T) {
	s, _, _ := newTestSupervisor()
	runs := 0

	err := s.Run(context.Background(), func(context.Context) error {
		runs++
		if runs == 1 {
			panic("input hook exploded")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, runs)
}

func TestBackoffCapsAtSixtySeconds(t *testing.T) {
	s, _, delays := newTestSupervisor()
	runs := 0

	err := s.Run(context.Background(), func(context.Context) error {
		runs++
		if runs < 9 {
			return errors.New("crash")
		}
		return nil
	})
	require.NoError(t, err)
	// 10,20,30,40,50,60,60,60
	assert.Equal(t, 8, len(*delays))
	assert.Equal(t, 60*time.Second, (*delays)[5])
	assert.Equal(t, 60*time.Second, (*delays)[7])
}

func TestRapidCrashCooldown(t *testing.T) {
	s, _, delays := newTestSupervisor()
	runs := 0

	err := s.Run(context.Background(), func(context.Context) error {
		runs++
		if runs <= 10 {
			return errors.New("crash")
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, *delays, 10)
	assert.Equal(t, 120*time.Second, (*delays)[9], "tenth rapid crash triggers the cooldown")
}

func TestSlowCrashesResetTheCounter(t *testing.T) {
	s, clk, delays := newTestSupervisor()
	runs := 0

	err := s.Run(context.Background(), func(context.Context) error {
		runs++
		if runs < 4 {
			// Healthy for longer than the crash window before dying again.
			clk.Advance(3 * time.Minute)
			return errors.New("crash")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second, 10 * time.Second}, *delays)
}

func TestOnRestartHookRunsBeforeEachRetry(t *testing.T) {
	s, _, _ := newTestSupervisor()
	hooks := 0
	s.OnRestart(func() { hooks++ })
	runs := 0

	err := s.Run(context.Background(), func(context.Context) error {
		runs++
		if runs < 3 {
			return errors.New("crash")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, hooks)
}

func TestContextCancelStopsRestarting(t *testing.T) {
	s, _, _ := newTestSupervisor()
	ctx, cancel := context.WithCancel(context.Background())
	runs := 0

	err := s.Run(ctx, func(context.Context) error {
		runs++
		cancel()
		return errors.New("crash")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, runs)
}
