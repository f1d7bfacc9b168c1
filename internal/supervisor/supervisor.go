// Package supervisor keeps long-running agent components alive across
// panics and unexpected returns. The agent must survive unattended for
// weeks on machines nobody watches.
package supervisor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/gdshr/attendance-agent/internal/common/clock"
	"github.com/gdshr/attendance-agent/internal/common/logger"
)

const (
	// crashWindow decides whether two crashes count as a rapid sequence.
	crashWindow = 120 * time.Second
	// maxBackoff bounds the normal restart delay.
	maxBackoff = 60 * time.Second
	// rapidCrashLimit is how many rapid crashes trigger the long cooldown.
	rapidCrashLimit = 10
	// cooldown is the delay applied once the rapid-crash limit is hit.
	cooldown = 120 * time.Second
)

// Supervisor restarts a component function until the context ends.
type Supervisor struct {
	name string
	clk  clock.Clock
	log  *logger.Logger

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error

	// onRestart runs before each restart, e.g. to reset connection pools
	// a crash may have left in a bad state.
	onRestart func()
}

// New creates a supervisor for the named component.
func New(name string, clk clock.Clock, log *logger.Logger) *Supervisor {
	return &Supervisor{
		name:  name,
		clk:   clk,
		log:   log,
		sleep: sleepCtx,
	}
}

// OnRestart registers a hook invoked after the restart delay, just
// before the component runs again.
func (s *Supervisor) OnRestart(fn func()) *Supervisor {
	s.onRestart = fn
	return s
}

// Run invokes fn and restarts it whenever it panics or returns an
// error. Restart delay grows 10s per consecutive rapid crash up to 60s;
// after ten rapid crashes the supervisor backs off for a flat two
// minutes. A clean nil return, or context cancellation, ends the loop.
func (s *Supervisor) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	rapid := 0
	var lastCrash time.Duration
	haveCrash := false

	for {
		err := s.invoke(ctx, fn)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			s.log.Info("component exited cleanly", zap.String("component", s.name))
			return nil
		}

		now := s.clk.Mono()
		if haveCrash && now-lastCrash < crashWindow {
			rapid++
		} else {
			rapid = 1
		}
		lastCrash = now
		haveCrash = true

		delay := time.Duration(rapid) * 10 * time.Second
		if delay > maxBackoff {
			delay = maxBackoff
		}
		if rapid >= rapidCrashLimit {
			delay = cooldown
		}

		s.log.Error("component crashed, restarting",
			zap.String("component", s.name),
			zap.Int("rapid_crashes", rapid),
			zap.Duration("restart_delay", delay),
			zap.Error(err))

		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
		if s.onRestart != nil {
			s.onRestart()
		}
	}
}

// invoke runs fn, converting panics into errors.
func (s *Supervisor) invoke(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
