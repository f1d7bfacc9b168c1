package controller

import (
	"context"
	"time"

	"go.uber.org/zap"

	v1 "github.com/gdshr/attendance-agent/pkg/api/v1"

	"github.com/gdshr/attendance-agent/internal/events"
	"github.com/gdshr/attendance-agent/internal/hrclient"
)

// dispatchHeartbeat sends one heartbeat on a worker and reports whether
// it actually went out. The score is computed here, on the tick
// goroutine, because Score resets the tracker's counters; it is only
// attached when ACTIVE, with SUSPICIOUS pinned to zero regardless of
// what the statistics say.
func (c *Controller) dispatchHeartbeat(ctx context.Context, current v1.ActivityState, now time.Time) bool {
	if !c.hbInFlight.CompareAndSwap(false, true) {
		// Previous heartbeat still running; skip this round rather than
		// pile up requests on a slow server.
		return false
	}

	hb := hrclient.Heartbeat{
		Status:      string(current),
		IdleSeconds: c.state.IdleSeconds(),
		Timestamp:   now.UTC().Format("2006-01-02T15:04:05Z"),
	}
	switch current {
	case v1.StateActive:
		score := c.tracker.Score()
		hb.ActivityScore = &score
	case v1.StateSuspicious:
		zero := 0
		hb.ActivityScore = &zero
	}

	c.spawn(func() {
		defer c.hbInFlight.Store(false)
		err := c.hr.SendHeartbeat(ctx, hb)
		c.hbResult.Store(&heartbeatResult{err: err})
	})
	return true
}

// dispatchProbe checks transport-level reachability on a worker.
func (c *Controller) dispatchProbe() {
	if !c.prbInFlight.CompareAndSwap(false, true) {
		return
	}
	c.spawn(func() {
		defer c.prbInFlight.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.prbResult.Store(&probeResult{reachable: c.deps.Prober.Reachable(ctx)})
	})
}

// openBreak dispatches the break-open call. Fire-and-forget: failures
// buffer themselves inside the client.
func (c *Controller) openBreak(ctx context.Context, startedAt time.Time) {
	c.publish(ctx, events.BreakOpened, map[string]any{
		"started_at": startedAt.UTC(),
	})
	c.serial(func() {
		if err := c.hr.BreakOpen(context.Background(), startedAt); err != nil {
			c.log.Warn("break open deferred", zap.Error(err))
		}
	})
}

// closeBreak dispatches the break-close call and ends any lock episode
// bookkeeping.
func (c *Controller) closeBreak(endedAt time.Time) {
	c.lockBreakOpened = false
	c.publish(context.Background(), events.BreakClosed, map[string]any{
		"ended_at": endedAt.UTC(),
	})
	c.serial(func() {
		if err := c.hr.BreakClose(context.Background(), endedAt); err != nil {
			c.log.Warn("break close deferred", zap.Error(err))
		}
	})
}
