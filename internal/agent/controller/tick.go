package controller

import (
	"context"
	stderrors "errors"
	"time"

	"go.uber.org/zap"

	v1 "github.com/gdshr/attendance-agent/pkg/api/v1"

	"github.com/gdshr/attendance-agent/internal/agent/state"
	"github.com/gdshr/attendance-agent/internal/events"
	"github.com/gdshr/attendance-agent/internal/hrclient"
)

// drainTick consumes queued input. What happens to the events depends on
// the popup phase: normally they feed the tracker; while the popup is
// showing they are discarded (the employee is interacting with the popup
// itself); after submission the first event is the confirming activity
// that ends the break episode.
func (c *Controller) drainTick() {
	if !c.inShift {
		c.deps.Queue.DiscardAll()
		return
	}

	evs := c.deps.Queue.Drain(c.cfg.DrainBatchLimit)
	if len(evs) == 0 {
		return
	}
	now := c.clk.Now()

	switch c.state.Popup() {
	case state.PopupShowing:
		// Typing a reason into the popup is not evidence of work.
		return

	case state.PopupSubmitted:
		c.state.RecordActivity()
		closeBreak := c.state.OnUserActive()
		c.deps.Popup.HidePopup()
		if closeBreak {
			c.closeBreak(now)
		}
		c.storeSnapshot()
		return

	default:
		for _, ev := range evs {
			c.tracker.Record(ev)
		}
		c.state.RecordActivity()
		// Offline breaks end on reconnect only; local activity cannot be
		// confirmed to the server while offline.
		if c.state.BreakActive() && !c.state.Offline() {
			if c.lockBreakOpened && c.state.Popup() == state.PopupHidden {
				// Input reached the unlock edge before the evaluate pass
				// did: prompt for the lock episode instead of closing it
				// unannotated.
				c.promptForLockBreak()
			} else if c.state.OnUserActive() {
				c.closeBreak(now)
			}
			c.storeSnapshot()
		}
	}
}

// promptForLockBreak raises the annotation popup for a lock-opened
// break. Unlike the idle popup it does not wait for the idle threshold;
// the unlock edge itself is the trigger, once per episode.
func (c *Controller) promptForLockBreak() {
	if !c.lockBreakOpened || c.state.Popup() != state.PopupHidden || c.state.Offline() {
		return
	}
	c.deps.Popup.ShowPopup()
	c.state.OnPopupShown()
}

// applySubmission moves the popup to its submitted phase on the tick
// goroutine.
func (c *Controller) applySubmission() {
	c.state.OnPopupSubmitted()
	c.storeSnapshot()
}

// evaluateTick is the 3-second state machine pass.
func (c *Controller) evaluateTick(ctx context.Context) error {
	// Late submissions may have arrived between select wakeups.
	select {
	case <-c.submitCh:
		c.applySubmission()
	default:
	}

	now := c.clk.Now()

	// The alive marker is written even off shift so downtime recovery
	// measures the dark period from when the process last ran, not from
	// the shift boundary.
	if err := c.deps.Alive.Touch(now); err != nil {
		c.log.Warn("failed to persist alive marker", zap.Error(err))
	}

	if c.deps.Window != nil {
		in := c.deps.Window.Contains(now)
		if in != c.inShift {
			c.log.Info("shift window boundary crossed", zap.Bool("in_shift", in))
			c.inShift = in
		}
		if !in {
			// Off duty: record nothing, send nothing.
			c.storeSnapshot()
			return nil
		}
	}

	if err := c.consumeHeartbeatResult(ctx, now); err != nil {
		return err
	}
	c.consumeProbeResult(ctx, now)

	locked := c.deps.Probe.IsSystemLocked()
	if locked && !c.state.BreakActive() {
		c.log.Info("workstation locked, opening break")
		c.lockBreakOpened = true
		c.state.OnBreakOpened(now)
		c.openBreak(ctx, now)
	}
	if !locked && c.wasLocked {
		c.promptForLockBreak()
	}
	c.wasLocked = locked

	c.evaluateOffline(ctx, now)

	// Classification.
	current := v1.StateActive
	if locked || c.state.IsIdle() {
		current = v1.StateIdle
	} else if c.suspiciousBin != "" {
		current = v1.StateSuspicious
	}
	stateChanged := current != c.lastState
	if stateChanged {
		c.log.Info("activity state changed",
			zap.String("from", string(c.lastState)),
			zap.String("to", string(current)))
		c.publish(ctx, events.StateChanged, map[string]any{
			"from": string(c.lastState),
			"to":   string(current),
		})
		c.lastState = current
	}

	// Popup: raised once per idle episode, never while offline or locked.
	if !locked && c.state.CanShowPopup() {
		c.deps.Popup.ShowPopup()
		c.state.OnPopupShown()
		if !c.state.BreakActive() {
			idleStart := now.Add(-time.Duration(c.state.IdleSeconds() * float64(time.Second)))
			c.state.OnBreakOpened(idleStart)
			c.openBreak(ctx, idleStart)
		}
	}

	// Heartbeat cadence: the interval, or immediately when the state no
	// longer matches the last one actually sent. Bookkeeping advances only
	// on a real dispatch, so a send skipped by the in-flight guard is
	// retried on the next tick.
	if current != c.lastHeartbeatState || c.clk.Mono()-c.lastHeartbeat >= c.cfg.HeartbeatInterval() {
		if c.dispatchHeartbeat(ctx, current, now) {
			c.lastHeartbeat = c.clk.Mono()
			c.lastHeartbeatState = current
		}
	}

	c.storeSnapshot()
	return nil
}

// evaluateOffline opens the auto-detected break once an offline episode
// outlasts the idle threshold, and keeps probing for recovery.
func (c *Controller) evaluateOffline(ctx context.Context, now time.Time) {
	if !c.state.Offline() {
		return
	}

	if !c.offlineBreakOpened && !c.state.BreakActive() &&
		now.Sub(c.state.OfflineSince()) >= c.cfg.IdleThreshold() {
		c.log.Info("offline episode exceeded threshold, opening break",
			zap.Time("offline_since", c.state.OfflineSince()))
		c.offlineBreakOpened = true
		c.state.OnBreakOpened(c.state.OfflineSince())
		c.openBreak(ctx, c.state.OfflineSince())
	}

	c.dispatchProbe()
}

// goOnline ends the offline episode: close the auto-break if one was
// opened, replay the buffer, refresh the connection pool.
func (c *Controller) goOnline(ctx context.Context, now time.Time) {
	since := c.state.MarkOnline()
	c.log.Info("connectivity restored", zap.Time("offline_since", since))
	c.hbFailures = 0
	c.hr.ResetConnectionPool()
	c.publish(ctx, events.Connectivity, map[string]any{"online": true})

	if c.offlineBreakOpened {
		c.offlineBreakOpened = false
		c.state.OnBreakClosed()
		c.closeBreak(now)
	}

	c.serial(func() {
		if _, remaining, err := c.hr.ReplayBuffered(ctx); err != nil {
			c.log.Warn("buffer replay incomplete",
				zap.Int("remaining", remaining),
				zap.Error(err))
		}
	})
}

// goOffline starts the offline episode.
func (c *Controller) goOffline(ctx context.Context) {
	c.log.Warn("connectivity lost, entering offline mode")
	c.state.MarkOffline()
	c.hr.ResetConnectionPool()
	c.publish(ctx, events.Connectivity, map[string]any{"online": false})
}

// consumeHeartbeatResult applies the outcome of the last heartbeat
// worker. A revoked device is fatal: monitoring without valid
// credentials would silently report into the void.
func (c *Controller) consumeHeartbeatResult(ctx context.Context, now time.Time) error {
	r := c.hbResult.Swap(nil)
	if r == nil {
		return nil
	}

	if r.err == nil {
		c.hbFailures = 0
		c.publish(ctx, events.HeartbeatSent, map[string]any{"ok": true})
		if c.state.Offline() {
			c.goOnline(ctx, now)
		}
		return nil
	}

	if stderrors.Is(r.err, hrclient.ErrDeviceRevoked) {
		c.log.Error("device revoked by server, stopping", zap.Error(r.err))
		return r.err
	}

	c.hbFailures++
	c.log.Warn("heartbeat failed",
		zap.Int("consecutive_failures", c.hbFailures),
		zap.Error(r.err))

	// Two straight failures earn a transport-level probe; HTTP errors
	// alone never flip the agent offline.
	if c.hbFailures >= 2 && !c.state.Offline() {
		c.dispatchProbe()
	}
	return nil
}

// consumeProbeResult applies the outcome of the last reachability probe.
func (c *Controller) consumeProbeResult(ctx context.Context, now time.Time) {
	r := c.prbResult.Swap(nil)
	if r == nil {
		return
	}

	if r.reachable && c.state.Offline() {
		c.goOnline(ctx, now)
	} else if !r.reachable && !c.state.Offline() && c.hbFailures >= 2 {
		c.goOffline(ctx)
	}
}

// processTick scans running processes against the automation deny-list.
func (c *Controller) processTick(ctx context.Context) {
	if !c.inShift {
		return
	}

	names, err := c.deps.Probe.RunningProcessNames()
	if err != nil {
		c.log.Debug("process scan unavailable", zap.Error(err))
		return
	}

	hits := c.deps.Scanner.Scan(names)
	if len(hits) == 0 {
		if c.suspiciousBin != "" {
			c.log.Info("automation tool no longer running",
				zap.String("binary", c.suspiciousBin))
			c.suspiciousBin = ""
			c.storeSnapshot()
		}
		return
	}

	if hits[0] != c.suspiciousBin {
		c.suspiciousBin = hits[0]
		c.log.Warn("automation tool detected",
			zap.Strings("binaries", hits))
		c.publish(ctx, events.SuspiciousDetected, map[string]any{
			"binaries": hits,
		})
		if c.deps.SuspiciousWarning {
			c.deps.Popup.Notify("suspicious",
				"An automation tool was detected on this machine. This incident has been reported.")
		}
		c.storeSnapshot()
	}
}
