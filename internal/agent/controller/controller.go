// Package controller is the agent's heart: a single-threaded state
// machine loop that drains input, classifies activity, drives the break
// lifecycle, and schedules heartbeats.
//
// Concurrency contract: the Tracker and State are mutated only by the
// tick goroutine. Network calls run on workers that hand results back
// through atomic slots; the UI bridge funnels break submissions through
// a channel. Status reads go through an atomic snapshot.
package controller

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	v1 "github.com/gdshr/attendance-agent/pkg/api/v1"

	"github.com/gdshr/attendance-agent/internal/agent/input"
	"github.com/gdshr/attendance-agent/internal/agent/state"
	"github.com/gdshr/attendance-agent/internal/agent/tracker"
	"github.com/gdshr/attendance-agent/internal/common/clock"
	"github.com/gdshr/attendance-agent/internal/common/config"
	"github.com/gdshr/attendance-agent/internal/common/logger"
	"github.com/gdshr/attendance-agent/internal/detect"
	"github.com/gdshr/attendance-agent/internal/events"
	"github.com/gdshr/attendance-agent/internal/events/bus"
	"github.com/gdshr/attendance-agent/internal/hrclient"
	"github.com/gdshr/attendance-agent/internal/offline"
	"github.com/gdshr/attendance-agent/internal/platform"
)

// HRClient is the slice of the HR wire client the controller drives.
type HRClient interface {
	SendHeartbeat(ctx context.Context, hb hrclient.Heartbeat) error
	BreakOpen(ctx context.Context, startedAt time.Time) error
	BreakAnnotate(ctx context.Context, category, reason string) error
	BreakClose(ctx context.Context, endedAt time.Time) error
	ReplayBuffered(ctx context.Context) (replayed, remaining int, err error)
	ResetConnectionPool()
}

// Popup is the UI-facing capability the controller raises and lowers.
type Popup interface {
	ShowPopup()
	HidePopup()
	Notify(kind, message string)
}

// Deps bundles everything the controller needs.
type Deps struct {
	Config   config.AgentConfig
	Clock    clock.Clock
	Logger   *logger.Logger
	Bus      bus.EventBus
	Queue    *input.Queue
	Watchdog *input.Watchdog
	Scanner  *detect.Scanner
	Probe    platform.Probe
	Prober   offline.Prober
	HR       HRClient
	Alive    *offline.AliveFile
	Popup    Popup
	Window   *state.ShiftWindow

	// SuspiciousWarning pushes a warning dialog when automation is found.
	SuspiciousWarning bool
}

type heartbeatResult struct {
	err error
}

type probeResult struct {
	reachable bool
}

// Controller owns the tick loop.
type Controller struct {
	cfg  config.AgentConfig
	clk  clock.Clock
	log  *logger.Logger
	bus  bus.EventBus
	hr   HRClient
	deps Deps

	tracker *tracker.Tracker
	state   *state.State

	status atomic.Value // v1.AgentStatus

	// submitCh carries popup-submitted signals from the UI bridge to the
	// tick goroutine.
	submitCh chan struct{}

	// breakCh serializes break-lifecycle network calls so open never
	// races close.
	breakCh chan func()

	hbResult    atomic.Pointer[heartbeatResult]
	hbInFlight  atomic.Bool
	prbResult   atomic.Pointer[probeResult]
	prbInFlight atomic.Bool

	// spawn and serial are swapped for synchronous execution in tests.
	spawn  func(fn func())
	serial func(fn func())

	lastHeartbeat      time.Duration
	lastHeartbeatState v1.ActivityState
	hbFailures         int
	suspiciousBin      string
	lastState          v1.ActivityState
	offlineBreakOpened bool
	lockBreakOpened    bool
	wasLocked          bool
	inShift            bool
}

// New wires a controller from its dependencies.
func New(deps Deps) *Controller {
	c := &Controller{
		cfg:      deps.Config,
		clk:      deps.Clock,
		log:      deps.Logger,
		bus:      deps.Bus,
		hr:       deps.HR,
		deps:     deps,
		tracker:  tracker.New(deps.Config.PatternBufferSize, deps.Config.MoveThrottle()),
		state:    state.New(deps.Clock, deps.Config.IdleThreshold(), deps.Config.IdleCap()),
		submitCh: make(chan struct{}, 1),
		breakCh:  make(chan func(), 32),
		// Heartbeat cadence counts from startup, not from the epoch.
		lastHeartbeat:      deps.Clock.Mono(),
		lastHeartbeatState: v1.StateActive,
		lastState:          v1.StateActive,
		inShift:            true,
	}
	c.spawn = func(fn func()) { go fn() }
	c.serial = func(fn func()) { c.breakCh <- fn }
	c.storeSnapshot()
	return c
}

// SetPopup attaches the popup channel after construction. The UI bridge
// serves status from the controller while the controller pushes popups
// through the bridge, so one side has to attach late.
func (c *Controller) SetPopup(p Popup) {
	c.deps.Popup = p
}

// Sink returns the function capture sources deliver events to.
func (c *Controller) Sink() func(tracker.Event) {
	return c.deps.Queue.Push
}

// Run drives the tick loop until the context ends or the device is
// revoked.
func (c *Controller) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	// Break-call worker: executes open/annotate/close/replay closures in
	// submission order.
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case fn := <-c.breakCh:
				fn()
			}
		}
	})

	g.Go(func() error {
		return c.loop(ctx)
	})

	err := g.Wait()
	if stderrors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Controller) loop(ctx context.Context) error {
	drain := time.NewTicker(c.cfg.DrainInterval())
	defer drain.Stop()
	evaluate := time.NewTicker(c.cfg.TickInterval())
	defer evaluate.Stop()
	watchdog := time.NewTicker(c.cfg.WatchdogInterval())
	defer watchdog.Stop()
	procs := time.NewTicker(c.cfg.ProcessPollInterval())
	defer procs.Stop()

	c.deps.Watchdog.StartAll()
	defer c.deps.Watchdog.StopAll()

	popupDrain := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.submitCh:
			c.applySubmission()
		case <-drain.C:
			c.drainTick()
			// The drain cadence relaxes while a popup is up: input is then
			// only a dismissal signal, not material to score.
			if visible := c.state.PopupVisible(); visible != popupDrain {
				popupDrain = visible
				if visible {
					drain.Reset(c.cfg.PopupDrainInterval())
				} else {
					drain.Reset(c.cfg.DrainInterval())
				}
			}
		case <-evaluate.C:
			if err := c.evaluateTick(ctx); err != nil {
				return err
			}
		case <-watchdog.C:
			c.deps.Watchdog.Check()
		case <-procs.C:
			c.processTick(ctx)
		}
	}
}

// Status returns the latest status snapshot. Safe from any goroutine.
func (c *Controller) Status() v1.AgentStatus {
	return c.status.Load().(v1.AgentStatus)
}

// SubmitBreak forwards the employee's annotation to the server and, on
// save or buffer, advances the popup lifecycle. Called from the UI
// bridge's request goroutine.
func (c *Controller) SubmitBreak(ctx context.Context, sub v1.BreakSubmission) (v1.BreakSubmissionResult, error) {
	st := c.Status()
	if !st.PopupVisible {
		return v1.BreakSubmissionResult{}, fmt.Errorf("no annotation is pending")
	}

	err := c.hr.BreakAnnotate(ctx, sub.Category, sub.Reason)
	switch {
	case err == nil:
		c.publish(ctx, events.BreakAnnotated, map[string]any{
			"category": sub.Category,
		})
		c.signalSubmitted()
		return v1.BreakSubmissionResult{Saved: true}, nil
	case stderrors.Is(err, hrclient.ErrBuffered):
		// The reason is durable locally; the popup must not hold the
		// employee hostage to a dead network.
		c.signalSubmitted()
		return v1.BreakSubmissionResult{
			Buffered: true,
			Message:  "reason saved locally, will sync when back online",
		}, nil
	default:
		return v1.BreakSubmissionResult{}, err
	}
}

func (c *Controller) signalSubmitted() {
	select {
	case c.submitCh <- struct{}{}:
	default:
	}
}

// storeSnapshot publishes the current status for concurrent readers.
func (c *Controller) storeSnapshot() {
	st := v1.AgentStatus{
		State:         c.lastState,
		Score:         c.tracker.LastScore(),
		IdleSeconds:   c.state.IdleSeconds(),
		Online:        !c.state.Offline(),
		SystemLocked:  c.deps.Probe != nil && c.deps.Probe.IsSystemLocked(),
		PopupVisible:  c.state.PopupVisible(),
		BreakActive:   c.state.BreakActive(),
		SuspiciousBin: c.suspiciousBin,
		Version:       v1.AgentVersion,
	}
	if c.state.BreakActive() {
		started := c.state.BreakStarted()
		st.BreakStartAt = &started
	}
	c.status.Store(st)
}

func (c *Controller) publish(ctx context.Context, subject string, data map[string]any) {
	if c.bus == nil {
		return
	}
	ev := bus.NewEvent(subject, "controller", data)
	if err := c.bus.Publish(ctx, subject, ev); err != nil {
		c.log.Debug("event publish failed")
	}
}
