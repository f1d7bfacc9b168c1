package controller

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/gdshr/attendance-agent/pkg/api/v1"

	"github.com/gdshr/attendance-agent/internal/agent/input"
	"github.com/gdshr/attendance-agent/internal/agent/state"
	"github.com/gdshr/attendance-agent/internal/agent/tracker"
	"github.com/gdshr/attendance-agent/internal/common/clock"
	"github.com/gdshr/attendance-agent/internal/common/config"
	"github.com/gdshr/attendance-agent/internal/common/logger"
	"github.com/gdshr/attendance-agent/internal/detect"
	"github.com/gdshr/attendance-agent/internal/hrclient"
	"github.com/gdshr/attendance-agent/internal/offline"
)

type fakeHR struct {
	mu          sync.Mutex
	heartbeats  []hrclient.Heartbeat
	opens       []time.Time
	annotates   [][2]string
	closes      []time.Time
	replays     int
	poolResets  int
	hbErr       error
	annotateErr error
}

func (f *fakeHR) SendHeartbeat(_ context.Context, hb hrclient.Heartbeat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats = append(f.heartbeats, hb)
	return f.hbErr
}

func (f *fakeHR) BreakOpen(_ context.Context, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens = append(f.opens, at)
	return nil
}

func (f *fakeHR) BreakAnnotate(_ context.Context, category, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.annotates = append(f.annotates, [2]string{category, reason})
	return f.annotateErr
}

func (f *fakeHR) BreakClose(_ context.Context, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes = append(f.closes, at)
	return nil
}

func (f *fakeHR) ReplayBuffered(context.Context) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replays++
	return 0, 0, nil
}

func (f *fakeHR) ResetConnectionPool() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.poolResets++
}

type fakePopup struct {
	shows, hides int
	notices      []string
}

func (f *fakePopup) ShowPopup() { f.shows++ }
func (f *fakePopup) HidePopup() { f.hides++ }
func (f *fakePopup) Notify(kind, _ string) {
	f.notices = append(f.notices, kind)
}

type fakeProbe struct {
	locked bool
	procs  []string
}

func (f *fakeProbe) IsSystemLocked() bool                  { return f.locked }
func (f *fakeProbe) SystemIdleSeconds() float64            { return -1 }
func (f *fakeProbe) RunningProcessNames() ([]string, error) { return f.procs, nil }
func (f *fakeProbe) Hostname() string                      { return "test-host" }

type fakeProber struct {
	reachable bool
}

func (f *fakeProber) Reachable(context.Context) bool { return f.reachable }

type harness struct {
	c      *Controller
	clk    *clock.Fake
	hr     *fakeHR
	popup  *fakePopup
	probe  *fakeProbe
	prober *fakeProber
	queue  *input.Queue
	alive  *offline.AliveFile
}

func testAgentConfig() config.AgentConfig {
	return config.AgentConfig{
		IdleThresholdSec:     180,
		HeartbeatIntervalSec: 3,
		MoveThrottleMs:       500,
		PatternBufferSize:    30,
		TickIntervalMs:       3000,
		DrainIntervalMs:      200,
		PopupDrainIntervalMs: 500,
		DrainBatchLimit:      200,
		WatchdogIntervalSec:  30,
		ProcessPollSec:       30,
		IdleCapSec:           600,
	}
}

func newHarness(t *testing.T, window *state.ShiftWindow) *harness {
	t.Helper()

	clk := clock.NewFake(time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC))
	log := logger.NewNop()
	h := &harness{
		clk:    clk,
		hr:     &fakeHR{},
		popup:  &fakePopup{},
		probe:  &fakeProbe{},
		prober: &fakeProber{reachable: true},
		queue:  input.NewQueue(1000),
		alive:  offline.NewAliveFile(filepath.Join(t.TempDir(), "state.json"), v1.AgentVersion),
	}

	h.c = New(Deps{
		Config:            testAgentConfig(),
		Clock:             clk,
		Logger:            log,
		Queue:             h.queue,
		Watchdog:          input.NewWatchdog(nil, h.queue.Push, log),
		Scanner:           detect.NewScanner(),
		Probe:             h.probe,
		Prober:            h.prober,
		HR:                h.hr,
		Alive:             h.alive,
		Popup:             h.popup,
		Window:            window,
		SuspiciousWarning: true,
	})

	// Workers run inline so ticks are deterministic.
	h.c.spawn = func(fn func()) { fn() }
	h.c.serial = func(fn func()) { fn() }
	return h
}

func (h *harness) tick(t *testing.T) {
	t.Helper()
	require.NoError(t, h.c.evaluateTick(context.Background()))
}

func (h *harness) pushKey() {
	h.queue.Push(tracker.Event{Kind: tracker.KindKey, At: h.clk.Now()})
}

func TestIdlePopupBreakLifecycle(t *testing.T) {
	h := newHarness(t, nil)

	h.tick(t)
	assert.Zero(t, h.popup.shows, "not idle yet")

	// Cross the idle threshold.
	h.clk.Advance(200 * time.Second)
	h.tick(t)

	assert.Equal(t, 1, h.popup.shows)
	require.Len(t, h.hr.opens, 1)
	assert.Equal(t, h.clk.Now().Add(-200*time.Second), h.hr.opens[0],
		"break starts when the idleness began, not when it was noticed")
	assert.Equal(t, v1.StateIdle, h.c.Status().State)
	assert.True(t, h.c.Status().PopupVisible)
	assert.True(t, h.c.Status().BreakActive)

	// Still idle: no duplicate popup, no duplicate open.
	h.clk.Advance(3 * time.Second)
	h.tick(t)
	assert.Equal(t, 1, h.popup.shows)
	assert.Len(t, h.hr.opens, 1)

	// Employee submits a reason.
	res, err := h.c.SubmitBreak(context.Background(), v1.BreakSubmission{
		Category: "Personal Break", Reason: "tea",
	})
	require.NoError(t, err)
	assert.True(t, res.Saved)
	require.Len(t, h.hr.annotates, 1)
	assert.Equal(t, "Personal Break", h.hr.annotates[0][0])

	h.tick(t) // consumes the submission signal
	assert.True(t, h.c.Status().PopupVisible, "popup stays up until real input")

	// First real activity closes the break and hides the popup.
	h.clk.Advance(time.Second)
	h.pushKey()
	h.c.drainTick()

	assert.Equal(t, 1, h.popup.hides)
	require.Len(t, h.hr.closes, 1)
	assert.Equal(t, h.clk.Now(), h.hr.closes[0])
	assert.False(t, h.c.Status().BreakActive)
	assert.False(t, h.c.Status().PopupVisible)

	h.tick(t)
	assert.Equal(t, v1.StateActive, h.c.Status().State)
}

func TestInputWhilePopupShowingIsDiscarded(t *testing.T) {
	h := newHarness(t, nil)
	h.clk.Advance(200 * time.Second)
	h.tick(t)
	require.Equal(t, 1, h.popup.shows)

	// Typing into the popup must not close the break or feed the tracker.
	h.pushKey()
	h.pushKey()
	h.c.drainTick()

	assert.Empty(t, h.hr.closes)
	assert.Zero(t, h.popup.hides)
	assert.True(t, h.c.Status().PopupVisible)
	assert.Equal(t, 0, h.queue.Len())
}

func TestSubmitWithoutPopupRejected(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.c.SubmitBreak(context.Background(), v1.BreakSubmission{
		Category: "Others", Reason: "x",
	})
	assert.Error(t, err)
	assert.Empty(t, h.hr.annotates)
}

func TestBufferedAnnotateStillAdvancesPopup(t *testing.T) {
	h := newHarness(t, nil)
	h.clk.Advance(200 * time.Second)
	h.tick(t)
	require.Equal(t, 1, h.popup.shows)

	h.hr.annotateErr = hrclient.ErrBuffered
	res, err := h.c.SubmitBreak(context.Background(), v1.BreakSubmission{
		Category: "Others", Reason: "network died",
	})
	require.NoError(t, err)
	assert.True(t, res.Buffered)
	assert.False(t, res.Saved)

	// Activity still resolves the episode.
	h.tick(t)
	h.pushKey()
	h.c.drainTick()
	assert.Len(t, h.hr.closes, 1)
}

func TestHeartbeatCadenceAndPayload(t *testing.T) {
	h := newHarness(t, nil)

	h.pushKey()
	h.c.drainTick()

	h.clk.Advance(3 * time.Second)
	h.tick(t)
	require.Len(t, h.hr.heartbeats, 1)
	hb := h.hr.heartbeats[0]
	assert.Equal(t, "ACTIVE", hb.Status)
	assert.Equal(t, "2025-06-02T09:30:03Z", hb.Timestamp)

	// Next tick inside the interval: no heartbeat.
	h.tick(t)
	assert.Len(t, h.hr.heartbeats, 1)

	h.clk.Advance(3 * time.Second)
	h.tick(t)
	assert.Len(t, h.hr.heartbeats, 2)
}

func TestIdleHeartbeatOmitsScore(t *testing.T) {
	h := newHarness(t, nil)

	h.clk.Advance(200 * time.Second)
	h.tick(t)

	require.Len(t, h.hr.heartbeats, 1)
	assert.Equal(t, "IDLE", h.hr.heartbeats[0].Status)
	assert.Nil(t, h.hr.heartbeats[0].ActivityScore, "only active heartbeats carry a score")
	assert.InDelta(t, 200, h.hr.heartbeats[0].IdleSeconds, 1)
}

func TestStateChangeHeartbeatRetriesAfterInFlightSkip(t *testing.T) {
	h := newHarness(t, nil)

	h.pushKey()
	h.c.drainTick()
	h.clk.Advance(3 * time.Second)
	h.tick(t)
	require.Len(t, h.hr.heartbeats, 1)
	require.Equal(t, "ACTIVE", h.hr.heartbeats[0].Status)

	// Go idle while the previous heartbeat is still on the wire: the
	// transition send is skipped.
	h.clk.Advance(200 * time.Second)
	h.c.hbInFlight.Store(true)
	h.tick(t)
	assert.Len(t, h.hr.heartbeats, 1)

	// Once the wire clears the transition goes out on the next tick, not
	// after a full interval.
	h.c.hbInFlight.Store(false)
	h.clk.Advance(time.Second)
	h.tick(t)
	require.Len(t, h.hr.heartbeats, 2)
	assert.Equal(t, "IDLE", h.hr.heartbeats[1].Status)
}

func TestSubmissionResetsIdleTimer(t *testing.T) {
	h := newHarness(t, nil)

	h.clk.Advance(200 * time.Second)
	h.tick(t)
	require.Equal(t, 1, h.popup.shows)
	require.Equal(t, v1.StateIdle, h.c.Status().State)

	h.clk.Advance(3 * time.Second)
	_, err := h.c.SubmitBreak(context.Background(), v1.BreakSubmission{
		Category: "Others", Reason: "water",
	})
	require.NoError(t, err)
	h.tick(t)

	assert.Less(t, h.c.Status().IdleSeconds, 1.0, "submitting a reason counts as activity")
	assert.Equal(t, v1.StateActive, h.c.Status().State)
}

func TestAliveMarkerTouchedEachTick(t *testing.T) {
	h := newHarness(t, nil)
	h.tick(t)

	last, err := h.alive.Last()
	require.NoError(t, err)
	assert.True(t, h.clk.Now().Equal(last))
}

func TestSuspiciousDetectionOverridesStateAndScore(t *testing.T) {
	h := newHarness(t, nil)

	// Human-looking activity so the classification would be ACTIVE.
	h.pushKey()
	h.c.drainTick()

	h.probe.procs = []string{"chrome", "TinyTask.exe"}
	h.c.processTick(context.Background())

	assert.Equal(t, []string{"suspicious"}, h.popup.notices)
	assert.Equal(t, "tinytask", h.c.Status().SuspiciousBin)

	h.clk.Advance(3 * time.Second)
	h.tick(t)
	assert.Equal(t, v1.StateSuspicious, h.c.Status().State)
	require.Len(t, h.hr.heartbeats, 1)
	assert.Equal(t, "SUSPICIOUS", h.hr.heartbeats[0].Status)
	require.NotNil(t, h.hr.heartbeats[0].ActivityScore)
	assert.Equal(t, 0, *h.hr.heartbeats[0].ActivityScore)

	// Repeated scans do not re-notify.
	h.c.processTick(context.Background())
	assert.Len(t, h.popup.notices, 1)

	// Tool exits: flag clears.
	h.probe.procs = []string{"chrome"}
	h.c.processTick(context.Background())
	assert.Empty(t, h.c.Status().SuspiciousBin)
}

func TestLockBreakPromptsOnUnlock(t *testing.T) {
	h := newHarness(t, nil)

	h.probe.locked = true
	h.tick(t)

	require.Len(t, h.hr.opens, 1)
	assert.Equal(t, h.clk.Now(), h.hr.opens[0])
	assert.Equal(t, v1.StateIdle, h.c.Status().State)
	assert.Zero(t, h.popup.shows, "no popup while locked")

	// Locked for a while: still one break.
	h.clk.Advance(10 * time.Minute)
	h.tick(t)
	assert.Len(t, h.hr.opens, 1)

	// Unlock and type: the popup fires for the lock episode instead of
	// the break silently closing.
	h.probe.locked = false
	h.pushKey()
	h.c.drainTick()
	assert.Equal(t, 1, h.popup.shows)
	assert.Empty(t, h.hr.closes)
	assert.True(t, h.c.Status().BreakActive)
	assert.True(t, h.c.Status().PopupVisible)

	// Annotate, then the next activity closes the episode.
	res, err := h.c.SubmitBreak(context.Background(), v1.BreakSubmission{
		Category: "Official", Reason: "meeting room",
	})
	require.NoError(t, err)
	assert.True(t, res.Saved)
	require.Len(t, h.hr.annotates, 1)
	h.tick(t)

	h.clk.Advance(time.Second)
	h.pushKey()
	h.c.drainTick()
	require.Len(t, h.hr.closes, 1)
	assert.Equal(t, h.clk.Now(), h.hr.closes[0])
	assert.False(t, h.c.Status().BreakActive)
	assert.False(t, h.c.Status().PopupVisible)
}

func TestUnlockWithoutInputStillPrompts(t *testing.T) {
	h := newHarness(t, nil)

	h.probe.locked = true
	h.tick(t)
	require.Len(t, h.hr.opens, 1)

	// The unlock edge alone schedules the popup; no keypress needed.
	h.clk.Advance(10 * time.Minute)
	h.probe.locked = false
	h.tick(t)

	assert.Equal(t, 1, h.popup.shows)
	assert.True(t, h.c.Status().BreakActive)

	// Exactly one popup per lock episode.
	h.clk.Advance(3 * time.Second)
	h.tick(t)
	assert.Equal(t, 1, h.popup.shows)
}

func TestOfflineEpisodeLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	h.hr.hbErr = errors.New("connection refused")
	h.prober.reachable = false

	// Keep the employee active so idleness never interferes.
	step := func() {
		h.clk.Advance(3 * time.Second)
		h.pushKey()
		h.c.drainTick()
		h.tick(t)
	}

	// Two heartbeat failures earn a probe; the probe confirms the network
	// is down on the following tick.
	step() // heartbeat 1 dispatched
	step() // failure 1 consumed, heartbeat 2 dispatched
	step() // failure 2 consumed, probe dispatched
	step() // probe result consumed: offline
	assert.False(t, h.c.Status().Online)
	assert.Greater(t, h.hr.poolResets, 0)
	offlineStart := h.c.state.OfflineSince()

	// Offline but under the threshold: no break yet.
	assert.Empty(t, h.hr.opens)

	// Outlast the idle threshold: auto-break opens at the episode start.
	for i := 0; i < 61; i++ {
		step()
	}
	require.NotEmpty(t, h.hr.opens)
	assert.Equal(t, offlineStart, h.hr.opens[0])
	assert.Zero(t, h.popup.shows, "offline breaks never prompt")

	// Network returns: probe succeeds, break closes, buffer replays.
	h.prober.reachable = true
	h.hr.hbErr = nil
	step() // probe dispatched with the network back
	step() // result consumed: online again

	assert.True(t, h.c.Status().Online)
	assert.NotEmpty(t, h.hr.closes)
	assert.Greater(t, h.hr.replays, 0)
	assert.False(t, h.c.Status().BreakActive)
}

func TestHeartbeatFailuresAloneDoNotGoOffline(t *testing.T) {
	h := newHarness(t, nil)
	h.hr.hbErr = errors.New("502 bad gateway")
	h.prober.reachable = true // transport is fine, backend is sick

	for i := 0; i < 6; i++ {
		h.clk.Advance(3 * time.Second)
		h.pushKey()
		h.c.drainTick()
		h.tick(t)
	}
	assert.True(t, h.c.Status().Online, "reachable transport keeps the agent online")
}

func TestDeviceRevokedStopsController(t *testing.T) {
	h := newHarness(t, nil)
	h.hr.hbErr = hrclient.ErrDeviceRevoked

	h.clk.Advance(3 * time.Second)
	h.tick(t) // dispatches the heartbeat, which fails with revocation

	h.clk.Advance(3 * time.Second)
	err := h.c.evaluateTick(context.Background())
	assert.ErrorIs(t, err, hrclient.ErrDeviceRevoked)
}

func TestShiftGatingSkipsEverything(t *testing.T) {
	window, err := state.ParseShiftWindow("09:00", "18:00", 15*time.Minute)
	require.NoError(t, err)
	h := newHarness(t, window)

	// 20:00, well past shift end.
	h.clk.Advance(10*time.Hour + 30*time.Minute)
	h.tick(t)

	assert.Empty(t, h.hr.heartbeats)
	assert.Zero(t, h.popup.shows)

	// The alive marker is still maintained off shift so downtime recovery
	// measures from the true last-run instant.
	last, aerr := h.alive.Last()
	require.NoError(t, aerr)
	assert.True(t, h.clk.Now().Equal(last))

	// Queued input is discarded, not scored.
	h.pushKey()
	h.c.drainTick()
	assert.Equal(t, 0, h.queue.Len())

	// Back inside the window everything resumes.
	h.clk.Advance(13 * time.Hour) // 09:00 next day
	h.clk.Advance(3 * time.Second)
	h.tick(t)
	assert.NotEmpty(t, h.hr.heartbeats)
}

func TestMoveEventsFeedTracker(t *testing.T) {
	h := newHarness(t, nil)

	at := h.clk.Now()
	for i := 0; i < 10; i++ {
		h.queue.Push(tracker.Event{Kind: tracker.KindClick, X: i * 40, Y: i * 25, At: at.Add(time.Duration(i) * time.Second)})
	}
	h.c.drainTick()

	assert.Equal(t, 0, h.queue.Len())
	assert.False(t, h.c.state.IsIdle())

	// The heartbeat carries a score computed from what was recorded.
	h.clk.Advance(3 * time.Second)
	h.tick(t)
	require.Len(t, h.hr.heartbeats, 1)
	require.NotNil(t, h.hr.heartbeats[0].ActivityScore)
	assert.Greater(t, *h.hr.heartbeats[0].ActivityScore, 0)
}
