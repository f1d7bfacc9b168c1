package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gdshr/attendance-agent/internal/agent/state"
	"github.com/gdshr/attendance-agent/internal/common/logger"
	"github.com/gdshr/attendance-agent/internal/hrclient"
)

type fakeBreakLogger struct {
	opened  []time.Time
	closed  []time.Time
	openErr error
}

func (f *fakeBreakLogger) BreakOpen(_ context.Context, at time.Time) error {
	if f.openErr != nil {
		return f.openErr
	}
	f.opened = append(f.opened, at)
	return nil
}

func (f *fakeBreakLogger) BreakClose(_ context.Context, at time.Time) error {
	f.closed = append(f.closed, at)
	return nil
}

const minGap = 180 * time.Second

func workWindow(t *testing.T) *state.ShiftWindow {
	t.Helper()
	w, err := state.ParseShiftWindow("09:00", "18:00", 15*time.Minute)
	require.NoError(t, err)
	return w
}

func at(h, m int) time.Time {
	return time.Date(2025, 6, 2, h, m, 0, 0, time.UTC)
}

func TestRecoverReportsMidShiftGap(t *testing.T) {
	hr := &fakeBreakLogger{}
	log := logger.NewNop()

	res, err := RecoverDowntime(context.Background(), hr, at(11, 0), at(11, 30), workWindow(t), minGap, log)
	require.NoError(t, err)
	assert.True(t, res.Reported)
	require.Len(t, hr.opened, 1)
	require.Len(t, hr.closed, 1)
	assert.Equal(t, at(11, 0), hr.opened[0])
	assert.Equal(t, at(11, 30), hr.closed[0])
}

func TestRecoverSkipsFirstRun(t *testing.T) {
	hr := &fakeBreakLogger{}
	res, err := RecoverDowntime(context.Background(), hr, time.Time{}, at(9, 30), workWindow(t), minGap, logger.NewNop())
	require.NoError(t, err)
	assert.False(t, res.Reported)
	assert.Empty(t, hr.opened)
}

func TestRecoverSkipsShortGap(t *testing.T) {
	hr := &fakeBreakLogger{}

	// A reboot shorter than the idle threshold would not have opened a
	// break, so it does not get one retroactively either.
	res, err := RecoverDowntime(context.Background(), hr, at(11, 0), at(11, 2), workWindow(t), minGap, logger.NewNop())
	require.NoError(t, err)
	assert.False(t, res.Reported)
	assert.Empty(t, hr.opened)
}

func TestRecoverSkipsOutsideShift(t *testing.T) {
	hr := &fakeBreakLogger{}

	// Machine off overnight, restarted before the shift: not a break.
	res, err := RecoverDowntime(context.Background(), hr, at(20, 0), at(8, 0).Add(24*time.Hour), workWindow(t), minGap, logger.NewNop())
	require.NoError(t, err)
	assert.False(t, res.Reported)
}

func TestRecoverReportsBoundarySpanningGapWhole(t *testing.T) {
	hr := &fakeBreakLogger{}

	// Crash at 17:50, restart 18:40: the gap straddles shift end and is
	// reported unclipped.
	res, err := RecoverDowntime(context.Background(), hr, at(17, 50), at(18, 40), workWindow(t), minGap, logger.NewNop())
	require.NoError(t, err)
	assert.True(t, res.Reported)
	assert.Equal(t, at(17, 50), hr.opened[0])
	assert.Equal(t, at(18, 40), hr.closed[0])
}

func TestRecoverNoWindowMeansAlwaysOnDuty(t *testing.T) {
	hr := &fakeBreakLogger{}
	res, err := RecoverDowntime(context.Background(), hr, at(3, 0), at(4, 0), nil, minGap, logger.NewNop())
	require.NoError(t, err)
	assert.True(t, res.Reported)
}

func TestRecoverBufferedCallsCountAsReported(t *testing.T) {
	hr := &fakeBreakLogger{openErr: hrclient.ErrBuffered}
	res, err := RecoverDowntime(context.Background(), hr, at(11, 0), at(12, 0), workWindow(t), minGap, logger.NewNop())
	require.NoError(t, err)
	assert.True(t, res.Reported)
	require.Len(t, hr.closed, 1, "close still dispatched after a buffered open")
}

func TestRecoverPropagatesHardFailure(t *testing.T) {
	hr := &fakeBreakLogger{openErr: errors.New("boom")}
	res, err := RecoverDowntime(context.Background(), hr, at(11, 0), at(12, 0), workWindow(t), minGap, logger.NewNop())
	assert.Error(t, err)
	assert.False(t, res.Reported)
	assert.Empty(t, hr.closed)
}
