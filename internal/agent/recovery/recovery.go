// Package recovery reconciles the gap between the last persisted
// alive marker and the current start: a machine that was powered off or
// crashed mid-shift still owes the server a break record for the dark
// period.
package recovery

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/gdshr/attendance-agent/internal/agent/state"
	"github.com/gdshr/attendance-agent/internal/common/logger"
	"github.com/gdshr/attendance-agent/internal/hrclient"
)

// BreakLogger is the slice of the HR client recovery needs.
type BreakLogger interface {
	BreakOpen(ctx context.Context, startedAt time.Time) error
	BreakClose(ctx context.Context, endedAt time.Time) error
}

// Result describes what recovery did.
type Result struct {
	GapStart time.Time
	GapEnd   time.Time
	Reported bool
}

// RecoverDowntime inspects the gap between lastAlive and now and reports
// it as a break when it is long enough to matter and falls inside the
// shift. Gaps shorter than the idle threshold would not have opened a
// break had the agent been running, so they are not reported either.
// Gaps spanning a shift boundary are reported whole rather than clipped.
//
// Both break calls buffer themselves on failure, so a still-offline
// start degrades to a replay later instead of an error here.
func RecoverDowntime(
	ctx context.Context,
	hr BreakLogger,
	lastAlive, now time.Time,
	window *state.ShiftWindow,
	minGap time.Duration,
	log *logger.Logger,
) (Result, error) {
	res := Result{GapStart: lastAlive, GapEnd: now}

	if lastAlive.IsZero() {
		log.Info("no previous alive marker, skipping downtime recovery")
		return res, nil
	}

	gap := now.Sub(lastAlive)
	if gap < minGap {
		log.Debug("downtime gap below reporting threshold",
			zap.Duration("gap", gap))
		return res, nil
	}

	if !window.Contains(lastAlive) && !window.Contains(now) {
		log.Info("downtime fell outside the shift window",
			zap.Time("gap_start", lastAlive),
			zap.Time("gap_end", now))
		return res, nil
	}

	log.Info("reporting downtime as break",
		zap.Time("gap_start", lastAlive),
		zap.Time("gap_end", now),
		zap.Duration("gap", gap))

	// A buffered call is as good as a sent one here: the record will
	// reach the server on the next replay.
	if err := hr.BreakOpen(ctx, lastAlive); err != nil && !errors.Is(err, hrclient.ErrBuffered) {
		return res, err
	}
	if err := hr.BreakClose(ctx, now); err != nil && !errors.Is(err, hrclient.ErrBuffered) {
		return res, err
	}

	res.Reported = true
	return res, nil
}
