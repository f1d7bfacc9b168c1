package tracker

import (
	"math"
	"time"
)

// Each component contributes 0-20 points. Low variance or low diversity
// reads as automation; high variance reads as a person.

// scoreDensity rates the raw event volume over the scoring period.
func scoreDensity(totalEvents int) int {
	switch {
	case totalEvents < 3:
		return 0
	case totalEvents < 8:
		return 5
	case totalEvents < 15:
		return 10
	case totalEvents < 25:
		return 15
	default:
		return 20
	}
}

// scoreClickIntervals rates variance in the gaps between clicks.
// Auto-clickers produce near-constant intervals; humans do not.
func scoreClickIntervals(clickTimes []time.Time) int {
	if len(clickTimes) < 3 {
		return 20
	}

	intervals := make([]float64, 0, len(clickTimes)-1)
	for i := 1; i < len(clickTimes); i++ {
		intervals = append(intervals, clickTimes[i].Sub(clickTimes[i-1]).Seconds())
	}

	// Zero-length gaps carry no measurable rhythm to judge.
	cv, ok := coefficientOfVariation(intervals)
	if !ok {
		return 20
	}
	switch {
	case cv < 0.05:
		return 0
	case cv < 0.10:
		return 4
	case cv < 0.15:
		return 8
	case cv < 0.20:
		return 12
	case cv < 0.30:
		return 16
	default:
		return 20
	}
}

// scorePositionDiversity rates how spread out click positions are.
// Positions are bucketed into 20px grid cells so jitter-within-a-button
// still counts as one place.
func scorePositionDiversity(positions []point) int {
	if len(positions) < 3 {
		return 20
	}

	cells := make(map[point]struct{}, len(positions))
	for _, p := range positions {
		cells[point{x: p.x / 20, y: p.y / 20}] = struct{}{}
	}

	diversity := float64(len(cells)) / float64(len(positions))
	switch {
	case diversity < 0.05:
		return 0
	case diversity < 0.10:
		return 4
	case diversity < 0.20:
		return 8
	case diversity < 0.40:
		return 12
	case diversity < 0.60:
		return 16
	default:
		return 20
	}
}

// scoreInputMix rates the balance between keyboard and mouse activity.
// Mouse-only sessions with zero keystrokes are the classic auto-clicker
// signature.
func scoreInputMix(keyCount, scrollCount, totalEvents int) int {
	if totalEvents <= 3 {
		return 20
	}
	if keyCount == 0 {
		if scrollCount > 0 {
			return 6
		}
		return 0
	}

	keyRatio := float64(keyCount) / float64(totalEvents)
	switch {
	case keyRatio < 0.05:
		return 10
	case keyRatio < 0.10:
		return 15
	default:
		return 20
	}
}

// scoreMovementNaturalness rates variance in cursor speed between
// consecutive sampled moves. Scripted movement is uniform; a hand is not.
func scoreMovementNaturalness(moves []moveSample) int {
	if len(moves) < 5 {
		return 20
	}

	speeds := make([]float64, 0, len(moves)-1)
	for i := 1; i < len(moves); i++ {
		dx := float64(moves[i].x - moves[i-1].x)
		dy := float64(moves[i].y - moves[i-1].y)
		dt := moves[i].at.Sub(moves[i-1].at).Seconds()
		if dt < 0.001 {
			dt = 0.001
		}
		speeds = append(speeds, math.Hypot(dx, dy)/dt)
	}

	// A cursor that never actually moved produces no speeds to judge.
	cv, ok := coefficientOfVariation(speeds)
	if !ok {
		return 20
	}
	switch {
	case cv < 0.05:
		return 0
	case cv < 0.10:
		return 4
	case cv < 0.20:
		return 10
	case cv < 0.30:
		return 15
	default:
		return 20
	}
}

// coefficientOfVariation returns stddev/mean. A non-positive mean means
// the samples hold no usable signal; ok is false and the caller must not
// treat the result as evidence of uniformity.
func coefficientOfVariation(samples []float64) (float64, bool) {
	if len(samples) == 0 {
		return 0, false
	}

	var sum float64
	for _, s := range samples {
		sum += s
	}
	mean := sum / float64(len(samples))
	if mean <= 0 {
		return 0, false
	}

	var sq float64
	for _, s := range samples {
		d := s - mean
		sq += d * d
	}
	return math.Sqrt(sq/float64(len(samples))) / mean, true
}
