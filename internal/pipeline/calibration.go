package pipeline

import "math"

// One-point offset calibration constants.
const (
	CalibrationSettleMs   = 1000
	CalibrationSamples    = 10
	MaxOffsetScreenFactor = 0.3
)

// Rejection reasons reported in CalibrationFinished.
const (
	ReasonOutOfRange = "offset out of range"
	ReasonTimeout    = "timeout"
	ReasonCancelled  = "cancelled"
)

// offsetCalibrator averages raw gaze while the user looks at a known target
// and derives a cursor offset from the difference.
type offsetCalibrator struct {
	targetX, targetY float64
	collectFromMs    int64

	sumX, sumY float64
	count      int
}

func newOffsetCalibrator(targetX, targetY float64, nowMs int64) *offsetCalibrator {
	return &offsetCalibrator{
		targetX:       targetX,
		targetY:       targetY,
		collectFromMs: nowMs + CalibrationSettleMs,
	}
}

// add records one raw sample and reports whether enough have been collected.
// Samples inside the settle period are ignored.
func (c *offsetCalibrator) add(x, y float64, tsMs int64) bool {
	if tsMs < c.collectFromMs {
		return false
	}
	c.sumX += x
	c.sumY += y
	c.count++
	return c.count >= CalibrationSamples
}

// integrate returns the current offset corrected by the measured error.
func (c *offsetCalibrator) integrate(currentX, currentY float64) (float64, float64) {
	avgX := c.sumX / float64(c.count)
	avgY := c.sumY / float64(c.count)
	return currentX + (c.targetX - avgX), currentY + (c.targetY - avgY)
}

// offsetWithinLimit reports whether both offset components fit within
// MaxOffsetScreenFactor of the smaller screen dimension.
func offsetWithinLimit(ox, oy float64, screen Screen) bool {
	limit := math.Min(screen.Width, screen.Height) * MaxOffsetScreenFactor
	return math.Abs(ox) <= limit && math.Abs(oy) <= limit
}
