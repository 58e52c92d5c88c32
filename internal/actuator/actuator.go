// Package actuator turns pipeline decisions into pointer input.
//
// A Device performs single operations (move, click, one scroll gesture).
// A Worker owns a Device on its own goroutine, paces continuous scrolls and
// enforces the gesture guard so callers never block.
package actuator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/eorua8801/restructured-cursor/internal/edgescroll"
)

// Actuator is what the daemon drives. *Worker implements it.
type Actuator interface {
	Move(x, y float64) error
	Click(x, y float64) error
	Scroll(dir edgescroll.ScrollAction, count int) error
	Close() error
}

// Device performs one pointer operation at a time. Implementations need not
// be safe for concurrent use.
type Device interface {
	MoveTo(x, y int32) error
	Click(x, y int32) error
	Scroll(ctx context.Context, g Gesture) error
	Close() error
}

// ScrollMode selects how a scroll gesture is delivered.
type ScrollMode string

const (
	ScrollModeWheel ScrollMode = "wheel"
	ScrollModeDrag  ScrollMode = "drag"
)

// ParseScrollMode is case-insensitive.
func ParseScrollMode(s string) (ScrollMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ScrollModeWheel):
		return ScrollModeWheel, nil
	case string(ScrollModeDrag):
		return ScrollModeDrag, nil
	default:
		return "", fmt.Errorf("unknown scroll mode %q (want wheel or drag)", s)
	}
}

// ScrollAmount is a swipe length as a fraction of screen height.
type ScrollAmount float64

const (
	AmountSmall  ScrollAmount = 0.15
	AmountMedium ScrollAmount = 0.20
	AmountLarge  ScrollAmount = 0.30
)

// Swipe anchors as fractions of screen height.
const (
	upStartRatio   = 0.6
	downStartRatio = 0.4

	baseSwipeDuration      = 200 * time.Millisecond
	swipeDurationPerAmount = 300 * time.Millisecond
)

// Gesture is one scroll swipe in screen pixels.
type Gesture struct {
	Direction edgescroll.ScrollAction
	StartX    float64
	StartY    float64
	EndX      float64
	EndY      float64
	Duration  time.Duration

	// Notches is the signed wheel step count used in wheel mode. Positive
	// values reveal content above, matching a downward swipe.
	Notches int
}

// NewGesture builds the swipe for dir on a width x height screen.
//
//	up:   0.6H -> (0.6-amount)H
//	down: 0.4H -> (0.4+amount)H
//
// Both run along the vertical center line and last 200ms + amount*300ms.
func NewGesture(dir edgescroll.ScrollAction, amount ScrollAmount, width, height float64, notches int) Gesture {
	a := float64(amount)
	g := Gesture{
		Direction: dir,
		StartX:    width / 2,
		EndX:      width / 2,
		Duration:  baseSwipeDuration + time.Duration(a*float64(swipeDurationPerAmount)),
	}
	switch dir {
	case edgescroll.ScrollUp:
		g.StartY = height * upStartRatio
		g.EndY = height * (upStartRatio - a)
		g.Notches = -notches
	case edgescroll.ScrollDown:
		g.StartY = height * downStartRatio
		g.EndY = height * (downStartRatio + a)
		g.Notches = notches
	}
	return g
}

// Path samples the swipe into steps+1 points from start to end inclusive.
func (g Gesture) Path(steps int) [][2]float64 {
	if steps < 1 {
		steps = 1
	}
	pts := make([][2]float64, 0, steps+1)
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		pts = append(pts, [2]float64{
			g.StartX + (g.EndX-g.StartX)*t,
			g.StartY + (g.EndY-g.StartY)*t,
		})
	}
	return pts
}
