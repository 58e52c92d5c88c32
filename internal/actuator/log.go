package actuator

import (
	"context"
	"log/slog"
)

// LogDevice is a dry-run Device that only logs what it would do.
type LogDevice struct {
	logger *slog.Logger
}

// NewLogDevice returns a dry-run device writing to logger.
func NewLogDevice(logger *slog.Logger) *LogDevice {
	return &LogDevice{logger: logger}
}

func (d *LogDevice) MoveTo(x, y int32) error {
	d.logger.Debug("move", "x", x, "y", y)
	return nil
}

func (d *LogDevice) Click(x, y int32) error {
	d.logger.Info("click", "x", x, "y", y)
	return nil
}

func (d *LogDevice) Scroll(ctx context.Context, g Gesture) error {
	d.logger.Info("scroll",
		"direction", g.Direction.String(),
		"from_y", int(g.StartY),
		"to_y", int(g.EndY),
		"duration", g.Duration,
		"notches", g.Notches,
	)
	return nil
}

func (d *LogDevice) Close() error { return nil }
