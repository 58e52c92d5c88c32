//go:build !linux

package actuator

import (
	"context"
	"errors"
)

// DefaultUinputPath is the standard uinput control node.
const DefaultUinputPath = "/dev/uinput"

var errUinputUnsupported = errors.New("uinput is only available on linux")

// UinputDevice is unavailable on this platform.
type UinputDevice struct{}

// OpenUinput always fails on this platform.
func OpenUinput(path, name string, width, height int32, mode ScrollMode) (*UinputDevice, error) {
	return nil, errUinputUnsupported
}

func (d *UinputDevice) MoveTo(x, y int32) error                     { return errUinputUnsupported }
func (d *UinputDevice) Click(x, y int32) error                      { return errUinputUnsupported }
func (d *UinputDevice) Scroll(ctx context.Context, g Gesture) error { return errUinputUnsupported }
func (d *UinputDevice) Close() error                                { return nil }
