//go:build linux

package actuator

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultUinputPath is the standard uinput control node.
const DefaultUinputPath = "/dev/uinput"

// uinput ioctls (linux/uinput.h).
const (
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502
	uiSetEvBit   = 0x40045564
	uiSetKeyBit  = 0x40045565
	uiSetRelBit  = 0x40045566
	uiSetAbsBit  = 0x40045567
)

// Event types and codes (linux/input-event-codes.h).
const (
	evSyn = 0x00
	evKey = 0x01
	evRel = 0x02
	evAbs = 0x03

	synReport = 0x00
	absX      = 0x00
	absY      = 0x01
	relWheel  = 0x08
	btnLeft   = 0x110

	busVirtual = 0x06
)

const (
	maxNameSize = 80
	absSize     = 64

	// swipeFrame is the step interval of a drag swipe.
	swipeFrame = 16 * time.Millisecond
	clickHold  = 20 * time.Millisecond
)

// inputEvent mirrors struct input_event on 64-bit Linux.
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// uinputUserDev mirrors struct uinput_user_dev.
type uinputUserDev struct {
	Name       [maxNameSize]byte
	ID         inputID
	EffectsMax uint32
	Absmax     [absSize]int32
	Absmin     [absSize]int32
	Absfuzz    [absSize]int32
	Absflat    [absSize]int32
}

// UinputDevice is a virtual absolute pointer with a left button and a wheel.
type UinputDevice struct {
	f    *os.File
	mode ScrollMode
}

// OpenUinput creates a virtual pointer sized to width x height pixels.
func OpenUinput(path, name string, width, height int32, mode ScrollMode) (*UinputDevice, error) {
	if path == "" {
		path = DefaultUinputPath
	}
	f, err := os.OpenFile(path, os.O_WRONLY|unix.O_NONBLOCK, 0660)
	if err != nil {
		return nil, fmt.Errorf("open uinput: %w", err)
	}

	fail := func(what string, err error) (*UinputDevice, error) {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", what, err)
	}

	for _, ev := range []int{evKey, evAbs, evRel} {
		if err := ioctl(f, uiSetEvBit, ev); err != nil {
			return fail(fmt.Sprintf("set ev bit %d", ev), err)
		}
	}
	if err := ioctl(f, uiSetKeyBit, btnLeft); err != nil {
		return fail("set key bit", err)
	}
	for _, code := range []int{absX, absY} {
		if err := ioctl(f, uiSetAbsBit, code); err != nil {
			return fail(fmt.Sprintf("set abs bit %d", code), err)
		}
	}
	if err := ioctl(f, uiSetRelBit, relWheel); err != nil {
		return fail("set rel bit", err)
	}

	dev := uinputUserDev{
		ID: inputID{Bustype: busVirtual, Vendor: 0x1209, Product: 0x6a7e, Version: 1},
	}
	copy(dev.Name[:], name)
	dev.Absmax[absX] = max(width-1, 1)
	dev.Absmax[absY] = max(height-1, 1)

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, dev); err != nil {
		return fail("encode uinput device", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return fail("write uinput device", err)
	}
	if err := ioctl(f, uiDevCreate, 0); err != nil {
		return fail("create uinput device", err)
	}

	return &UinputDevice{f: f, mode: mode}, nil
}

func ioctl(f *os.File, req uint, value int) error {
	return unix.IoctlSetInt(int(f.Fd()), req, value)
}

func (d *UinputDevice) write(events ...inputEvent) error {
	now := time.Now()
	buf := new(bytes.Buffer)
	for _, ev := range events {
		ev.Sec = now.Unix()
		ev.Usec = int64(now.Nanosecond() / 1000)
		if err := binary.Write(buf, binary.LittleEndian, ev); err != nil {
			return fmt.Errorf("encode input event: %w", err)
		}
	}
	if _, err := d.f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write input events: %w", err)
	}
	return nil
}

func syn() inputEvent { return inputEvent{Type: evSyn, Code: synReport} }

func moveEvents(x, y int32) []inputEvent {
	return []inputEvent{
		{Type: evAbs, Code: absX, Value: x},
		{Type: evAbs, Code: absY, Value: y},
		syn(),
	}
}

// MoveTo warps the pointer.
func (d *UinputDevice) MoveTo(x, y int32) error {
	return d.write(moveEvents(x, y)...)
}

// Click moves to (x, y) and taps the left button.
func (d *UinputDevice) Click(x, y int32) error {
	if err := d.write(moveEvents(x, y)...); err != nil {
		return err
	}
	if err := d.write(inputEvent{Type: evKey, Code: btnLeft, Value: 1}, syn()); err != nil {
		return err
	}
	time.Sleep(clickHold)
	return d.write(inputEvent{Type: evKey, Code: btnLeft, Value: 0}, syn())
}

// Scroll performs one gesture in the device's scroll mode.
func (d *UinputDevice) Scroll(ctx context.Context, g Gesture) error {
	if d.mode == ScrollModeDrag {
		return d.drag(ctx, g)
	}
	return d.write(inputEvent{Type: evRel, Code: relWheel, Value: int32(g.Notches)}, syn())
}

// drag presses at the swipe start, moves along the path and releases. The
// button is always released, even when ctx ends mid-swipe.
func (d *UinputDevice) drag(ctx context.Context, g Gesture) error {
	steps := max(int(g.Duration/swipeFrame), 2)
	path := g.Path(steps)

	start := path[0]
	if err := d.write(moveEvents(int32(start[0]), int32(start[1]))...); err != nil {
		return err
	}
	if err := d.write(inputEvent{Type: evKey, Code: btnLeft, Value: 1}, syn()); err != nil {
		return err
	}
	defer func() {
		_ = d.write(inputEvent{Type: evKey, Code: btnLeft, Value: 0}, syn())
	}()

	ticker := time.NewTicker(g.Duration / time.Duration(steps))
	defer ticker.Stop()
	for _, pt := range path[1:] {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := d.write(moveEvents(int32(pt[0]), int32(pt[1]))...); err != nil {
			return err
		}
	}
	return nil
}

// Close destroys the virtual device.
func (d *UinputDevice) Close() error {
	_ = ioctl(d.f, uiDevDestroy, 0)
	return d.f.Close()
}
