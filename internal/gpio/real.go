//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/assist-arbiter/internal/logic"
)

// RealReader reads harness lines from actual hardware using the Linux GPIO
// character device.
type RealReader struct {
	chip   *gpiocdev.Chip
	lines  *gpiocdev.Lines
	names  []string
	values []int
	bench  Bench
}

// NewRealReader requests every line in pins as an active-low input with
// pull-up, so a switch to ground reads as pressed.
func NewRealReader(chipName string, pins Pins, bench Bench) (*RealReader, error) {
	if err := pins.Validate(); err != nil {
		return nil, err
	}

	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	names := pins.names()
	offsets := make([]int, len(names))
	for i, name := range names {
		offsets[i] = pins[name]
	}

	lines, err := chip.RequestLines(offsets, gpiocdev.AsInput, gpiocdev.WithPullUp, gpiocdev.AsActiveLow)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request lines %v: %w", offsets, err)
	}

	return &RealReader{
		chip:   chip,
		lines:  lines,
		names:  names,
		values: make([]int, len(names)),
		bench:  bench,
	}, nil
}

// Read samples every line at once and assembles a frame.
func (r *RealReader) Read() (logic.Input, error) {
	if err := r.lines.Values(r.values); err != nil {
		return logic.Input{}, fmt.Errorf("read lines: %w", err)
	}

	levels := make(map[string]bool, len(r.names))
	for i, name := range r.names {
		levels[name] = r.values[i] == 1
	}
	return FrameFromLevels(levels, r.bench), nil
}

// Close releases GPIO resources.
// Lines are put back to input with pull-down (the Pi boot default) before
// closing so the harness does not hold them in an unexpected state.
func (r *RealReader) Close() error {
	var errs []error

	if r.lines != nil {
		if err := r.lines.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown, gpiocdev.AsActiveHigh); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure lines: %w", err))
		}
		if err := r.lines.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close lines: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
