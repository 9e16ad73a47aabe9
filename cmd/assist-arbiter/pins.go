package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sweeney/assist-arbiter/internal/gpio"
)

// pinsValue is a repeatable name=offset flag that overrides single entries of
// the harness wiring, leaving the rest of the defaults in place.
type pinsValue struct {
	pins *gpio.Pins
}

func newPinsValue(p *gpio.Pins) *pinsValue {
	return &pinsValue{pins: p}
}

func (v *pinsValue) Set(s string) error {
	for _, pair := range strings.Split(s, ",") {
		name, offset, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" {
			return fmt.Errorf("%q: want name=offset", pair)
		}
		n, err := strconv.Atoi(offset)
		if err != nil {
			return fmt.Errorf("%q: %w", pair, err)
		}
		if *v.pins == nil {
			*v.pins = gpio.Pins{}
		}
		(*v.pins)[name] = n
	}
	return nil
}

func (v *pinsValue) String() string {
	if v.pins == nil || len(*v.pins) == 0 {
		return ""
	}
	parts := make([]string, 0, len(*v.pins))
	for name, n := range *v.pins {
		parts = append(parts, fmt.Sprintf("%s=%d", name, n))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func (v *pinsValue) Type() string { return "name=offset" }
