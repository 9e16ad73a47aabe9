package vehicle

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/assist-arbiter/internal/logic"
)

// Overlay is a flat key->value tuning document. Keys that match a Params
// field replace the built-in default; everything else is ignored.
type Overlay map[string]any

type setter func(p *Params, v any) error

func floatField(field func(p *Params) *float64) setter {
	return func(p *Params, v any) error {
		f, ok := toFloat(v)
		if !ok {
			return fmt.Errorf("expected number, got %T", v)
		}
		*field(p) = f
		return nil
	}
}

func boolField(field func(p *Params) *bool) setter {
	return func(p *Params, v any) error {
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", v)
		}
		*field(p) = b
		return nil
	}
}

func intField(field func(p *Params) *int) setter {
	return func(p *Params, v any) error {
		f, ok := toFloat(v)
		if !ok || f != math.Trunc(f) {
			return fmt.Errorf("expected integer, got %v", v)
		}
		*field(p) = int(f)
		return nil
	}
}

func floatsField(field func(p *Params) *[]float64) setter {
	return func(p *Params, v any) error {
		var out []float64
		switch vs := v.(type) {
		case []float64:
			out = append(out, vs...)
		case []any:
			for i, e := range vs {
				f, ok := toFloat(e)
				if !ok {
					return fmt.Errorf("element %d: expected number, got %T", i, e)
				}
				out = append(out, f)
			}
		default:
			return fmt.Errorf("expected list of numbers, got %T", v)
		}
		*field(p) = out
		return nil
	}
}

func setLateralPolicy(p *Params, v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("expected string, got %T", v)
	}
	policy, err := logic.ParseLateralPolicy(s)
	if err != nil {
		return err
	}
	p.LateralPolicy = policy
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// overlayKeys maps every supported tuning key to the field it replaces.
var overlayKeys = map[string]setter{
	"dashcamOnly":        boolField(func(p *Params) *bool { return &p.DashcamOnly }),
	"radarUnavailable":   boolField(func(p *Params) *bool { return &p.RadarUnavailable }),
	"steerActuatorDelay": floatField(func(p *Params) *float64 { return &p.SteerActuatorDelay }),
	"wheelbase":          floatField(func(p *Params) *float64 { return &p.Wheelbase }),
	"steerRatio":         floatField(func(p *Params) *float64 { return &p.SteerRatio }),
	"mass":               floatField(func(p *Params) *float64 { return &p.Mass }),
	"minEnableSpeed":     floatField(func(p *Params) *float64 { return &p.MinEnableSpeed }),

	"stoppingControl":   boolField(func(p *Params) *bool { return &p.Longitudinal.StoppingControl }),
	"startingState":     boolField(func(p *Params) *bool { return &p.Longitudinal.StartingState }),
	"startAccel":        floatField(func(p *Params) *float64 { return &p.Longitudinal.StartAccel }),
	"vEgoStarting":      floatField(func(p *Params) *float64 { return &p.Longitudinal.VEgoStarting }),
	"vEgoStopping":      floatField(func(p *Params) *float64 { return &p.Longitudinal.VEgoStopping }),
	"stopAccel":         floatField(func(p *Params) *float64 { return &p.Longitudinal.StopAccel }),
	"stoppingDecelRate": floatField(func(p *Params) *float64 { return &p.Longitudinal.StoppingDecelRate }),
	"longitudinalActuatorDelayLowerBound": floatField(func(p *Params) *float64 {
		return &p.Longitudinal.ActuatorDelayLowerBound
	}),
	"longitudinalActuatorDelayUpperBound": floatField(func(p *Params) *float64 {
		return &p.Longitudinal.ActuatorDelayUpperBound
	}),

	"longitudinalTuning_kf":         floatField(func(p *Params) *float64 { return &p.Longitudinal.Kf }),
	"longitudinalTuning_kpBP":       floatsField(func(p *Params) *[]float64 { return &p.Longitudinal.KpBP }),
	"longitudinalTuning_kpV":        floatsField(func(p *Params) *[]float64 { return &p.Longitudinal.KpV }),
	"longitudinalTuning_kiBP":       floatsField(func(p *Params) *[]float64 { return &p.Longitudinal.KiBP }),
	"longitudinalTuning_kiV":        floatsField(func(p *Params) *[]float64 { return &p.Longitudinal.KiV }),
	"longitudinalTuning_deadzoneBP": floatsField(func(p *Params) *[]float64 { return &p.Longitudinal.DeadzoneBP }),
	"longitudinalTuning_deadzoneV":  floatsField(func(p *Params) *[]float64 { return &p.Longitudinal.DeadzoneV }),

	"supportsLateralArbitration": boolField(func(p *Params) *bool { return &p.SupportsLateralArbitration }),
	"stockCruiseSpeedHoldover":   boolField(func(p *Params) *bool { return &p.StockCruiseSpeedHoldover }),
	"disengageOnAccelerator":     boolField(func(p *Params) *bool { return &p.DisengageOnAccelerator }),
	"lateralPolicy":              setLateralPolicy,

	"followDistance_min":       intField(func(p *Params) *int { return &p.FollowDistance.Min }),
	"followDistance_max":       intField(func(p *Params) *int { return &p.FollowDistance.Max }),
	"followDistance_default":   intField(func(p *Params) *int { return &p.FollowDistance.Default }),
	"followDistance_direction": intField(func(p *Params) *int { return &p.FollowDistance.Direction }),
}

// OverlayKeys returns every key the overlay understands, sorted.
func OverlayKeys() []string {
	keys := make([]string, 0, len(overlayKeys))
	for k := range overlayKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ApplyOverlay merges o into p. It returns the keys it did not recognise.
func ApplyOverlay(p *Params, o Overlay) ([]string, error) {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var ignored []string
	for _, k := range keys {
		set, ok := overlayKeys[k]
		if !ok {
			ignored = append(ignored, k)
			continue
		}
		if err := set(p, o[k]); err != nil {
			return ignored, &ConfigError{Key: k, Err: err}
		}
	}
	return ignored, nil
}

// LoadOverlay reads a tuning document. The format follows the file
// extension: .json, .toml, .yaml or .yml. A missing file yields an empty
// overlay, since tuning is optional.
func LoadOverlay(path string) (Overlay, error) {
	if path == "" {
		return Overlay{}, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Overlay{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tuning %s: %w", path, err)
	}

	o := Overlay{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(b, &o)
	case ".toml":
		err = toml.Unmarshal(b, &o)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &o)
	default:
		return nil, &ConfigError{Key: "tuning", Err: fmt.Errorf("unsupported tuning format %q", ext)}
	}
	if err != nil {
		return nil, &ConfigError{Key: "tuning", Err: fmt.Errorf("parse %s: %w", path, err)}
	}
	return o, nil
}
