// Package motion describes the angles a rotating mirror can be driven to,
// either numerically in degrees or by the name of a preset position, and
// the conversion between angles and stepper motor steps.
package motion

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

var (
	// ErrUnknownPreset is generated when an angle names a preset that does not exist
	ErrUnknownPreset = errors.New("unknown preset angle")

	// ErrOutOfRange is generated when an angle is outside [0, 360)
	ErrOutOfRange = errors.New("angle must be in the range [0, 360)")

	// ErrNotAnAngle is generated when decoding something that is neither a number nor a string
	ErrNotAnAngle = errors.New("angle must be a number of degrees or a preset name")
)

// Presets maps the names of preset angles to degrees.  Names are case sensitive.
var Presets = map[string]float64{
	"zenith":  180.,
	"nadir":   0.,
	"hot_bb":  270.,
	"cold_bb": 225.,
	"home":    0.,
	"park":    90.,
}

// Rest is the preset the mirror is returned to when a script stops
const Rest = "nadir"

// PresetNames returns the names of the presets, sorted
func PresetNames() []string {
	out := make([]string, 0, len(Presets))
	for k := range Presets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Angle is either a number of degrees or the name of a preset.  The zero
// value is 0 degrees.
type Angle struct {
	deg    float64
	preset string
}

// Degrees returns an angle of f degrees
func Degrees(f float64) Angle {
	return Angle{deg: f}
}

// Preset returns an angle naming a preset.  The name is not checked; see Validate.
func Preset(name string) Angle {
	return Angle{preset: name}
}

// IsPreset returns true if the angle names a preset
func (a Angle) IsPreset() bool {
	return a.preset != ""
}

// Name returns the preset name, or "" for a numeric angle
func (a Angle) Name() string {
	return a.preset
}

// Resolve returns the angle in degrees, looking up presets
func (a Angle) Resolve() (float64, error) {
	if !a.IsPreset() {
		return a.deg, nil
	}
	f, ok := Presets[a.preset]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPreset, a.preset)
	}
	return f, nil
}

// Validate returns an error unless the angle is a known preset or a number
// of degrees in [0, 360)
func (a Angle) Validate() error {
	f, err := a.Resolve()
	if err != nil {
		return err
	}
	if a.IsPreset() {
		return nil
	}
	if math.IsNaN(f) || f < 0 || f >= 360 {
		return fmt.Errorf("%w: %v", ErrOutOfRange, f)
	}
	return nil
}

// String returns the preset name or the number of degrees
func (a Angle) String() string {
	if a.IsPreset() {
		return a.preset
	}
	return strconv.FormatFloat(a.deg, 'g', -1, 64)
}

// FromValue converts a decoded YAML or JSON value into an Angle.  Integers
// are accepted as whole numbers of degrees.
func FromValue(v interface{}) (Angle, error) {
	switch x := v.(type) {
	case float64:
		return Degrees(x), nil
	case float32:
		return Degrees(float64(x)), nil
	case int:
		return Degrees(float64(x)), nil
	case int64:
		return Degrees(float64(x)), nil
	case uint64:
		return Degrees(float64(x)), nil
	case string:
		if x == "" {
			return Angle{}, ErrNotAnAngle
		}
		return Preset(x), nil
	default:
		return Angle{}, fmt.Errorf("%w: %v", ErrNotAnAngle, v)
	}
}

// Value returns the float64 or string the angle encodes to
func (a Angle) Value() interface{} {
	if a.IsPreset() {
		return a.preset
	}
	return a.deg
}

// MarshalYAML satisfies yaml.Marshaler
func (a Angle) MarshalYAML() (interface{}, error) {
	return a.Value(), nil
}

// UnmarshalYAML satisfies yaml.Unmarshaler
func (a *Angle) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var v interface{}
	if err := unmarshal(&v); err != nil {
		return err
	}
	ang, err := FromValue(v)
	if err != nil {
		return err
	}
	*a = ang
	return nil
}

// MarshalJSON satisfies json.Marshaler
func (a Angle) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Value())
}

// UnmarshalJSON satisfies json.Unmarshaler
func (a *Angle) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	ang, err := FromValue(v)
	if err != nil {
		return err
	}
	*a = ang
	return nil
}

// StepFor converts an angle into a step index for a motor with
// stepsPerRotation steps, rounding to the nearest step
func StepFor(a Angle, stepsPerRotation int) (int, error) {
	deg, err := a.Resolve()
	if err != nil {
		return 0, err
	}
	step := int(math.Round(float64(stepsPerRotation) * deg / 360.))
	if step < 0 || step >= stepsPerRotation {
		return 0, fmt.Errorf("%w: %v", ErrOutOfRange, deg)
	}
	return step, nil
}

// AngleFor converts a step index into degrees
func AngleFor(step, stepsPerRotation int) float64 {
	return 360. * float64(step) / float64(stepsPerRotation)
}
