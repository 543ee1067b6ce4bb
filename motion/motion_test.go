package motion_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/nasa-jpl/frog/motion"
	"gopkg.in/yaml.v2"
)

func ExampleAngle_Resolve() {
	for _, a := range []motion.Angle{motion.Degrees(12.5), motion.Preset("zenith")} {
		deg, _ := a.Resolve()
		fmt.Println(a, deg)
	}
	// Output:
	// 12.5 12.5
	// zenith 180
}

func ExamplePresetNames() {
	fmt.Println(motion.PresetNames())
	// Output: [cold_bb home hot_bb nadir park zenith]
}

func TestValidate(t *testing.T) {
	cases := []struct {
		a   motion.Angle
		err error
	}{
		{motion.Degrees(0), nil},
		{motion.Degrees(359.9), nil},
		{motion.Degrees(360), motion.ErrOutOfRange},
		{motion.Degrees(-0.1), motion.ErrOutOfRange},
		{motion.Preset("nadir"), nil},
		{motion.Preset("ZENITH"), motion.ErrUnknownPreset},
		{motion.Preset("kevin"), motion.ErrUnknownPreset},
	}
	for _, c := range cases {
		if err := c.a.Validate(); !errors.Is(err, c.err) {
			t.Errorf("%v: expected %v got %v", c.a, c.err, err)
		}
	}
}

func TestStepFor(t *testing.T) {
	const steps = 36
	for target := -36; target < 72; target++ {
		step, err := motion.StepFor(motion.Degrees(10*float64(target)), steps)
		if target < 0 || target >= steps {
			if !errors.Is(err, motion.ErrOutOfRange) {
				t.Errorf("target %d: expected ErrOutOfRange got %v", target, err)
			}
			continue
		}
		if err != nil || step != target {
			t.Errorf("target %d: expected step %d got %d (%v)", target, target, step, err)
		}
	}
	step, err := motion.StepFor(motion.Preset("park"), steps)
	if err != nil || step != 9 {
		t.Errorf("expected 9 got %d (%v)", step, err)
	}
	if a := motion.AngleFor(9, steps); a != 90 {
		t.Errorf("expected 90 got %v", a)
	}
}

func TestAngleEncoding(t *testing.T) {
	type doc struct {
		A motion.Angle `yaml:"a" json:"a"`
	}
	for _, a := range []motion.Angle{motion.Degrees(42.5), motion.Degrees(90), motion.Preset("hot_bb")} {
		y, err := yaml.Marshal(doc{a})
		if err != nil {
			t.Fatal(err)
		}
		var fromY doc
		if err := yaml.Unmarshal(y, &fromY); err != nil {
			t.Fatal(err)
		}
		if fromY.A != a {
			t.Errorf("yaml: expected %v got %v", a, fromY.A)
		}
		j, err := json.Marshal(doc{a})
		if err != nil {
			t.Fatal(err)
		}
		var fromJ doc
		if err := json.Unmarshal(j, &fromJ); err != nil {
			t.Fatal(err)
		}
		if fromJ.A != a {
			t.Errorf("json: expected %v got %v", a, fromJ.A)
		}
	}
	var bad doc
	if err := json.Unmarshal([]byte(`{"a": true}`), &bad); !errors.Is(err, motion.ErrNotAnAngle) {
		t.Errorf("expected ErrNotAnAngle got %v", err)
	}
}
