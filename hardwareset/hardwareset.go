/*Package hardwareset describes collections of devices which are opened
together for a particular configuration of the instrument.

A hardware set is a YAML file:

	version: 1
	name: Bench test
	devices:
	  stepper_motor:
	    class_name: stepper_motor.dummy.DummyStepperMotor
	  temperature_controller.hot_bb:
	    class_name: temperature_controller.dummy.DummyTemperatureController
	    params:
	      set_point: 70
*/
package hardwareset

import (
	"errors"
	"fmt"
	"io/ioutil"
	"log"
	"path/filepath"
	"sort"

	"github.com/nasa-jpl/frog/bus"
	"github.com/nasa-jpl/frog/device"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"
)

// CurrentVersion is the version of the hardware set format
const CurrentVersion = 1

// ErrLoad is generated when a hardware set file is malformed
var ErrLoad = errors.New("error loading hardware set")

// Device is a device in a hardware set
type Device struct {
	Instance  device.InstanceRef     `json:"instance"`
	ClassName string                 `json:"class_name"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

// HardwareSet is a named collection of devices
type HardwareSet struct {
	Name    string   `json:"name"`
	Path    string   `json:"path,omitempty"`
	Devices []Device `json:"devices"`
}

type deviceDoc struct {
	ClassName string                 `yaml:"class_name"`
	Params    map[string]interface{} `yaml:"params,omitempty"`
}

type document struct {
	Version int                  `yaml:"version"`
	Name    string               `yaml:"name"`
	Devices map[string]deviceDoc `yaml:"devices"`
}

// Parse decodes a hardware set from YAML.  Every problem with the devices is
// reported, not just the first.
func Parse(b []byte) (*HardwareSet, error) {
	doc := document{}
	if err := yaml.UnmarshalStrict(b, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	if doc.Version != CurrentVersion {
		return nil, fmt.Errorf("%w: version number must be %d", ErrLoad, CurrentVersion)
	}
	if doc.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrLoad)
	}
	if len(doc.Devices) == 0 {
		return nil, fmt.Errorf("%w: no devices", ErrLoad)
	}
	hs := &HardwareSet{Name: doc.Name}
	var errs error
	for k, v := range doc.Devices {
		ref, err := device.ParseInstanceRef(k)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: %v", ErrLoad, err))
			continue
		}
		if v.ClassName == "" {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s has no class_name", ErrLoad, k))
			continue
		}
		hs.Devices = append(hs.Devices, Device{Instance: ref, ClassName: v.ClassName, Params: plain(v.Params)})
	}
	if errs != nil {
		return nil, errs
	}
	sort.Slice(hs.Devices, func(i, j int) bool {
		return hs.Devices[i].Instance.String() < hs.Devices[j].Instance.String()
	})
	return hs, nil
}

// plain converts the nested maps yaml produces into maps with string keys so
// params can be encoded as JSON
func plain(m map[string]interface{}) map[string]interface{} {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = plainValue(v)
	}
	return out
}

func plainValue(v interface{}) interface{} {
	switch x := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, vv := range x {
			out[fmt.Sprint(k)] = plainValue(vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, vv := range x {
			out[i] = plainValue(vv)
		}
		return out
	default:
		return v
	}
}

// Load reads the hardware set at path
func Load(path string) (*HardwareSet, error) {
	log.Printf("Loading hardware set from %s\n", path)
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	hs, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	hs.Path = path
	return hs, nil
}

// LoadDir loads every .yaml file in dir, sorted by name then path.  The sets
// which load are returned alongside the errors of those which do not.
func LoadDir(dir string) ([]*HardwareSet, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	var (
		out  []*HardwareSet
		errs error
	)
	for _, p := range paths {
		hs, err := Load(p)
		if err != nil {
			log.Printf("Could not load file %s: %v\n", p, err)
			errs = multierr.Append(errs, err)
			continue
		}
		out = append(out, hs)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Path < out[j].Path
	})
	return out, errs
}

// Marshal encodes the hardware set as YAML
func (hs *HardwareSet) Marshal() ([]byte, error) {
	doc := document{Version: CurrentVersion, Name: hs.Name, Devices: make(map[string]deviceDoc, len(hs.Devices))}
	for _, d := range hs.Devices {
		doc.Devices[d.Instance.String()] = deviceDoc{ClassName: d.ClassName, Params: d.Params}
	}
	return yaml.Marshal(doc)
}

// Save writes the hardware set to path and records it as the set's Path
func (hs *HardwareSet) Save(path string) error {
	b, err := hs.Marshal()
	if err != nil {
		return err
	}
	if err := ioutil.WriteFile(path, b, 0644); err != nil {
		return err
	}
	hs.Path = path
	return nil
}

// Open requests that every device in the set be opened, in instance order
func (hs *HardwareSet) Open(b *bus.Broker) {
	for _, d := range hs.Devices {
		b.Publish(device.TopicOpen, device.OpenRequest{
			ClassName: d.ClassName,
			Instance:  d.Instance,
			Params:    d.Params,
		})
	}
}

// Close requests that every device in the set be closed
func (hs *HardwareSet) Close(b *bus.Broker) {
	for _, d := range hs.Devices {
		b.Publish(device.TopicClose, device.CloseRequest{Instance: d.Instance})
	}
}
