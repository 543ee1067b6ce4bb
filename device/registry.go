package device

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/nasa-jpl/frog/bus"
)

// parameter types
const (
	TypeInt    = "int"
	TypeFloat  = "float"
	TypeString = "string"
	TypeBool   = "bool"
)

var (
	// ErrUnknownType is generated when a class or base type is not registered
	ErrUnknownType = errors.New("unknown device type")

	// ErrDuplicate is generated when something is registered twice
	ErrDuplicate = errors.New("already registered")

	// ErrBadParameter is generated when device parameters fail validation
	ErrBadParameter = errors.New("invalid device parameter")
)

// Parameter describes one construction parameter of a device type
type Parameter struct {
	// Description is human readable
	Description string `json:"description"`

	// Type is one of TypeInt, TypeFloat, TypeString, TypeBool
	Type string `json:"type"`

	// Default is used when the parameter is not given.  A nil Default
	// makes the parameter mandatory.
	Default interface{} `json:"default,omitempty"`

	// Allowed, if not empty, enumerates the legal values
	Allowed []interface{} `json:"allowed,omitempty"`
}

// TypeInfo describes a concrete device type
type TypeInfo struct {
	// ClassName uniquely identifies the type, e.g. stepper_motor.dummy.DummyStepperMotor
	ClassName string `json:"class_name"`

	// Description is human readable
	Description string `json:"description"`

	// Parameters are the construction parameters
	Parameters map[string]Parameter `json:"parameters"`
}

// Factory constructs a device.  params have been validated and have had
// defaults filled in by the registry.
type Factory func(b *bus.Broker, name string, params map[string]interface{}) (Device, error)

type entry struct {
	base    string
	info    TypeInfo
	factory Factory
}

// Group is a base type and the device types belonging to it
type Group struct {
	Base  BaseTypeInfo `json:"base"`
	Types []TypeInfo   `json:"types"`
}

// Registry is a lookup table of device types, populated by explicit calls
// at startup.  It is concurrent safe.
type Registry struct {
	mu    sync.RWMutex
	bases map[string]BaseTypeInfo
	types map[string]entry
}

// NewRegistry returns an empty Registry
func NewRegistry() *Registry {
	return &Registry{
		bases: make(map[string]BaseTypeInfo),
		types: make(map[string]entry),
	}
}

// RegisterBaseType adds a base type to the registry
func (r *Registry) RegisterBaseType(info BaseTypeInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bases[info.Name]; ok {
		return fmt.Errorf("base type %s %w", info.Name, ErrDuplicate)
	}
	r.bases[info.Name] = info
	return nil
}

// Register adds a device type belonging to the named base type
func (r *Registry) Register(baseType string, info TypeInfo, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bases[baseType]; !ok {
		return fmt.Errorf("%w: base type %s", ErrUnknownType, baseType)
	}
	if _, ok := r.types[info.ClassName]; ok {
		return fmt.Errorf("device type %s %w", info.ClassName, ErrDuplicate)
	}
	for name, p := range info.Parameters {
		if p.Default == nil {
			continue
		}
		if err := checkValue(name, p, p.Default); err != nil {
			return fmt.Errorf("default for %s: %w", info.ClassName, err)
		}
	}
	r.types[info.ClassName] = entry{base: baseType, info: info, factory: f}
	return nil
}

// BaseType returns the information for a base type
func (r *Registry) BaseType(name string) (BaseTypeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.bases[name]
	return info, ok
}

// Lookup returns the information for a device type and the name of its base type
func (r *Registry) Lookup(className string) (TypeInfo, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.types[className]
	return e.info, e.base, ok
}

// Groups returns device types grouped by base type.  Groups are sorted by
// the description of the base type, and the types inside each group by
// their own description.
func (r *Registry) Groups() []Group {
	r.mu.RLock()
	defer r.mu.RUnlock()
	groups := make([]Group, 0, len(r.bases))
	index := make(map[string]int, len(r.bases))
	for _, b := range r.bases {
		groups = append(groups, Group{Base: b, Types: []TypeInfo{}})
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Base.Description < groups[j].Base.Description
	})
	for i, g := range groups {
		index[g.Base.Name] = i
	}
	for _, e := range r.types {
		i := index[e.base]
		groups[i].Types = append(groups[i].Types, e.info)
	}
	for _, g := range groups {
		sort.Slice(g.Types, func(i, j int) bool {
			return g.Types[i].Description < g.Types[j].Description
		})
	}
	return groups
}

// Open validates params against the type's parameter schema, fills in
// defaults and constructs the device
func (r *Registry) Open(b *bus.Broker, className, name string, params map[string]interface{}) (Device, error) {
	info, _, ok := r.Lookup(className)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, className)
	}
	full, err := fillParams(info, params)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	f := r.types[className].factory
	r.mu.RUnlock()
	return f(b, name, full)
}

func fillParams(info TypeInfo, params map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(info.Parameters))
	for k, v := range params {
		p, ok := info.Parameters[k]
		if !ok {
			return nil, fmt.Errorf("%w: %s does not take %s", ErrBadParameter, info.ClassName, k)
		}
		if err := checkValue(k, p, v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	for k, p := range info.Parameters {
		if _, ok := out[k]; ok {
			continue
		}
		if p.Default == nil {
			return nil, fmt.Errorf("%w: %s requires %s", ErrBadParameter, info.ClassName, k)
		}
		out[k] = p.Default
	}
	return out, nil
}

// checkValue verifies the kind of v against the declared type and the
// allowed values, if any
func checkValue(name string, p Parameter, v interface{}) error {
	ok := false
	switch p.Type {
	case TypeInt:
		switch x := v.(type) {
		case int, int64, int32, uint, uint64, uint32:
			ok = true
		case float64:
			// JSON numbers
			ok = x == float64(int64(x))
		}
	case TypeFloat:
		switch v.(type) {
		case float64, float32, int, int64, int32:
			ok = true
		}
	case TypeString:
		_, ok = v.(string)
	case TypeBool:
		_, ok = v.(bool)
	default:
		return fmt.Errorf("%w: %s has unknown type %q", ErrBadParameter, name, p.Type)
	}
	if !ok {
		return fmt.Errorf("%w: %s must be %s, got %v", ErrBadParameter, name, p.Type, v)
	}
	if len(p.Allowed) == 0 {
		return nil
	}
	for _, a := range p.Allowed {
		if equalValue(a, v) {
			return nil
		}
	}
	return fmt.Errorf("%w: %v is not an allowed value of %s", ErrBadParameter, v, name)
}

func equalValue(a, b interface{}) bool {
	fa, oka := toFloat(a)
	fb, okb := toFloat(b)
	if oka && okb {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v interface{}) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// DecodeParams decodes validated params into out, which must be a pointer to
// a struct with mapstructure tags.  Numeric kinds are converted as needed.
func DecodeParams(params map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("%w: %v", ErrBadParameter, err)
	}
	return nil
}
