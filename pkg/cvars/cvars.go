// Package cvars implements the console variable registry: named, typed,
// runtime-tunable values shared by the simulation, the console and the
// network layer.
//
// Prefix conventions follow the usual quake-style taxonomy:
// cl_ is client, d_ is debug, g_ is gameplay, sv_ is server.
//
// A Registry is an explicit handle passed into every component that needs
// it, never ambient global state, so isolated simulations (e.g. tests, the
// local role running client and server in one process) cannot contaminate
// each other.
package cvars

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
)

type Type int

const (
	TypeBool Type = iota
	TypeInt
	TypeFloat
	TypeString
)

func (t Type) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	default:
		return "unknown"
	}
}

// Validator checks a candidate value before it is applied. The value has
// already been normalized to the cvar's type (bool, int64, float64 or
// string). Returning an error leaves the current value unchanged.
type Validator func(value interface{}) error

type cvar struct {
	name       string
	typ        Type
	value      interface{}
	def        interface{}
	validator  Validator
	replicated bool
}

// Info is a read-only view of a single cvar for enumeration.
type Info struct {
	Name       string
	Type       Type
	Value      interface{}
	Default    interface{}
	Replicated bool
}

// Registry is a thread-safe store of cvars.
type Registry struct {
	lock sync.RWMutex
	vars map[string]*cvar
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		vars: make(map[string]*cvar),
	}
}

// RegisterOption configures a cvar at registration time.
type RegisterOption func(*cvar)

// WithValidator attaches a validator to the cvar.
func WithValidator(v Validator) RegisterOption {
	return func(c *cvar) {
		c.validator = v
	}
}

// WithRange constrains an int or float cvar to [min, max].
func WithRange(min, max float64) RegisterOption {
	return func(c *cvar) {
		c.validator = func(value interface{}) error {
			var f float64
			switch v := value.(type) {
			case int64:
				f = float64(v)
			case float64:
				f = v
			default:
				return fmt.Errorf("range validator requires a numeric value, got %T", value)
			}
			if f < min || f > max {
				return fmt.Errorf("must be between %v and %v", min, max)
			}
			return nil
		}
	}
}

// Replicated marks the cvar as authoritative on the server and pushed to
// clients via CvarDelta messages whenever it changes.
func Replicated() RegisterOption {
	return func(c *cvar) {
		c.replicated = true
	}
}

// Register adds a cvar with the given default value. The cvar's type is
// inferred from the default. Registering the same name twice fails with
// ErrDuplicateName.
func (r *Registry) Register(name string, def interface{}, opts ...RegisterOption) error {
	typ, norm, err := normalize(def)
	if err != nil {
		return fmt.Errorf("invalid default for cvar %q: %v", name, err)
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.vars[name]; ok {
		return &ErrDuplicateName{Name: name}
	}

	c := &cvar{
		name:  name,
		typ:   typ,
		value: norm,
		def:   norm,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.validator != nil {
		if err := c.validator(norm); err != nil {
			return fmt.Errorf("default for cvar %q fails its own validator: %v", name, err)
		}
	}

	r.vars[name] = c
	return nil
}

// Set updates a cvar's value. The value must match the registered type and
// pass the validator; on any failure the previous value is retained.
func (r *Registry) Set(name string, value interface{}) error {
	typ, norm, err := normalize(value)
	if err != nil {
		return &ErrTypeMismatch{Name: name, Got: fmt.Sprintf("%T", value)}
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	c, ok := r.vars[name]
	if !ok {
		return &ErrNotFound{Name: name}
	}
	if typ != c.typ {
		return &ErrTypeMismatch{Name: name, Want: c.typ, Got: typ.String()}
	}
	if c.validator != nil {
		if err := c.validator(norm); err != nil {
			return &ErrOutOfRange{Name: name, Value: norm, Reason: err.Error()}
		}
	}

	c.value = norm
	return nil
}

// SetString parses raw according to the cvar's registered type and sets it.
// This is the entry point for console commands, command-line pairs and
// CvarDelta messages.
func (r *Registry) SetString(name, raw string) error {
	r.lock.RLock()
	c, ok := r.vars[name]
	r.lock.RUnlock()
	if !ok {
		return &ErrNotFound{Name: name}
	}

	switch c.typ {
	case TypeBool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return &ErrTypeMismatch{Name: name, Want: TypeBool, Got: fmt.Sprintf("%q", raw)}
		}
		return r.Set(name, v)
	case TypeInt:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return &ErrTypeMismatch{Name: name, Want: TypeInt, Got: fmt.Sprintf("%q", raw)}
		}
		return r.Set(name, v)
	case TypeFloat:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return &ErrTypeMismatch{Name: name, Want: TypeFloat, Got: fmt.Sprintf("%q", raw)}
		}
		return r.Set(name, v)
	default:
		return r.Set(name, raw)
	}
}

// GetBool returns the current value of a bool cvar.
func (r *Registry) GetBool(name string) (bool, error) {
	v, err := r.get(name, TypeBool)
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// GetInt returns the current value of an int cvar.
func (r *Registry) GetInt(name string) (int64, error) {
	v, err := r.get(name, TypeInt)
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// GetFloat returns the current value of a float cvar.
func (r *Registry) GetFloat(name string) (float64, error) {
	v, err := r.get(name, TypeFloat)
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// GetString returns the current value of a string cvar.
func (r *Registry) GetString(name string) (string, error) {
	v, err := r.get(name, TypeString)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *Registry) get(name string, typ Type) (interface{}, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	c, ok := r.vars[name]
	if !ok {
		return nil, &ErrNotFound{Name: name}
	}
	if c.typ != typ {
		return nil, &ErrTypeMismatch{Name: name, Want: c.typ, Got: typ.String()}
	}
	return c.value, nil
}

// String returns the current value of any cvar formatted as text.
func (r *Registry) String(name string) (string, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	c, ok := r.vars[name]
	if !ok {
		return "", &ErrNotFound{Name: name}
	}
	return formatValue(c.value), nil
}

// IsReplicated reports whether a cvar is replicated to clients.
func (r *Registry) IsReplicated(name string) bool {
	r.lock.RLock()
	defer r.lock.RUnlock()
	c, ok := r.vars[name]
	return ok && c.replicated
}

// List returns all cvars sorted by name.
func (r *Registry) List() []Info {
	r.lock.RLock()
	defer r.lock.RUnlock()
	infos := make([]Info, 0, len(r.vars))
	for _, c := range r.vars {
		infos = append(infos, Info{
			Name:       c.name,
			Type:       c.typ,
			Value:      c.value,
			Default:    c.def,
			Replicated: c.replicated,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// ApplyArgs consumes trailing command-line arguments as "name value" pairs
// and applies them. Any failure is fatal to startup, so the first error is
// returned as-is.
func (r *Registry) ApplyArgs(args []string) error {
	if len(args)%2 != 0 {
		return fmt.Errorf("cvar arguments must be name value pairs, got %d arguments", len(args))
	}
	for i := 0; i < len(args); i += 2 {
		if err := r.SetString(args[i], args[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// normalize maps an arbitrary input value onto the registry's canonical
// representation: bool, int64, float64 or string.
func normalize(value interface{}) (Type, interface{}, error) {
	switch v := value.(type) {
	case bool:
		return TypeBool, v, nil
	case int:
		return TypeInt, int64(v), nil
	case int32:
		return TypeInt, int64(v), nil
	case int64:
		return TypeInt, v, nil
	case float32:
		return TypeFloat, float64(v), nil
	case float64:
		return TypeFloat, v, nil
	case string:
		return TypeString, v, nil
	default:
		return TypeString, nil, fmt.Errorf("unsupported cvar value type %T", value)
	}
}

func formatValue(value interface{}) string {
	switch v := value.(type) {
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
