package cvars

import "fmt"

// ErrDuplicateName is returned when registering a name that already exists.
type ErrDuplicateName struct {
	Name string
}

func (e *ErrDuplicateName) Error() string {
	return fmt.Sprintf("cvar %q is already registered", e.Name)
}

// ErrNotFound is returned when getting or setting an unregistered cvar.
type ErrNotFound struct {
	Name string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("cvar %q is not registered", e.Name)
}

// IsNotFound returns whether the error is an ErrNotFound.
func IsNotFound(err error) bool {
	_, ok := err.(*ErrNotFound)
	return ok
}

// ErrTypeMismatch is returned when a value's type does not match the cvar's type.
type ErrTypeMismatch struct {
	Name string
	Want Type
	Got  string
}

func (e *ErrTypeMismatch) Error() string {
	return fmt.Sprintf("cvar %q expects %s, got %s", e.Name, e.Want, e.Got)
}

// ErrOutOfRange is returned when a value fails the cvar's validator.
type ErrOutOfRange struct {
	Name   string
	Value  interface{}
	Reason string
}

func (e *ErrOutOfRange) Error() string {
	return fmt.Sprintf("value %v is out of range for cvar %q: %s", e.Value, e.Name, e.Reason)
}
