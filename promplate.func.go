package promplate

import (
	"github.com/promplate/go-promplate/internal"
)

// Func is a custom function callable from template expressions.
// It is looked up after the render context and template defaults, before the builtins.
type Func struct {
	// Name is the identifier used in templates (e.g., "shout" for shout(x))
	Name string
	// MinArgs is the minimum number of positional arguments
	MinArgs int
	// MaxArgs is the maximum number of positional arguments (-1 for variadic)
	MaxArgs int
	// Fn is the implementation; kwargs holds keyword arguments, nil when none were given
	Fn func(args []any, kwargs map[string]any) (any, error)
}

func (f *Func) validate() error {
	if f == nil || f.Fn == nil {
		return NewFuncRegistrationError(ErrMsgFuncNil, "")
	}
	if f.Name == "" {
		return NewFuncRegistrationError(ErrMsgFuncEmptyName, "")
	}
	return nil
}

// funcRegistry builds the registry a template evaluates with: the builtins plus funcs.
func funcRegistry(funcs []*Func) (*internal.FuncRegistry, error) {
	if len(funcs) == 0 {
		return internal.DefaultBuiltins(), nil
	}
	registry := internal.NewBuiltinRegistry()
	for _, f := range funcs {
		if err := f.validate(); err != nil {
			return nil, err
		}
		fn := &internal.Func{
			Name:    f.Name,
			MinArgs: f.MinArgs,
			MaxArgs: f.MaxArgs,
			Fn:      f.Fn,
		}
		if err := registry.Register(fn); err != nil {
			return nil, NewFuncRegistrationError(err.Error(), f.Name)
		}
	}
	return registry, nil
}

// Builtins lists the names of the functions every template can call.
func Builtins() []string {
	return internal.DefaultBuiltins().List()
}
