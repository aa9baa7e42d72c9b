package internal

import (
	"fmt"
	"sort"
	"sync"
)

// Func represents a builtin callable available to every template.
type Func struct {
	Name    string
	MinArgs int
	MaxArgs int // -1 for variadic
	Fn      func(args []any, kwargs map[string]any) (any, error)
}

// String implements fmt.Stringer.
func (f *Func) String() string {
	return fmt.Sprintf("<built-in function %s>", f.Name)
}

// FuncRegistry manages the builtins visible after locals and context layers.
type FuncRegistry struct {
	funcs map[string]*Func
	mu    sync.RWMutex
}

// NewFuncRegistry creates an empty function registry.
func NewFuncRegistry() *FuncRegistry {
	return &FuncRegistry{
		funcs: make(map[string]*Func),
	}
}

// NewBuiltinRegistry creates a registry holding the Python-style builtins.
func NewBuiltinRegistry() *FuncRegistry {
	r := NewFuncRegistry()
	registerConversionFuncs(r)
	registerSequenceFuncs(r)
	registerNumericFuncs(r)
	return r
}

var (
	defaultBuiltins     *FuncRegistry
	defaultBuiltinsOnce sync.Once
)

// DefaultBuiltins returns the shared builtin registry.
func DefaultBuiltins() *FuncRegistry {
	defaultBuiltinsOnce.Do(func() {
		defaultBuiltins = NewBuiltinRegistry()
	})
	return defaultBuiltins
}

// Register adds a function to the registry.
func (r *FuncRegistry) Register(f *Func) error {
	if f == nil {
		return NewFuncRegistryError(ErrMsgFuncNilFunc, "")
	}
	if f.Name == "" {
		return NewFuncRegistryError(ErrMsgFuncEmptyName, "")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.funcs[f.Name]; exists {
		return NewFuncRegistryError(ErrMsgFuncAlreadyExists, f.Name)
	}

	r.funcs[f.Name] = f
	return nil
}

// MustRegister adds a function and panics on error.
func (r *FuncRegistry) MustRegister(f *Func) {
	if err := r.Register(f); err != nil {
		panic(err)
	}
}

// Get retrieves a function by name.
func (r *FuncRegistry) Get(name string) (*Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.funcs[name]
	return f, ok
}

// Has checks if a function is registered.
func (r *FuncRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.funcs[name]
	return ok
}

// List returns all registered function names, sorted.
func (r *FuncRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call invokes f after checking its arity.
func (f *Func) Call(args []any, kwargs map[string]any) (any, error) {
	argCount := len(args)
	if argCount < f.MinArgs {
		return nil, NewFuncArgError(ErrMsgFuncTooFewArgs, f.Name, f.MinArgs, argCount)
	}
	if f.MaxArgs >= 0 && argCount > f.MaxArgs {
		return nil, NewFuncArgError(ErrMsgFuncTooManyArgs, f.Name, f.MaxArgs, argCount)
	}
	return f.Fn(args, kwargs)
}

// FuncRegistryError represents a function registry error.
type FuncRegistryError struct {
	Message  string
	FuncName string
}

// NewFuncRegistryError creates a new function registry error.
func NewFuncRegistryError(message, funcName string) *FuncRegistryError {
	return &FuncRegistryError{
		Message:  message,
		FuncName: funcName,
	}
}

// Error implements the error interface.
func (e *FuncRegistryError) Error() string {
	if e.FuncName != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.FuncName)
	}
	return e.Message
}

// NewFuncArgError reports a builtin called with the wrong number of arguments.
// It is a TypeError, as in Python.
func NewFuncArgError(message, funcName string, expected, actual int) *EvalError {
	return NewEvalError(ErrKindType, fmt.Sprintf("%s() %s (expected %d, got %d)", funcName, message, expected, actual))
}
