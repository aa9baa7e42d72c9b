package promplate

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// layers is an ordered list of maps shared by reference between contexts.
// Prepending through one Context is visible through every Context holding the same layers.
type layers struct {
	mu   sync.RWMutex
	maps []map[string]any
}

func newLayers(ms ...map[string]any) *layers {
	return &layers{maps: ms}
}

func (l *layers) snapshot() []map[string]any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.maps)
}

func (l *layers) get(key string) (any, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, m := range l.maps {
		if v, ok := m[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func (l *layers) prepend(ms []map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maps = append(slices.Clone(ms), l.maps...)
}

// Context is the layered variable scope threaded through templates, nodes and chains.
// Writes always go to the first primary map; reads search the primary layers and then
// the fallback layers, first hit wins. Layers are held by reference, never copied, so a
// child invocation sees later writes made by the ancestor that owns them.
type Context struct {
	primary  *layers
	fallback *layers
}

// NewContext creates a context writing into primary (a fresh map when nil)
// and falling back to the given maps in order. Nil fallbacks are skipped.
func NewContext(primary map[string]any, fallbacks ...map[string]any) *Context {
	if primary == nil {
		primary = make(map[string]any)
	}
	return &Context{
		primary:  newLayers(primary),
		fallback: newLayers(compact(fallbacks)...),
	}
}

// Derive creates the context a runnable executes with: it shares parent's primary
// layers and puts fallbacks ahead of parent's fallback layers. A nil parent starts fresh.
func Derive(parent *Context, fallbacks ...map[string]any) *Context {
	if parent == nil {
		return NewContext(nil, fallbacks...)
	}
	fallbacks = compact(fallbacks)
	if len(fallbacks) == 0 {
		return &Context{primary: parent.primary, fallback: parent.fallback}
	}
	return &Context{
		primary:  parent.primary,
		fallback: newLayers(append(fallbacks, parent.fallback.snapshot()...)...),
	}
}

// Ensure turns v into a Context without copying: a *Context is returned as is,
// a map becomes the primary layer, nil becomes an empty context.
func Ensure(v any) (*Context, error) {
	switch c := v.(type) {
	case nil:
		return NewContext(nil), nil
	case *Context:
		if c == nil {
			return NewContext(nil), nil
		}
		return c, nil
	case map[string]any:
		return NewContext(c), nil
	default:
		return nil, NewUnsupportedContextError(v)
	}
}

func compact(ms []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(ms))
	for _, m := range ms {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

func (c *Context) head() map[string]any {
	c.primary.mu.RLock()
	defer c.primary.mu.RUnlock()
	return c.primary.maps[0]
}

// Get returns the value for key from the first layer that has it.
func (c *Context) Get(key string) (any, bool) {
	if v, ok := c.primary.get(key); ok {
		return v, true
	}
	return c.fallback.get(key)
}

// Lookup is Get under the name the template interpreter resolves globals with.
func (c *Context) Lookup(name string) (any, bool) {
	return c.Get(name)
}

// GetDefault returns the value for key, or def when no layer has it.
func (c *Context) GetDefault(key string, def any) any {
	if v, ok := c.Get(key); ok {
		return v
	}
	return def
}

// Has reports whether any layer holds key.
func (c *Context) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Set writes key into the first primary map.
func (c *Context) Set(key string, value any) {
	c.primary.mu.Lock()
	defer c.primary.mu.Unlock()
	c.primary.maps[0][key] = value
}

// Delete removes key from the first primary map; keys visible only through
// other layers cannot be deleted.
func (c *Context) Delete(key string) error {
	c.primary.mu.Lock()
	defer c.primary.mu.Unlock()
	m := c.primary.maps[0]
	if _, ok := m[key]; !ok {
		return NewKeyNotFoundError(key)
	}
	delete(m, key)
	return nil
}

// Update copies every entry of m into the first primary map.
func (c *Context) Update(m map[string]any) {
	if len(m) == 0 {
		return
	}
	c.primary.mu.Lock()
	defer c.primary.mu.Unlock()
	maps.Copy(c.primary.maps[0], m)
}

// Merge puts other's layers ahead of c's own, primary before primary and
// fallback before fallback. The maps are shared, not copied. Merging a context
// into itself is a no-op.
func (c *Context) Merge(other *Context) *Context {
	if other == nil || other == c || other.primary == c.primary {
		return c
	}
	c.primary.prepend(other.primary.snapshot())
	if other.fallback != c.fallback {
		c.fallback.prepend(other.fallback.snapshot())
	}
	return c
}

// Result returns the text produced by the most recent node.
func (c *Context) Result() (any, error) {
	v, ok := c.Get(ResultKey)
	if !ok {
		return nil, NewResultNotSetError()
	}
	return v, nil
}

// ResultString returns the result formatted as text, or "" when unset.
func (c *Context) ResultString() string {
	v, ok := c.Get(ResultKey)
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// SetResult writes the result slot.
func (c *Context) SetResult(v any) {
	c.Set(ResultKey, v)
}

// DeleteResult clears the result slot.
func (c *Context) DeleteResult() error {
	if err := c.Delete(ResultKey); err != nil {
		return NewResultNotSetError()
	}
	return nil
}

// Maps returns the layers in lookup order: primary maps, then fallback maps.
func (c *Context) Maps() []map[string]any {
	return append(c.primary.snapshot(), c.fallback.snapshot()...)
}

// Keys returns every visible key, sorted.
func (c *Context) Keys() []string {
	seen := make(map[string]struct{})
	for _, m := range c.Maps() {
		for k := range m {
			seen[k] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

// Len returns the number of visible keys.
func (c *Context) Len() int {
	return len(c.Keys())
}

// Flatten returns a fresh map holding the visible value of every key.
func (c *Context) Flatten() map[string]any {
	all := c.Maps()
	out := make(map[string]any)
	for i := len(all) - 1; i >= 0; i-- {
		maps.Copy(out, all[i])
	}
	return out
}

// Snapshot returns an independent single-layer copy, safe to hand to another goroutine.
func (c *Context) Snapshot() *Context {
	return NewContext(c.Flatten())
}

// String implements fmt.Stringer.
func (c *Context) String() string {
	return fmt.Sprintf("<Context primary=%v fallback=%v>", c.primary.snapshot(), c.fallback.snapshot())
}
