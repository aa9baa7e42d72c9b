package promplate

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Chain runs its children in order against one shared context. Its mid phase runs
// after every child and its capabilities are handed down to children without their own.
type Chain struct {
	base

	childMu  sync.RWMutex
	children []Runnable
}

// NewChain creates a chain of children.
func NewChain(children []Runnable, opts ...Option) *Chain {
	ch := &Chain{children: slices.Clone(children)}
	ch.init(ch, applyOptions(DefaultChainName, opts))
	return ch
}

// Append adds runnables to the end of the chain in place. Appending while the
// chain runs is allowed; the new children run in the same invocation.
func (ch *Chain) Append(rs ...Runnable) *Chain {
	ch.childMu.Lock()
	defer ch.childMu.Unlock()
	ch.children = append(ch.children, rs...)
	return ch
}

// Children returns a copy of the child list.
func (ch *Chain) Children() []Runnable {
	ch.childMu.RLock()
	defer ch.childMu.RUnlock()
	return slices.Clone(ch.children)
}

// Len returns the number of children.
func (ch *Chain) Len() int {
	ch.childMu.RLock()
	defer ch.childMu.RUnlock()
	return len(ch.children)
}

func (ch *Chain) child(i int) (Runnable, bool) {
	ch.childMu.RLock()
	defer ch.childMu.RUnlock()
	if i >= len(ch.children) {
		return nil, false
	}
	return ch.children[i], true
}

// Next returns a new Chain with r after ch's children. ch itself is flattened
// only when it carries no context, config, capabilities or callbacks of its own.
func (ch *Chain) Next(r Runnable) *Chain {
	return NewChain(append(flatten(ch), flatten(r)...))
}

// String implements fmt.Stringer.
func (ch *Chain) String() string {
	children := ch.Children()
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = fmt.Sprint(c)
	}
	return strings.Join(parts, ChainSeparator)
}

func (ch *Chain) run(rs *runState, c *Context) (*Context, error) {
	return ch.execute(rs, c, ch.body)
}

func (ch *Chain) body(rs *runState, c *Context, cbs callbackSet) (*Context, error) {
	if err := cbs.pre(rs.ctx, c); err != nil {
		return nil, err
	}
	for i := 0; ; i++ {
		child, ok := ch.child(i)
		if !ok {
			break
		}
		if err := rs.ctx.Err(); err != nil {
			return nil, err
		}
		ch.logger.Debug(LogMsgChildStart, zap.String(LogFieldRunnable, ch.name), zap.Int(LogFieldIndex, i))
		next, err := child.run(rs, c)
		if err != nil {
			return nil, err
		}
		c = next
		if err := cbs.mid(rs.ctx, c); err != nil {
			return nil, err
		}
	}
	if err := cbs.end(rs.ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}
