package promplate

import (
	"fmt"

	"go.uber.org/zap"
)

// Loop runs its child over and over. The only ways out are a Jump raised by a
// callback (typically BreakOutOf an ancestor) or cancellation of the run's context.
type Loop struct {
	base
	child Runnable
}

// NewLoop creates a loop around child.
func NewLoop(child Runnable, opts ...Option) *Loop {
	l := &Loop{child: child}
	l.init(l, applyOptions(DefaultLoopName, opts))
	return l
}

// Child returns the repeated runnable.
func (l *Loop) Child() Runnable { return l.child }

// Next returns a new Chain running l and then r.
func (l *Loop) Next(r Runnable) *Chain {
	return NewChain(append([]Runnable{l}, flatten(r)...))
}

// String implements fmt.Stringer.
func (l *Loop) String() string { return fmt.Sprintf(LoopReprFormat, l.child) }

func (l *Loop) run(rs *runState, c *Context) (*Context, error) {
	return l.execute(rs, c, l.body)
}

func (l *Loop) body(rs *runState, c *Context, cbs callbackSet) (*Context, error) {
	for i := 0; ; i++ {
		if err := rs.ctx.Err(); err != nil {
			return nil, err
		}
		l.logger.Debug(LogMsgLoopIteration, zap.String(LogFieldRunnable, l.name), zap.Int(LogFieldIndex, i))
		if err := cbs.pre(rs.ctx, c); err != nil {
			return nil, err
		}
		next, err := l.child.run(rs, c)
		if err != nil {
			return nil, err
		}
		c = next
		if err := cbs.mid(rs.ctx, c); err != nil {
			return nil, err
		}
		if err := cbs.end(rs.ctx, c); err != nil {
			return nil, err
		}
	}
}
