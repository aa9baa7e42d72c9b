package promplate

import (
	"errors"
	"fmt"
)

// Jump is returned from a callback to abandon the current runnable and continue
// elsewhere. It travels up the call stack as an error until it reaches the
// runnable named by BubbleUpTo (or the nearest one when BubbleUpTo is nil). That
// runnable writes Context into its context, then runs Into with it, or simply
// returns when Into is nil.
//
// A Jump whose BubbleUpTo is not an ancestor reaches the caller unhandled.
type Jump struct {
	Into       Runnable
	BubbleUpTo Runnable
	Context    map[string]any
}

// JumpTo redirects execution into r, handled by the nearest runnable.
func JumpTo(r Runnable) *Jump {
	return &Jump{Into: r}
}

// BreakOutOf stops everything up to and including scope, which returns its context as is.
func BreakOutOf(scope Runnable) *Jump {
	return &Jump{BubbleUpTo: scope}
}

// WithContext sets values written into the context before resuming.
func (j *Jump) WithContext(values map[string]any) *Jump {
	j.Context = values
	return j
}

// Error implements the error interface.
func (j *Jump) Error() string {
	if j.BubbleUpTo == nil {
		return ErrMsgUnhandledJump
	}
	return fmt.Sprintf("%s: %s", j.BubbleUpTo.Name(), ErrMsgUnhandledJump)
}

// handledBy reports whether r is the frame that resolves j.
func (j *Jump) handledBy(r Runnable) bool {
	return j.BubbleUpTo == nil || j.BubbleUpTo == r
}

// AsJump extracts a *Jump from err.
func AsJump(err error) (*Jump, bool) {
	var j *Jump
	if errors.As(err, &j) {
		return j, true
	}
	return nil, false
}
