package promplate

import (
	"context"

	"go.uber.org/zap"
)

// NewLoggingCallback returns a Callback that logs every phase at debug level.
// It keeps no state, so one instance can be shared by many runnables.
func NewLoggingCallback(logger *zap.Logger) Callback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &loggingCallback{logger: logger}
}

type loggingCallback struct {
	logger *zap.Logger
}

func (l *loggingCallback) log(ctx context.Context, phase string, fields ...zap.Field) {
	l.logger.Debug(LogMsgPhase, append([]zap.Field{
		zap.String(LogFieldPhase, phase),
		zap.String(LogFieldMode, RunMode(ctx)),
	}, fields...)...)
}

func (l *loggingCallback) OnEnter(ctx context.Context, r Runnable, c *Context, cfg Config) (*Context, Config, error) {
	l.log(ctx, PhaseOnEnter, zap.String(LogFieldRunnable, r.Name()))
	return c, cfg, nil
}

func (l *loggingCallback) PreProcess(ctx context.Context, _ *Context) error {
	l.log(ctx, PhasePreProcess)
	return nil
}

func (l *loggingCallback) MidProcess(ctx context.Context, c *Context) error {
	l.log(ctx, PhaseMid, zap.Int(LogFieldLength, len(c.ResultString())))
	return nil
}

func (l *loggingCallback) EndProcess(ctx context.Context, c *Context) error {
	l.log(ctx, PhaseEnd, zap.Int(LogFieldLength, len(c.ResultString())))
	return nil
}

func (l *loggingCallback) OnLeave(ctx context.Context, r Runnable, c *Context, cfg Config) (*Context, Config, error) {
	l.log(ctx, PhaseOnLeave, zap.String(LogFieldRunnable, r.Name()))
	return c, cfg, nil
}
