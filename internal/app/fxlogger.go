package app

import (
	"go.uber.org/fx/fxevent"

	"github.com/smartcontractkit/chainlink-connections/pkg/logger"
)

// fxLogger routes the fx lifecycle events worth seeing to the application logger.
type fxLogger struct {
	lggr logger.Logger
}

func newFxLogger(lggr logger.Logger) fxevent.Logger {
	return &fxLogger{lggr: logger.Named(lggr, "fx")}
}

func (l *fxLogger) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuted:
		if e.Err != nil {
			l.lggr.Errorw("OnStart hook failed", "callee", e.FunctionName, "error", e.Err)
		} else {
			l.lggr.Debugw("OnStart hook executed", "callee", e.FunctionName, "runtime", e.Runtime)
		}
	case *fxevent.OnStopExecuted:
		if e.Err != nil {
			l.lggr.Errorw("OnStop hook failed", "callee", e.FunctionName, "error", e.Err)
		} else {
			l.lggr.Debugw("OnStop hook executed", "callee", e.FunctionName, "runtime", e.Runtime)
		}
	case *fxevent.Provided:
		if e.Err != nil {
			l.lggr.Errorw("Error encountered while applying options", "error", e.Err)
		}
	case *fxevent.Invoked:
		if e.Err != nil {
			l.lggr.Errorw("Invoke failed", "function", e.FunctionName, "error", e.Err)
		}
	case *fxevent.Started:
		if e.Err != nil {
			l.lggr.Errorw("Start failed", "error", e.Err)
		} else {
			l.lggr.Debug("Started")
		}
	case *fxevent.Stopped:
		if e.Err != nil {
			l.lggr.Errorw("Stop failed", "error", e.Err)
		}
	}
}
