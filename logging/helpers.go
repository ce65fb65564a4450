package logging

import "time"

// LogToolCall records execution details for a tool invocation.
func LogToolCall(l Logger, agent, tool string, dur time.Duration, err error) {
	if err != nil {
		l.Error("tool.call.failed", "agent", agent, "tool", tool, "duration", dur, "error", err)
		return
	}
	l.Info("tool.call.success", "agent", agent, "tool", tool, "duration", dur)
}

// LogPhase records the outcome of one workflow phase.
func LogPhase(l Logger, agent, phase string, dur time.Duration, err error) {
	if err != nil {
		l.Error("adapter.phase.failed", "agent", agent, "phase", phase, "duration", dur, "error", err)
		return
	}
	l.Debug("adapter.phase.done", "agent", agent, "phase", phase, "duration", dur)
}
