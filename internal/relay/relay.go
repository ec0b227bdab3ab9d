// Package relay decides what to do when the debugged emulator stops.
//
// The emulator's CPU thread uses SIGSEGV for memory-mapped I/O, so a
// SIGSEGV on that thread is expected. The relay resumes the inferior by
// re-delivering the signal. Any other stop is logged and left halted for
// the operator.
package relay

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// CPUThreadName is the thread whose segmentation faults are expected.
	CPUThreadName = "CPU thread"
	// ResumeSignal is the only signal passed through automatically.
	ResumeSignal = "SIGSEGV"
)

// Thread is the currently selected thread of a stop event.
type Thread struct {
	ID   string
	Name string
}

// StopEvent describes one halt of the inferior. Thread is nil when the
// debugger could not report the selected thread.
type StopEvent struct {
	Signal string
	Thread *Thread
}

// ThreadName returns the selected thread's name, or "<unknown>".
func (e StopEvent) ThreadName() string {
	if e.Thread == nil || e.Thread.Name == "" {
		return "<unknown>"
	}
	return e.Thread.Name
}

// ActionKind tags an Action.
type ActionKind int

const (
	// ActionIgnore leaves the inferior stopped.
	ActionIgnore ActionKind = iota
	// ActionResume re-delivers Action.Signal to the inferior.
	ActionResume
)

// String returns "ignore" or "resume".
func (k ActionKind) String() string {
	switch k {
	case ActionResume:
		return "resume"
	default:
		return "ignore"
	}
}

// Action is the outcome of handling a stop event.
type Action struct {
	Kind   ActionKind
	Signal string
}

// Ignore returns the no-op action.
func Ignore() Action { return Action{Kind: ActionIgnore} }

// Resume returns an action re-delivering sig.
func Resume(sig string) Action { return Action{Kind: ActionResume, Signal: sig} }

// Command renders the debugger command carrying out the action, or "" for
// Ignore.
func (a Action) Command() string {
	if a.Kind != ActionResume || a.Signal == "" {
		return ""
	}
	return "signal " + a.Signal
}

// StopEventHandler reacts to stop events. Implementations must not retain
// the event after OnStop returns.
type StopEventHandler interface {
	OnStop(event StopEvent) Action
}

// Relay is the StopEventHandler used by gdbrelay.
type Relay struct {
	logger *zap.Logger
	echo   io.Writer
}

var _ StopEventHandler = (*Relay)(nil)

// Option configures a Relay.
type Option func(*Relay)

// WithEcho also writes every message to w as "[ME] <message>", whatever
// the logger's levels are.
func WithEcho(w io.Writer) Option {
	return func(r *Relay) { r.echo = w }
}

// New returns a Relay logging to logger.
func New(logger *zap.Logger, opts ...Option) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Relay{logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnStop resumes SIGSEGV stops on the CPU thread and ignores everything else.
func (r *Relay) OnStop(event StopEvent) Action {
	r.say(zapcore.InfoLevel, "SIG "+event.Signal)

	if event.Signal == ResumeSignal && event.Thread != nil && event.Thread.Name == CPUThreadName {
		r.say(zapcore.InfoLevel, "on cpu thread, everything ok!")
		return Resume(event.Signal)
	}

	r.say(zapcore.WarnLevel, "on thread "+event.ThreadName()+", not ok!!!",
		zap.String("signal", event.Signal),
		zap.String("thread", event.ThreadName()),
	)
	return Ignore()
}

func (r *Relay) say(level zapcore.Level, msg string, fields ...zap.Field) {
	if r.echo != nil {
		fmt.Fprintf(r.echo, "[ME] %s\n", msg)
	}
	if ce := r.logger.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}
