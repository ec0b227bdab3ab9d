// Package gdbhost connects a relay.StopEventHandler to a gdb MI session.
//
// The host is gdb's stand-in event bus. It runs a single consumer loop that
// turns *stopped records into relay.StopEvent values, hands them to the
// handler and executes the commands the handler asked for. Commands are
// posted to the host's own queue and run on a later turn of the loop,
// never from inside the handler.
package gdbhost

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"tasarch/internal/gdbmi"
	"tasarch/internal/relay"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultGDBLogFile is the file gdb's own logging is redirected to.
const DefaultGDBLogFile = "gdbout"

// Session is the part of a gdbmi.Session the host needs.
type Session interface {
	Console(ctx context.Context, cli string) error
	SelectedThread(ctx context.Context, id string) (*relay.Thread, error)
	Events() <-chan gdbmi.Record
}

var _ Session = (*gdbmi.Session)(nil)

// Options configures a Host.
type Options struct {
	// GDBLogFile is passed to "set logging file". Defaults to DefaultGDBLogFile.
	GDBLogFile string
}

// Host drives one gdb session.
type Host struct {
	logger  *zap.Logger
	session Session
	handler relay.StopEventHandler
	opts    Options

	mu     sync.Mutex
	posted []string
	wake   chan struct{}
}

// New returns a Host delivering stop events from session to handler.
func New(logger *zap.Logger, session Session, handler relay.StopEventHandler, opts Options) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.GDBLogFile == "" {
		opts.GDBLogFile = DefaultGDBLogFile
	}
	return &Host{
		logger:  logger.With(zap.String("session", uuid.NewString())),
		session: session,
		handler: handler,
		opts:    opts,
		wake:    make(chan struct{}, 1),
	}
}

// SetupCommands are the CLI commands Setup issues, in order.
func (h *Host) SetupCommands() []string {
	return []string{
		"set logging on",
		"set logging file " + h.opts.GDBLogFile,
		"set pagination off",
	}
}

// Setup enables gdb's logging and disables its pager.
func (h *Host) Setup(ctx context.Context) error {
	for _, cli := range h.SetupCommands() {
		if err := h.session.Console(ctx, cli); err != nil {
			return fmt.Errorf("setup %q: %w", cli, err)
		}
		h.logger.Debug("gdb configured", zap.String("command", cli))
	}
	return nil
}

// Post queues a CLI command for a later turn of Run. It is safe to call
// from any goroutine; a Run blocked waiting for events is woken up.
func (h *Host) Post(cli string) {
	h.mu.Lock()
	h.posted = append(h.posted, cli)
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// ReadCommands posts every non-blank line of r as a CLI command. It returns
// when r is exhausted or ctx is done, so an operator can type commands at a
// session the handler left halted.
func (h *Host) ReadCommands(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		h.logger.Info("operator command", zap.String("command", line))
		h.Post(line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read operator commands: %w", err)
	}
	return nil
}

func (h *Host) takePosted() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.posted) == 0 {
		return "", false
	}
	cli := h.posted[0]
	h.posted = h.posted[1:]
	return cli, true
}

// Run processes events until ctx is done or the session's event stream
// closes. Posted commands run before the next event is read.
func (h *Host) Run(ctx context.Context) error {
	events := h.session.Events()
	for {
		if cli, ok := h.takePosted(); ok {
			h.runPosted(ctx, cli)
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.wake:
		case rec, ok := <-events:
			if !ok {
				h.logger.Info("gdb event stream closed")
				return nil
			}
			h.handleRecord(ctx, rec)
		}
	}
}

func (h *Host) runPosted(ctx context.Context, cli string) {
	if err := h.session.Console(ctx, cli); err != nil {
		h.logger.Error("posted command failed", zap.String("command", cli), zap.Error(err))
		return
	}
	h.logger.Debug("posted command done", zap.String("command", cli))
}

func (h *Host) handleRecord(ctx context.Context, rec gdbmi.Record) {
	if rec.Kind != gdbmi.KindExec || rec.Class != "stopped" {
		h.logger.Debug("gdb event", zap.String("kind", rec.Kind.String()), zap.String("class", rec.Class))
		return
	}

	// exited-signalled also carries signal-name, but the inferior is gone.
	reason := rec.String("reason")
	sig := rec.String("signal-name")
	if reason != "signal-received" || sig == "" {
		h.logger.Debug("non-signal stop", zap.String("reason", reason))
		return
	}

	event := relay.StopEvent{Signal: sig}
	thread, err := h.session.SelectedThread(ctx, rec.String("thread-id"))
	if err != nil {
		h.logger.Warn("selected thread unavailable", zap.Error(err))
	} else {
		event.Thread = thread
	}

	action := h.dispatch(event)
	if cli := action.Command(); cli != "" {
		h.Post(cli)
	}
}

// dispatch calls the handler, treating a panic as Ignore so the session
// keeps running.
func (h *Host) dispatch(event relay.StopEvent) (action relay.Action) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("stop handler panicked", zap.Any("panic", r))
			action = relay.Ignore()
		}
	}()
	return h.handler.OnStop(event)
}
