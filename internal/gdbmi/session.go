package gdbmi

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"tasarch/internal/relay"

	"go.uber.org/zap"
)

// ErrSessionClosed is returned by Execute once the MI stream has ended.
var ErrSessionClosed = errors.New("gdb session closed")

// CommandError is GDB's ^error reply to a command.
type CommandError struct {
	Command string
	Msg     string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("gdb command %q failed: %s", e.Command, e.Msg)
}

// Session multiplexes commands and async records over one MI connection.
// It is safe for concurrent use.
type Session struct {
	logger *zap.Logger

	wmu sync.Mutex
	w   io.Writer

	mu      sync.Mutex
	token   uint64
	pending map[string]chan Record
	closed  bool
	output  io.Writer

	in     chan Record
	events chan Record
	done   chan struct{}
}

// NewSession starts decoding r. Commands are written to w; if w is an
// io.Closer, Close closes it.
func NewSession(logger *zap.Logger, r io.Reader, w io.Writer) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		logger:  logger,
		w:       w,
		pending: make(map[string]chan Record),
		in:      make(chan Record),
		events:  make(chan Record),
		done:    make(chan struct{}),
	}
	go s.forward()
	go s.readLoop(r)
	return s
}

// Events delivers exec, status and notify records in arrival order. The
// channel is closed when the MI stream ends.
func (s *Session) Events() <-chan Record {
	return s.events
}

// SetOutput copies the text of console and target stream records to w,
// which is how CLI command output and the inferior's output reach the
// operator. A nil w turns copying off.
func (s *Session) SetOutput(w io.Writer) {
	s.mu.Lock()
	s.output = w
	s.mu.Unlock()
}

// Done is closed when the MI stream ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Execute sends an MI command and waits for its result record.
func (s *Session) Execute(ctx context.Context, command string) (Record, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Record{}, ErrSessionClosed
	}
	s.token++
	token := strconv.FormatUint(s.token, 10)
	reply := make(chan Record, 1)
	s.pending[token] = reply
	s.mu.Unlock()

	s.logger.Debug("mi command", zap.String("token", token), zap.String("command", command))

	s.wmu.Lock()
	_, err := io.WriteString(s.w, token+command+"\n")
	s.wmu.Unlock()
	if err != nil {
		s.forget(token)
		return Record{}, fmt.Errorf("write command %q: %w", command, err)
	}

	select {
	case rec, ok := <-reply:
		if !ok {
			return Record{}, ErrSessionClosed
		}
		if rec.Class == "error" {
			return rec, &CommandError{Command: command, Msg: rec.String("msg")}
		}
		return rec, nil
	case <-ctx.Done():
		s.forget(token)
		return Record{}, ctx.Err()
	}
}

// Console runs a CLI command through -interpreter-exec.
func (s *Session) Console(ctx context.Context, cli string) error {
	_, err := s.Execute(ctx, "-interpreter-exec console "+QuoteCString(cli))
	return err
}

// SelectedThread reports the thread with the given id, or the current
// thread when id is empty. A thread without a name has Name "".
func (s *Session) SelectedThread(ctx context.Context, id string) (*relay.Thread, error) {
	command := "-thread-info"
	if id != "" {
		command += " " + id
	}
	rec, err := s.Execute(ctx, command)
	if err != nil {
		return nil, err
	}

	if id == "" {
		id = rec.String("current-thread-id")
	}
	threads, _ := rec.Get("threads")
	for _, t := range threads.Items {
		tid, _ := t.Field("id")
		if id != "" && tid.String() != id {
			continue
		}
		name, _ := t.Field("name")
		return &relay.Thread{ID: tid.String(), Name: name.String()}, nil
	}
	return nil, fmt.Errorf("thread %q not reported by gdb", id)
}

// Close fails pending commands and closes the command writer.
func (s *Session) Close() error {
	s.shutdown()
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Session) forget(token string) {
	s.mu.Lock()
	delete(s.pending, token)
	s.mu.Unlock()
}

func (s *Session) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for token, ch := range s.pending {
		close(ch)
		delete(s.pending, token)
	}
}

func (s *Session) readLoop(r io.Reader) {
	defer close(s.in)
	defer close(s.done)
	defer s.shutdown()

	scanner := bufio.NewScanner(r)
	const maxCapacity = 4 * 1024 * 1024
	scanner.Buffer(make([]byte, 1024), maxCapacity)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		rec, err := ParseRecord(line)
		if err != nil {
			s.logger.Warn("skipping MI output", zap.Error(err))
			continue
		}
		s.dispatch(rec)
	}

	if err := scanner.Err(); err != nil {
		s.logger.Warn("MI stream ended", zap.Error(err))
	}
}

func (s *Session) dispatch(rec Record) {
	switch {
	case rec.Kind == KindResult:
		s.mu.Lock()
		ch, ok := s.pending[rec.Token]
		delete(s.pending, rec.Token)
		s.mu.Unlock()
		if !ok {
			s.logger.Debug("unmatched result record", zap.String("token", rec.Token), zap.String("class", rec.Class))
			return
		}
		ch <- rec
	case rec.Kind.IsAsync():
		s.in <- rec
	case rec.Kind == KindPrompt:
	case rec.Kind == KindConsole || rec.Kind == KindTarget:
		s.mu.Lock()
		out := s.output
		s.mu.Unlock()
		if out != nil {
			_, _ = io.WriteString(out, rec.Text)
		}
		s.logger.Debug("gdb "+rec.Kind.String(), zap.String("text", rec.Text))
	default:
		s.logger.Debug("gdb "+rec.Kind.String(), zap.String("text", rec.Text))
	}
}

// forward buffers async records so that a slow consumer never blocks the
// reader, which must keep delivering result records.
func (s *Session) forward() {
	defer close(s.events)

	var queue []Record
	in := s.in
	for in != nil || len(queue) > 0 {
		var out chan Record
		var head Record
		if len(queue) > 0 {
			out = s.events
			head = queue[0]
		}
		select {
		case rec, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			queue = append(queue, rec)
		case out <- head:
			queue = queue[1:]
		}
	}
}
