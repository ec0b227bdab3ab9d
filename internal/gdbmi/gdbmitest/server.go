// Package gdbmitest provides a scripted in-memory gdb for MI tests.
package gdbmitest

import (
	"bufio"
	"io"
	"strings"
	"sync"
	"testing"

	"tasarch/internal/gdbmi"

	"go.uber.org/zap"
)

// ReplyFunc returns the output lines for a command. Lines starting with '^'
// get the command's token prepended. A nil ReplyFunc answers "^done".
type ReplyFunc func(command string) []string

// Server plays gdb's side of an MI connection.
type Server struct {
	reply ReplyFunc

	mu       sync.Mutex
	commands []string
	seen     chan string

	wmu  sync.Mutex
	outW *io.PipeWriter
}

// Start connects a Session to a new Server. Both ends are closed on test
// cleanup.
func Start(t testing.TB, logger *zap.Logger, reply ReplyFunc) (*Server, *gdbmi.Session) {
	t.Helper()
	if logger == nil {
		logger = zap.NewNop()
	}

	cmdR, cmdW := io.Pipe()
	outR, outW := io.Pipe()

	srv := &Server{reply: reply, outW: outW, seen: make(chan string, 64)}
	go srv.serve(cmdR)

	session := gdbmi.NewSession(logger, outR, cmdW)
	t.Cleanup(func() {
		_ = session.Close()
		srv.Close()
	})
	return srv, session
}

// Emit writes a raw output line, such as an async *stopped record.
func (s *Server) Emit(line string) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_, _ = io.WriteString(s.outW, line+"\n")
}

// Close ends the MI stream as if gdb had exited.
func (s *Server) Close() {
	_ = s.outW.Close()
}

// Commands returns the commands received so far, without tokens.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Seen delivers each command as it is received.
func (s *Server) Seen() <-chan string {
	return s.seen
}

func (s *Server) serve(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		i := 0
		for i < len(line) && line[i] >= '0' && line[i] <= '9' {
			i++
		}
		token, command := line[:i], line[i:]

		s.mu.Lock()
		s.commands = append(s.commands, command)
		s.mu.Unlock()
		select {
		case s.seen <- command:
		default:
		}

		lines := []string{"^done"}
		if s.reply != nil {
			if out := s.reply(command); out != nil {
				lines = out
			}
		}
		for _, out := range lines {
			if strings.HasPrefix(out, "^") {
				out = token + out
			}
			s.Emit(out)
		}
		s.Emit("(gdb) ")
	}
}
