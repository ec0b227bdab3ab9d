package gdbmi

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"go.uber.org/zap"
)

// ProcessConfig describes the gdb child to launch.
type ProcessConfig struct {
	// Path is the gdb binary. Defaults to "gdb".
	Path string
	// Args are appended after the MI flags, e.g. the program or "-p <pid>".
	Args []string
	// Dir is the working directory; gdb writes its log file there.
	Dir string
	// Stderr receives gdb's stderr. Defaults to os.Stderr.
	Stderr io.Writer
}

// Process is a gdb child speaking MI on its stdio.
type Process struct {
	*Session

	cmd *exec.Cmd
}

// Start launches gdb under the MI2 interpreter.
func Start(ctx context.Context, logger *zap.Logger, cfg ProcessConfig) (*Process, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	path := cfg.Path
	if path == "" {
		path = "gdb"
	}

	args := append([]string{"--interpreter=mi2", "--quiet"}, cfg.Args...)
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = cfg.Dir
	cmd.Env = os.Environ()
	cmd.Stderr = cfg.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("gdb stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("gdb stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start gdb: %w", err)
	}
	logger.Info("gdb started", zap.String("path", path), zap.Strings("args", args), zap.Int("pid", cmd.Process.Pid))

	return &Process{
		Session: NewSession(logger, stdout, stdin),
		cmd:     cmd,
	}, nil
}

// PID returns the gdb process id.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Wait waits for gdb to exit. It must be called after the MI stream ends,
// since exec.Cmd.Wait closes the stdout pipe.
func (p *Process) Wait() error {
	<-p.Done()
	return p.cmd.Wait()
}

// Kill terminates gdb.
func (p *Process) Kill() error {
	return p.cmd.Process.Kill()
}
