// Package main provides the gdbrelay CLI. It runs gdb under the machine
// interface and keeps the emulator's CPU thread running through its
// expected SIGSEGV stops.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"tasarch/internal/config"
	"tasarch/internal/gdbhost"
	"tasarch/internal/gdbmi"
	"tasarch/internal/logging"
	"tasarch/internal/relay"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "gdbrelay: %v\n", err)
		os.Exit(1)
	}
}

type flagValues struct {
	configPath   string
	gdb          string
	logFile      string
	gdbLogFile   string
	fileLevel    string
	consoleLevel string
	run          bool
}

func newRootCmd() *cobra.Command {
	var fv flagValues

	cmd := &cobra.Command{
		Use:   "gdbrelay [flags] [-- gdb-args...]",
		Short: "Run gdb and pass SIGSEGV through on the emulator's CPU thread",
		Long: `Run gdb under the machine interface and pass SIGSEGV through on the
emulator's CPU thread. Any other stop is left halted.

Lines typed on stdin are run as gdb commands, so a halted inferior can be
inspected or resumed by hand. Program and arguments go after "--", e.g.

  gdbrelay --run -- --args ./tasarch rom.bin`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd.Flags(), fv)
			if err != nil {
				return err
			}
			cfg.GDBArgs = append(cfg.GDBArgs, args...)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return run(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	bindFlags(cmd.Flags(), &fv)
	return cmd
}

func bindFlags(flags *pflag.FlagSet, fv *flagValues) {
	flags.StringVar(&fv.configPath, "config", "", "YAML config file (env: "+config.EnvConfig+")")
	flags.StringVar(&fv.gdb, "gdb", "", "gdb binary (env: "+config.EnvGDB+", default: gdb)")
	flags.StringVar(&fv.logFile, "log-file", "", "relay log file (env: "+config.EnvLogFile+", default: spam.log)")
	flags.StringVar(&fv.gdbLogFile, "gdb-log-file", "", "gdb's own log file (env: "+config.EnvGDBLogFile+", default: gdbout)")
	flags.StringVar(&fv.fileLevel, "file-level", "", "minimum level written to the log file (default: debug)")
	flags.StringVar(&fv.consoleLevel, "console-level", "", "minimum level written to stderr (default: error)")
	flags.BoolVar(&fv.run, "run", false, "start the inferior after gdb is set up")
}

// resolveConfig layers explicitly set flags over the loaded config.
func resolveConfig(flags *pflag.FlagSet, fv flagValues) (config.Relay, error) {
	cfg, err := config.Load(fv.configPath)
	if err != nil {
		return cfg, err
	}

	overrides := []struct {
		name  string
		value string
		dst   *string
	}{
		{"gdb", fv.gdb, &cfg.GDB},
		{"log-file", fv.logFile, &cfg.LogFile},
		{"gdb-log-file", fv.gdbLogFile, &cfg.GDBLogFile},
		{"file-level", fv.fileLevel, &cfg.FileLevel},
		{"console-level", fv.consoleLevel, &cfg.ConsoleLevel},
	}
	for _, o := range overrides {
		if flags.Changed(o.name) {
			*o.dst = o.value
		}
	}
	if flags.Changed("run") {
		cfg.Run = fv.run
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// run drives one gdb session. Operator commands are read from in; gdb's
// console output and the relay's "[ME]" lines go to out.
func run(ctx context.Context, cfg config.Relay, in io.Reader, out io.Writer) error {
	fileLevel, consoleLevel, err := cfg.Levels()
	if err != nil {
		return err
	}
	logger, closeLog, err := logging.Initialize(logging.Config{
		Name:         "gdb_script",
		FilePath:     cfg.LogFile,
		FileLevel:    fileLevel,
		Console:      os.Stderr,
		ConsoleLevel: consoleLevel,
	})
	if err != nil {
		return err
	}
	defer closeLog() //nolint:errcheck

	proc, err := gdbmi.Start(ctx, logger.Named("mi"), gdbmi.ProcessConfig{
		Path: cfg.GDB,
		Args: cfg.GDBArgs,
	})
	if err != nil {
		logger.Error("cannot start gdb", zap.Error(err))
		return err
	}

	proc.SetOutput(out)
	handler := relay.New(logger, relay.WithEcho(out))
	host := gdbhost.New(logger, proc.Session, handler, gdbhost.Options{GDBLogFile: cfg.GDBLogFile})
	if err := host.Setup(ctx); err != nil {
		logger.Error("gdb setup failed", zap.Error(err))
		_ = proc.Close()
		_ = proc.Kill()
		_ = proc.Wait()
		return err
	}
	logger.Info("stop handler registered", zap.Int("gdb_pid", proc.PID()))
	if cfg.Run {
		host.Post("run")
	}

	// The reader may stay blocked on a terminal after gdb exits; the
	// process ends with it.
	go func() {
		if err := host.ReadCommands(ctx, in); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("operator input stopped", zap.Error(err))
		}
	}()

	runErr := host.Run(ctx)
	_ = proc.Close()
	waitErr := proc.Wait()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if waitErr != nil && ctx.Err() == nil {
		return fmt.Errorf("gdb exited: %w", waitErr)
	}
	return nil
}
