// Package main provides the delgarbage CLI, which removes files with short,
// undecodable names from the current directory.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"tasarch/internal/format"
	"tasarch/internal/garbage"
	"tasarch/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "delgarbage: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "delgarbage",
		Short:         "Delete files in the current directory whose names are short and not valid UTF-8",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, closeLog, err := newLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeLog() //nolint:errcheck

			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("determine current directory: %w", err)
			}

			report, err := garbage.Run(logger, wd)
			if err != nil {
				return err
			}
			logger.Info("done", zap.Int("deleted", report.Deleted))
			return nil
		},
	}

	cmd.AddCommand(newScanCmd())
	return cmd
}

func newScanCmd() *cobra.Command {
	var (
		dir        string
		formatFlag string
		noHeader   bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List nasty files without deleting them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, closeLog, err := newLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeLog() //nolint:errcheck

			if dir == "" {
				wd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("determine current directory: %w", err)
				}
				dir = wd
			}

			findings, err := garbage.Scan(logger, dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			return format.WriteFindings(out, findings, !noHeader, strings.ToLower(formatFlag), pathColumnWidth(out))
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&dir, "dir", "", "directory to scan (default: current directory)")
	flags.StringVar(&formatFlag, "format", "table", "output format: table, plain, json, or jsonl")
	flags.BoolVar(&noHeader, "no-header", false, "omit header row for table and plain output")

	return cmd
}

func newLogger(console io.Writer) (*zap.Logger, func() error, error) {
	return logging.Initialize(logging.Config{
		Name:         "del_garbage",
		Console:      console,
		ConsoleLevel: zapcore.InfoLevel,
	})
}

// pathColumnWidth leaves room for the name and value columns when out is a
// terminal. It returns 0 (no cap) otherwise.
func pathColumnWidth(out io.Writer) int {
	file, ok := out.(*os.File)
	if !ok {
		return 0
	}
	w, _, err := term.GetSize(int(file.Fd()))
	if err != nil || w <= 0 {
		return 0
	}
	const reserved = 40
	if w <= reserved+10 {
		return 10
	}
	return w - reserved
}
