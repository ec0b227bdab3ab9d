package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tasarch/internal/config"

	"github.com/spf13/pflag"
)

func parseFlags(t *testing.T, args ...string) (*pflag.FlagSet, flagValues) {
	t.Helper()
	var fv flagValues
	flags := pflag.NewFlagSet("gdbrelay", pflag.ContinueOnError)
	bindFlags(flags, &fv)
	if err := flags.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return flags, fv
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{config.EnvConfig, config.EnvGDB, config.EnvLogFile, config.EnvGDBLogFile} {
		t.Setenv(key, "")
	}
}

func TestResolveConfigDefaults(t *testing.T) {
	clearEnv(t)
	flags, fv := parseFlags(t)

	cfg, err := resolveConfig(flags, fv)
	if err != nil {
		t.Fatalf("resolveConfig returned error: %v", err)
	}
	if cfg.LogFile != "spam.log" || cfg.GDBLogFile != "gdbout" || cfg.GDB != "gdb" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestResolveConfigFlagsOverrideFileAndEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(path, []byte("gdb: gdb-multiarch\nlog_file: file.log\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(config.EnvGDBLogFile, "env.out")

	flags, fv := parseFlags(t, "--config", path, "--log-file", "flag.log", "--console-level", "warn")
	cfg, err := resolveConfig(flags, fv)
	if err != nil {
		t.Fatalf("resolveConfig returned error: %v", err)
	}

	if cfg.GDB != "gdb-multiarch" {
		t.Fatalf("expected gdb from file, got %q", cfg.GDB)
	}
	if cfg.LogFile != "flag.log" {
		t.Fatalf("expected log file from flag, got %q", cfg.LogFile)
	}
	if cfg.GDBLogFile != "env.out" {
		t.Fatalf("expected gdb log file from env, got %q", cfg.GDBLogFile)
	}
	if cfg.ConsoleLevel != "warn" {
		t.Fatalf("expected console level from flag, got %q", cfg.ConsoleLevel)
	}
}

func TestResolveConfigRunFlag(t *testing.T) {
	clearEnv(t)
	flags, fv := parseFlags(t)
	cfg, err := resolveConfig(flags, fv)
	if err != nil {
		t.Fatalf("resolveConfig returned error: %v", err)
	}
	if cfg.Run {
		t.Fatal("run should be off by default")
	}

	flags, fv = parseFlags(t, "--run")
	cfg, err = resolveConfig(flags, fv)
	if err != nil {
		t.Fatalf("resolveConfig returned error: %v", err)
	}
	if !cfg.Run {
		t.Fatal("expected --run to enable run")
	}
}

func TestResolveConfigRejectsBadLevel(t *testing.T) {
	clearEnv(t)
	flags, fv := parseFlags(t, "--file-level", "chatty")
	if _, err := resolveConfig(flags, fv); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestRunFailsWithoutGDB(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	cfg := config.Default()
	cfg.GDB = filepath.Join(dir, "no-such-gdb")
	cfg.LogFile = filepath.Join(dir, "spam.log")
	cfg.ConsoleLevel = "fatal"

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := run(ctx, cfg, strings.NewReader(""), io.Discard); err == nil {
		t.Fatal("expected error when gdb cannot be started")
	}
	if _, err := os.Stat(cfg.LogFile); err != nil {
		t.Fatalf("log file should be created: %v", err)
	}
}
