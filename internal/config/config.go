// Package config loads gdbrelay settings from defaults, an optional YAML
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"tasarch/internal/logging"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvConfig     = "GDBRELAY_CONFIG"
	EnvGDB        = "GDBRELAY_GDB"
	EnvLogFile    = "GDBRELAY_LOG_FILE"
	EnvGDBLogFile = "GDBRELAY_GDB_LOG_FILE"
)

// Relay holds the gdbrelay settings.
type Relay struct {
	GDB          string   `yaml:"gdb"`
	GDBArgs      []string `yaml:"gdb_args"`
	LogFile      string   `yaml:"log_file"`
	GDBLogFile   string   `yaml:"gdb_log_file"`
	FileLevel    string   `yaml:"file_level"`
	ConsoleLevel string   `yaml:"console_level"`
	// Run starts the inferior once gdb has been set up.
	Run bool `yaml:"run"`
}

// Default returns the settings used when nothing else is configured.
func Default() Relay {
	return Relay{
		GDB:          "gdb",
		LogFile:      "spam.log",
		GDBLogFile:   "gdbout",
		FileLevel:    "debug",
		ConsoleLevel: "error",
	}
}

// Load applies the YAML file at path (or $GDBRELAY_CONFIG when path is
// empty) and then the environment on top of Default.
func Load(path string) (Relay, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return cfg, err
		}
	}

	if v := strings.TrimSpace(os.Getenv(EnvGDB)); v != "" {
		cfg.GDB = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.LogFile = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvGDBLogFile)); v != "" {
		cfg.GDBLogFile = v
	}

	return cfg, nil
}

func (c *Relay) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var file Relay
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if file.GDB != "" {
		c.GDB = file.GDB
	}
	if len(file.GDBArgs) > 0 {
		c.GDBArgs = file.GDBArgs
	}
	if file.LogFile != "" {
		c.LogFile = file.LogFile
	}
	if file.GDBLogFile != "" {
		c.GDBLogFile = file.GDBLogFile
	}
	if file.FileLevel != "" {
		c.FileLevel = file.FileLevel
	}
	if file.ConsoleLevel != "" {
		c.ConsoleLevel = file.ConsoleLevel
	}
	if file.Run {
		c.Run = true
	}
	return nil
}

// Levels parses FileLevel and ConsoleLevel.
func (c Relay) Levels() (file, console zapcore.Level, err error) {
	if file, err = logging.ParseLevel(c.FileLevel); err != nil {
		return file, console, fmt.Errorf("file_level: %w", err)
	}
	if console, err = logging.ParseLevel(c.ConsoleLevel); err != nil {
		return file, console, fmt.Errorf("console_level: %w", err)
	}
	return file, console, nil
}

// Validate reports the first invalid setting.
func (c Relay) Validate() error {
	if strings.TrimSpace(c.GDB) == "" {
		return errors.New("gdb path is empty")
	}
	if strings.TrimSpace(c.GDBLogFile) == "" {
		return errors.New("gdb_log_file is empty")
	}
	_, _, err := c.Levels()
	return err
}
