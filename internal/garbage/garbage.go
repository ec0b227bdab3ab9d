// Package garbage finds and removes directory entries with short, undecodable names.
//
// Such entries typically show up after an emulator run wrote a leaked
// pointer value as a file name. A name is nasty when it is at most
// MaxNastyLen bytes long and is not valid UTF-8.
package garbage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"go.uber.org/zap"
)

// MaxNastyLen is the longest name that can be flagged. Longer names are
// never nasty, whatever their contents.
const MaxNastyLen = 8

// Classification is the result of decoding a name as UTF-8.
type Classification int

const (
	// Valid means the name decodes as UTF-8 text.
	Valid Classification = iota
	// Invalid means decoding fails.
	Invalid
)

// String returns "valid" or "invalid".
func (c Classification) String() string {
	switch c {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// Finding is a nasty entry found by Scan.
type Finding struct {
	Name  []byte
	Path  string
	Value uint64
}

// Report summarises a Run.
type Report struct {
	Folder   string
	Findings []Finding
	Deleted  int
}

// Classify reports whether name is UTF-8 text. Control characters and other
// non-printable runes still count as Valid.
func Classify(name []byte) Classification {
	if utf8.Valid(name) {
		return Valid
	}
	return Invalid
}

// IsNasty reports whether name should be deleted.
func IsNasty(name []byte) bool {
	if len(name) > MaxNastyLen {
		return false
	}
	return Classify(name) == Invalid
}

// NameValue zero-pads name to eight bytes and reads it as a little-endian
// uint64. Bytes past the eighth are ignored.
func NameValue(name []byte) uint64 {
	var buf [8]byte
	copy(buf[:], name)
	return binary.LittleEndian.Uint64(buf[:])
}

// Scan lists the immediate entries of folder in directory order and returns
// the nasty ones. Listing errors are fatal.
func Scan(logger *zap.Logger, folder string) ([]Finding, error) {
	logger.Info("identifying nasty files", zap.String("folder", folder))

	dir, err := os.Open(folder)
	if err != nil {
		return nil, fmt.Errorf("open folder: %w", err)
	}
	defer dir.Close()

	// File.ReadDir keeps the order the OS returns; os.ReadDir would sort.
	entries, err := dir.ReadDir(-1)
	if err != nil {
		return nil, fmt.Errorf("list folder %s: %w", folder, err)
	}

	var findings []Finding
	for _, entry := range entries {
		name := []byte(entry.Name())
		if !IsNasty(name) {
			continue
		}
		finding := Finding{
			Name:  name,
			Path:  filepath.Join(folder, entry.Name()),
			Value: NameValue(name),
		}
		logger.Info(fmt.Sprintf("found nasty %q: 0x%x", finding.Name, finding.Value))
		findings = append(findings, finding)
	}
	return findings, nil
}

// IdentifyFiles returns the joined paths of the nasty entries of folder.
func IdentifyFiles(logger *zap.Logger, folder string) ([]string, error) {
	findings, err := Scan(logger, folder)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(findings))
	for _, f := range findings {
		paths = append(paths, f.Path)
	}
	return paths, nil
}

// ErrIsDirectory is returned by DeleteFiles for a path naming a directory.
var ErrIsDirectory = errors.New("is a directory")

// DeleteFiles unlinks every path in order and stops at the first failure.
// It returns the number of files removed before that failure.
func DeleteFiles(logger *zap.Logger, paths []string) (int, error) {
	for i, path := range paths {
		info, err := os.Lstat(path)
		if err != nil {
			return i, fmt.Errorf("unlink %q: %w", path, err)
		}
		if info.IsDir() {
			return i, fmt.Errorf("unlink %q: %w", path, ErrIsDirectory)
		}
		if err := os.Remove(path); err != nil {
			return i, fmt.Errorf("unlink %q: %w", path, err)
		}
		logger.Debug("deleted", zap.String("path", fmt.Sprintf("%q", path)))
	}
	return len(paths), nil
}

// Run identifies the nasty files of folder and deletes them.
func Run(logger *zap.Logger, folder string) (Report, error) {
	report := Report{Folder: folder}

	findings, err := Scan(logger, folder)
	if err != nil {
		return report, err
	}
	report.Findings = findings

	paths := make([]string, 0, len(findings))
	for _, f := range findings {
		paths = append(paths, f.Path)
	}
	report.Deleted, err = DeleteFiles(logger, paths)
	return report, err
}
