// Package scratch manages request-scoped temporary files.
//
// Every file handed out by a Dir is meant to live for exactly one request:
// the caller defers Remove immediately after creation so that the file is
// deleted on every exit path, including engine failures.
package scratch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/book-expert/logger"
)

const dirPermissions = 0o750

// Dir creates temporary files below a single base directory.
type Dir struct {
	base string
	log  *logger.Logger
}

// File is a temporary file path owned by one request.
type File struct {
	path string
	log  *logger.Logger
	once sync.Once
}

// New returns a Dir rooted at base, creating it when needed. An empty base
// selects the operating system temp directory.
func New(base string, log *logger.Logger) (*Dir, error) {
	if base == "" {
		base = os.TempDir()
	}

	err := os.MkdirAll(base, dirPermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory %s: %w", base, err)
	}

	return &Dir{base: base, log: log}, nil
}

// Path returns the base directory.
func (d *Dir) Path() string {
	return d.base
}

// Create makes an empty temporary file matching pattern (see os.CreateTemp)
// and returns it closed, ready to be written by another process.
func (d *Dir) Create(pattern string) (*File, error) {
	tempFile, err := os.CreateTemp(d.base, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	file := &File{path: tempFile.Name(), log: d.log}

	closeErr := tempFile.Close()
	if closeErr != nil {
		file.Remove()

		return nil, fmt.Errorf("failed to close temp file %s: %w", file.path, closeErr)
	}

	return file, nil
}

// Write creates a temporary file holding data.
func (d *Dir) Write(pattern string, data []byte) (*File, error) {
	tempFile, err := os.CreateTemp(d.base, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	file := &File{path: tempFile.Name(), log: d.log}

	_, writeErr := tempFile.Write(data)
	closeErr := tempFile.Close()

	if writeErr != nil {
		file.Remove()

		return nil, fmt.Errorf("failed to write temp file %s: %w", file.path, writeErr)
	}

	if closeErr != nil {
		file.Remove()

		return nil, fmt.Errorf("failed to close temp file %s: %w", file.path, closeErr)
	}

	return file, nil
}

// Path returns the file location.
func (f *File) Path() string {
	return f.path
}

// Remove deletes the file. It is safe to call more than once; failures are
// logged and otherwise ignored.
func (f *File) Remove() {
	f.once.Do(func() {
		err := os.Remove(f.path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) && f.log != nil {
			f.log.Warn("Failed to remove temp file '%s': %v", f.path, err)
		}
	})
}
