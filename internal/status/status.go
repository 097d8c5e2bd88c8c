// Package status persists small text artifacts for external watchers.
// Since the pipeline threads its values through an in-memory run context,
// these files are purely observational: a volume-mounted health check can
// poll them without talking to the process.
package status

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pouyahasanamreji/nextjs-dynamic-env-builder/internal/errs"
)

const (
	fileCurrentHash     = "current-hash"
	fileRegistryPath    = "registry-path"
	fileLastPushedTag   = "last-pushed-tag"
	fileLastBuiltCommit = "last-built-commit"
	fileDone            = "done"
)

var (
	ErrWriteFailed = errors.New("status: write failed")
	ErrReadFailed  = errors.New("status: read failed")
	ErrBadDoneFile = errors.New("status: malformed done marker")
)

// Store writes and reads the fixed status files under one directory.
// Every write truncates; each file has exactly one producing step.
type Store struct {
	dir string
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) WriteCurrentHash(hash string) error     { return s.write(fileCurrentHash, hash) }
func (s *Store) WriteRegistryPath(path string) error    { return s.write(fileRegistryPath, path) }
func (s *Store) WriteLastPushedTag(tag string) error    { return s.write(fileLastPushedTag, tag) }
func (s *Store) WriteLastBuiltCommit(hash string) error { return s.write(fileLastBuiltCommit, hash) }

func (s *Store) ReadRegistryPath() (string, error)  { return s.read(fileRegistryPath) }
func (s *Store) ReadLastPushedTag() (string, error) { return s.read(fileLastPushedTag) }

// WriteDone records the completion marker: pushed tag on the first line,
// completion timestamp on the second.
func (s *Store) WriteDone(tag string, at time.Time) error {
	return s.write(fileDone, tag+"\n"+at.Format(time.RFC3339))
}

// ReadDone parses the completion marker back.
func (s *Store) ReadDone() (string, time.Time, error) {
	raw, err := s.read(fileDone)
	if err != nil {
		return "", time.Time{}, err
	}
	lines := strings.Split(raw, "\n")
	if len(lines) < 2 {
		return "", time.Time{}, ErrBadDoneFile
	}
	at, err := time.Parse(time.RFC3339, lines[1])
	if err != nil {
		return "", time.Time{}, errs.Wrap(ErrBadDoneFile, err)
	}
	return lines[0], at, nil
}

func (s *Store) write(name, content string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errs.Wrap(ErrWriteFailed, err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), []byte(content+"\n"), 0o644); err != nil {
		return errs.WrapMsg(ErrWriteFailed, name, err)
	}
	return nil
}

func (s *Store) read(name string) (string, error) {
	b, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return "", errs.WrapMsg(ErrReadFailed, name, err)
	}
	return strings.TrimSuffix(string(b), "\n"), nil
}
