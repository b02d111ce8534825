// Package state persists the record of the last bridge this tool launched.
//
// The record lets a later invocation terminate the bridge it started by
// PID instead of killing whatever happens to hold the bridge port. The
// file is plain YAML so it can be inspected and deleted by hand.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/espbridge/internal/model"
)

const (
	// RecordFile holds the YAML-encoded model.BridgeRecord.
	RecordFile = "bridge.yaml"

	// LogFile receives the bridge process's stdout and stderr.
	LogFile = "bridge.log"

	// ContainerLogFile receives toolchain output in background mode.
	ContainerLogFile = "container.log"
)

// Store reads and writes bridge state under a single directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir. The directory is created lazily
// on the first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the state directory.
func (s *Store) Dir() string {
	return s.dir
}

// RecordPath returns the path of the bridge record file.
func (s *Store) RecordPath() string {
	return filepath.Join(s.dir, RecordFile)
}

// LogPath returns the path of the bridge log file.
func (s *Store) LogPath() string {
	return filepath.Join(s.dir, LogFile)
}

// ContainerLogPath returns the path of the background toolchain log.
func (s *Store) ContainerLogPath() string {
	return filepath.Join(s.dir, ContainerLogFile)
}

// Save writes rec, replacing any previous record. The write goes through
// a temp file and rename so a crash never leaves a half-written record.
func (s *Store) Save(rec model.BridgeRecord) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", s.dir, err)
	}

	data, err := yaml.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("failed to encode bridge record: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, RecordFile+".*")
	if err != nil {
		return fmt.Errorf("failed to create bridge record: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write bridge record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write bridge record: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.RecordPath()); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace bridge record: %w", err)
	}
	return nil
}

// Load returns the stored record. The boolean is false when no record
// exists; that is not an error.
func (s *Store) Load() (model.BridgeRecord, bool, error) {
	var rec model.BridgeRecord

	data, err := os.ReadFile(s.RecordPath())
	if errors.Is(err, os.ErrNotExist) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, fmt.Errorf("failed to read bridge record: %w", err)
	}

	if err := yaml.Unmarshal(data, &rec); err != nil {
		return rec, false, fmt.Errorf("failed to parse bridge record %s: %w", s.RecordPath(), err)
	}
	return rec, true, nil
}

// Clear removes the record. Removing a missing record is a no-op.
func (s *Store) Clear() error {
	err := os.Remove(s.RecordPath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove bridge record: %w", err)
	}
	return nil
}
