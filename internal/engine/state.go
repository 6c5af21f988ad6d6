// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// StateStore handles reading and writing run state under one base
// directory (e.g. .kestrel/run).
type StateStore struct {
	baseDir string
}

// NewStateStore creates a store at the given base directory.
func NewStateStore(baseDir string) *StateStore {
	return &StateStore{baseDir: baseDir}
}

// Dir returns the store's base directory.
func (s *StateStore) Dir() string { return s.baseDir }

// WorkspaceDir returns the isolated workspace path for an entry.
func (s *StateStore) WorkspaceDir(entryID string) string {
	return filepath.Join(s.baseDir, "workspaces", entryID)
}

// LogPath returns the combined-output log path for an entry.
func (s *StateStore) LogPath(entryID string) string {
	return filepath.Join(s.baseDir, "logs", entryID+".log")
}

func (s *StateStore) lastRunPath() string {
	return filepath.Join(s.baseDir, "last-run.json")
}

// Lock acquires the store's cross-process lock. It fails immediately
// when another run holds it; two runs sharing a state dir would race
// on workspaces and last-run.json.
func (s *StateStore) Lock() (release func(), err error) {
	if err := os.MkdirAll(s.baseDir, 0755); err != nil {
		return nil, err
	}

	fl := flock.New(filepath.Join(s.baseDir, "run.lock"))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking state dir: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("state dir %s is locked by another kestrel run", s.baseDir)
	}
	return func() { _ = fl.Unlock() }, nil
}

// ReadLastRun loads the last run summary. A missing file is clean
// state and returns (nil, nil).
func (s *StateStore) ReadLastRun() (*LastRun, error) {
	f, err := os.Open(s.lastRunPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening last run file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var last LastRun
	if err := json.NewDecoder(f).Decode(&last); err != nil {
		return nil, fmt.Errorf("decoding last run: %w", err)
	}
	return &last, nil
}

// ReadEntryResult loads one entry's result, nil when absent.
func (s *StateStore) ReadEntryResult(entryID string) (*EntryResult, error) {
	f, err := os.Open(filepath.Join(s.baseDir, "entries", entryID+".json"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var res EntryResult
	if err := json.NewDecoder(f).Decode(&res); err != nil {
		return nil, err
	}
	return &res, nil
}

// WriteLastRun saves the run summary.
func (s *StateStore) WriteLastRun(last LastRun) error {
	return s.writeJSON(s.lastRunPath(), last)
}

// WriteEntryResult saves an entry's result.
func (s *StateStore) WriteEntryResult(res EntryResult) error {
	return s.writeJSON(filepath.Join(s.baseDir, "entries", res.Entry+".json"), res)
}

func (s *StateStore) writeJSON(path string, v any) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		cerr := f.Close()
		if err == nil {
			err = cerr
		}
	}()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Reset clears the state directory, workspaces included.
func (s *StateStore) Reset() error {
	return os.RemoveAll(s.baseDir)
}

// FailedEntries returns the entry IDs that failed in the last run.
func (s *StateStore) FailedEntries() ([]string, error) {
	last, err := s.ReadLastRun()
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, nil
	}
	return last.Failed, nil
}
