// Package cache persists the two JSON documents that make reruns idempotent:
// the repo→category mapping and the snapshot of the last known starred set.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	mappingFile  = "repo_category_mapping.json"
	snapshotFile = "starred_repos.json"
)

// ErrCorrupt wraps unreadable cache data. Recovery is deleting the cache
// files and rerunning; the next run rebuilds both from scratch.
var ErrCorrupt = errors.New("cache corrupt")

// Snapshot is the set of repo identifiers known to be starred as of the last
// successful run. Used only for diffing; fully replaced after each run.
type Snapshot struct {
	UpdatedAt string   `json:"updated_at"`
	Repos     []string `json:"repos"`
}

// Store reads and writes the cache files in a single directory.
type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Load returns the mapping and snapshot, treating missing files as empty.
// Unreadable files return an error wrapping ErrCorrupt.
func (s *Store) Load() (map[string]string, Snapshot, error) {
	mapping := make(map[string]string)
	var snap Snapshot

	if err := s.readJSON(mappingFile, &mapping); err != nil {
		return nil, Snapshot{}, err
	}
	if mapping == nil {
		mapping = make(map[string]string)
	}
	if err := s.readJSON(snapshotFile, &snap); err != nil {
		return nil, Snapshot{}, err
	}

	return mapping, snap, nil
}

// Save writes both documents together. Each file is written to a temp file
// and renamed into place, and the snapshot is renamed only after the mapping,
// so a crash mid-save never leaves a newer snapshot next to a stale mapping
// in half-written form.
func (s *Store) Save(mapping map[string]string, snap Snapshot) error {
	snap.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if snap.Repos == nil {
		snap.Repos = []string{}
	}

	if err := s.writeJSON(mappingFile, mapping); err != nil {
		return err
	}
	return s.writeJSON(snapshotFile, snap)
}

func (s *Store) readJSON(name string, v any) error {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w (delete the cache files to rebuild)", path, errors.Join(ErrCorrupt, err))
	}
	return nil
}

func (s *Store) writeJSON(name string, v any) error {
	path := filepath.Join(s.dir, name)
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
