package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/deusflow/topicnews/internal/store"
)

// SnapshotFile persists the section store as a JSON document so a restart
// can serve the last committed sections before the first refresh completes.
type SnapshotFile struct {
	filePath string
	mu       sync.Mutex
}

// NewSnapshotFile creates a snapshot file handle
func NewSnapshotFile(filePath string) *SnapshotFile {
	return &SnapshotFile{filePath: filePath}
}

func (sf *SnapshotFile) Path() string {
	return sf.filePath
}

// Load reads the snapshot from disk. A missing or empty file yields an empty
// snapshot and ok=false.
func (sf *SnapshotFile) Load() (store.Snapshot, bool, error) {
	sf.mu.Lock()
	defer sf.mu.Unlock()

	data, err := os.ReadFile(sf.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return store.Snapshot{}, false, nil
	}
	if err != nil {
		return store.Snapshot{}, false, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	if len(data) == 0 {
		return store.Snapshot{}, false, nil
	}

	var snap store.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return store.Snapshot{}, false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snap, true, nil
}

// Save writes the snapshot next to its destination and renames it into place,
// so readers never see a partially written file.
func (sf *SnapshotFile) Save(snap store.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	sf.mu.Lock()
	defer sf.mu.Unlock()

	dir := filepath.Dir(sf.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(sf.filePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), sf.filePath); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}
