package offline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// aliveRecord is what the agent persists each tick so a later start can
// tell how long the machine was dark.
type aliveRecord struct {
	LastAlive time.Time `json:"lastAlive"`
	Version   string    `json:"version"`
}

// AliveFile persists the last instant the agent was known to be running.
type AliveFile struct {
	path    string
	version string
}

// NewAliveFile creates a marker file handle at path.
func NewAliveFile(path, version string) *AliveFile {
	return &AliveFile{path: path, version: version}
}

// Touch records now as the last-alive instant. Written atomically so a
// power cut mid-write leaves the previous marker intact.
func (a *AliveFile) Touch(now time.Time) error {
	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	data, err := json.Marshal(aliveRecord{LastAlive: now, Version: a.version})
	if err != nil {
		return fmt.Errorf("marshal alive record: %w", err)
	}

	tmp := a.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write alive record: %w", err)
	}
	if err := os.Rename(tmp, a.path); err != nil {
		return fmt.Errorf("replace alive record: %w", err)
	}
	return nil
}

// Last returns the persisted last-alive instant. A missing or corrupt
// file yields the zero time and no error: there is simply no evidence.
func (a *AliveFile) Last() (time.Time, error) {
	data, err := os.ReadFile(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("read alive record: %w", err)
	}

	var rec aliveRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return time.Time{}, nil
	}
	return rec.LastAlive, nil
}
