// Package enrollment manages the device credential file and first-run
// registration with the HR backend.
package enrollment

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/gdshr/attendance-agent/internal/common/logger"
	"github.com/gdshr/attendance-agent/internal/hrclient"
)

// Credentials is the persisted device identity issued at enrollment.
type Credentials struct {
	DeviceID             string    `json:"deviceId"`
	DeviceToken          string    `json:"deviceToken"`
	EmpCode              string    `json:"empCode"`
	HeartbeatIntervalSec int       `json:"heartbeatIntervalSec,omitempty"`
	EnrolledAt           time.Time `json:"enrolledAt"`
}

// Store reads and writes the credential file.
type Store struct {
	path string
	log  *logger.Logger
}

// NewStore creates a store rooted in the agent data directory.
func NewStore(dataDir string, log *logger.Logger) *Store {
	return &Store{path: filepath.Join(dataDir, "credentials.json"), log: log}
}

// Load returns the stored credentials, or nil when absent. A corrupt
// file is treated as absent so the agent re-enrolls instead of crashing
// forever on a half-written file.
func (s *Store) Load() (*Credentials, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		s.log.Warn("credential file unreadable, will re-enroll", zap.Error(err))
		return nil, nil
	}
	if creds.DeviceID == "" || creds.DeviceToken == "" {
		s.log.Warn("credential file incomplete, will re-enroll")
		return nil, nil
	}
	return &creds, nil
}

// Save writes the credentials atomically with owner-only permissions.
func (s *Store) Save(creds *Credentials) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace credentials: %w", err)
	}
	return nil
}

// Clear removes the credential file, forcing re-enrollment on the next
// run. Called when the server revokes the device.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}

// Enroller is the slice of the HR client enrollment needs.
type Enroller interface {
	Enroll(ctx context.Context, deviceName string) (*hrclient.EnrollResponse, error)
}

// EnsureEnrolled returns stored credentials, enrolling with the server
// first when none exist.
func EnsureEnrolled(ctx context.Context, store *Store, client Enroller, empCode, deviceName string) (*Credentials, error) {
	creds, err := store.Load()
	if err != nil {
		return nil, err
	}
	if creds != nil {
		store.log.Info("using stored enrollment",
			zap.String("device_id", creds.DeviceID),
			zap.String("emp_code", creds.EmpCode))
		return creds, nil
	}

	store.log.Info("no credentials on disk, enrolling",
		zap.String("emp_code", empCode),
		zap.String("device_name", deviceName))

	resp, err := client.Enroll(ctx, deviceName)
	if err != nil {
		return nil, fmt.Errorf("enrollment failed: %w", err)
	}

	creds = &Credentials{
		DeviceID:             resp.DeviceID,
		DeviceToken:          resp.DeviceToken,
		EmpCode:              empCode,
		HeartbeatIntervalSec: resp.HeartbeatIntervalSec,
		EnrolledAt:           time.Now().UTC(),
	}
	if err := store.Save(creds); err != nil {
		return nil, err
	}

	store.log.Info("device enrolled", zap.String("device_id", creds.DeviceID))
	return creds, nil
}
