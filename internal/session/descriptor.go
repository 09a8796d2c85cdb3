// Package session brokers reusable browser sessions for the CLI: it
// decides between connect-over-CDP, one-shot launch, and
// launch-server-with-reuse, and persists a descriptor on disk so
// successive invocations share one live server.
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/go-homedir"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Descriptor is the on-disk record of a reusable launched server.
type Descriptor struct {
	SessionID       string    `json:"session_id"`
	WSEndpoint      string    `json:"ws_endpoint"`
	PID             int       `json:"pid"`
	BrowserKind     string    `json:"browser_kind"`
	Headless        bool      `json:"headless"`
	DriverVersion   string    `json:"driver_version"`
	StartedAt       time.Time `json:"started_at"`
	AuthFingerprint string    `json:"auth_fingerprint,omitempty"`
}

// newDescriptor stamps a fresh descriptor with identity and start time.
func newDescriptor(wsEndpoint string, pid int, browserKind string, headless bool, driverVersion, authFingerprint string) *Descriptor {
	return &Descriptor{
		SessionID:       uuid.NewString(),
		WSEndpoint:      wsEndpoint,
		PID:             pid,
		BrowserKind:     browserKind,
		Headless:        headless,
		DriverVersion:   driverVersion,
		StartedAt:       time.Now().UTC(),
		AuthFingerprint: authFingerprint,
	}
}

// DefaultDescriptorPath returns the per-user descriptor location for
// global sessions. Project-scoped sessions use ProjectDescriptorPath.
func DefaultDescriptorPath() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := homedir.Dir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "pwctl", "sessions", "default.json"), nil
}

// ProjectDescriptorPath returns the project-relative descriptor
// location under root.
func ProjectDescriptorPath(root string) string {
	return filepath.Join(root, ".pwctl", "session.json")
}

// LoadDescriptor reads a descriptor from path. Absent or half-written
// files are treated as "no descriptor", not errors: concurrent CLI
// invocations are expected.
func LoadDescriptor(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read descriptor: %w", err)
	}
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, nil
	}
	if d.WSEndpoint == "" {
		return nil, nil
	}
	return &d, nil
}

// Save writes the descriptor atomically (temp file + rename) with a
// restrictive mode. The descriptor file is never held open across
// RPCs.
func (d *Descriptor) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create descriptor dir: %w", err)
	}

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal descriptor: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".session-*.json")
	if err != nil {
		return fmt.Errorf("create temp descriptor: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod descriptor: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write descriptor: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close descriptor: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename descriptor: %w", err)
	}
	return nil
}

// RemoveDescriptor deletes the descriptor file. Reports whether a file
// was actually removed.
func RemoveDescriptor(path string) (bool, error) {
	err := os.Remove(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("remove descriptor: %w", err)
}
