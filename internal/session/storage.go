package session

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
)

// ErrAuthLoad wraps every storage-state read failure: missing file,
// unreadable file, or malformed JSON.
var ErrAuthLoad = errors.New("auth storage state unavailable")

// LoadStorageState reads a storage-state document. The content is
// opaque engine JSON; only well-formedness is checked here.
func LoadStorageState(path string) (jsoniter.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAuthLoad, path, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: %s: not valid JSON", ErrAuthLoad, path)
	}
	return data, nil
}

// SaveStorageState writes an exported storage-state document
// atomically with a restrictive mode: it holds credentials.
func SaveStorageState(path string, state jsoniter.RawMessage) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create storage state dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".storage-*.json")
	if err != nil {
		return fmt.Errorf("create temp storage state: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod storage state: %w", err)
	}
	if _, err := tmp.Write(state); err != nil {
		tmp.Close()
		return fmt.Errorf("write storage state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close storage state: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename storage state: %w", err)
	}
	return nil
}

// Fingerprint returns the hex SHA-256 of the file at path, used by the
// broker's invalidation predicates. An absent file fingerprints to the
// empty string.
func Fingerprint(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("fingerprint %s: %w", path, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
