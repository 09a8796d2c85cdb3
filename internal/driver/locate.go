// Package driver locates, spawns, and supervises the engine subprocess.
// The engine is a Node.js program that speaks the automation protocol
// over its stdio in run-driver mode.
package driver

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
)

// ErrDriverNotFound is returned when no engine cli.js can be located.
var ErrDriverNotFound = errors.New("engine driver not found")

// ErrNodeNotFound is returned when no node interpreter can be located.
var ErrNodeNotFound = errors.New("node interpreter not found")

// Version is the engine driver version this build is pinned to.
// Overridden at build time via -ldflags. Recorded in launch-server
// descriptors so a driver upgrade invalidates stale sessions.
var Version = "1.49.0"

// bundledDriverPath is an optional install location baked in at build
// time via -ldflags.
var bundledDriverPath = ""

// driverSearchPaths lists conventional cli.js locations relative to the
// working directory.
func driverSearchPaths() []string {
	return []string{
		filepath.Join("node_modules", "playwright-core", "cli.js"),
		filepath.Join("node_modules", "playwright", "cli.js"),
	}
}

// FindDriver searches for the engine cli.js. Order: the PWCTL_DRIVER
// environment variable, the bundled path established at build time,
// then conventional node_modules locations.
func FindDriver() (string, error) {
	if envPath := os.Getenv("PWCTL_DRIVER"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
		// Env var set but path invalid - fail rather than silently fall through.
		return "", ErrDriverNotFound
	}

	if bundledDriverPath != "" {
		if _, err := os.Stat(bundledDriverPath); err == nil {
			return bundledDriverPath, nil
		}
	}

	for _, path := range driverSearchPaths() {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", ErrDriverNotFound
}

// FindNode locates the node interpreter. The PWCTL_NODE environment
// variable wins, then system lookup.
func FindNode() (string, error) {
	if envPath := os.Getenv("PWCTL_NODE"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
		return "", ErrNodeNotFound
	}

	found, err := exec.LookPath("node")
	if err != nil {
		return "", ErrNodeNotFound
	}
	return found, nil
}
