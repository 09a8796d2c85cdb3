package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantcarthew/pwctl/internal/driver"
)

func TestResolveMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want Mode
	}{
		{"cdp endpoint wins", Config{CDPEndpoint: "http://127.0.0.1:9222", LaunchServer: true}, ModeCDP},
		{"launch server", Config{LaunchServer: true}, ModeServer},
		{"default one-shot", Config{}, ModeLaunch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveMode(&tt.cfg))
		})
	}
}

func TestDescriptorMatches_InvalidationPredicates(t *testing.T) {
	base := func() *Descriptor {
		return &Descriptor{
			WSEndpoint:      "ws://x/",
			BrowserKind:     "chromium",
			Headless:        true,
			DriverVersion:   driver.Version,
			AuthFingerprint: "fp",
		}
	}
	cfg := &Config{BrowserKind: "chromium", Headless: true}

	assert.True(t, descriptorMatches(base(), cfg, "fp"))

	kind := base()
	kind.BrowserKind = "firefox"
	assert.False(t, descriptorMatches(kind, cfg, "fp"), "browser kind differs")

	headful := base()
	headful.Headless = false
	assert.False(t, descriptorMatches(headful, cfg, "fp"), "headless differs")

	stale := base()
	stale.DriverVersion = "0.0.1"
	assert.False(t, descriptorMatches(stale, cfg, "fp"), "driver version differs")

	assert.False(t, descriptorMatches(base(), cfg, "other"), "auth fingerprint differs")
}

func TestAcquireServer_InvalidDescriptorIsDeletedBeforeLaunch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	stale := newDescriptor("ws://127.0.0.1:1/", 1, "firefox", true, driver.Version, "")
	require.NoError(t, stale.Save(path))

	cfg := &Config{
		BrowserKind:    "chromium",
		Headless:       true,
		LaunchServer:   true,
		DescriptorPath: path,
		// Point the driver lookup somewhere empty so the fresh-launch
		// fallback fails fast instead of spawning anything.
		DriverPath: filepath.Join(t.TempDir(), "missing-cli.js"),
		NodePath:   filepath.Join(t.TempDir(), "missing-node"),
	}

	_, err := Acquire(context.Background(), cfg)
	require.Error(t, err)

	// The mismatched descriptor is gone even though relaunch failed.
	desc, err := LoadDescriptor(path)
	require.NoError(t, err)
	assert.Nil(t, desc)
}

func TestAcquireServer_RefreshDiscardsDescriptor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	desc := newDescriptor("ws://127.0.0.1:1/", 1, "chromium", true, driver.Version, "")
	require.NoError(t, desc.Save(path))

	cfg := &Config{
		BrowserKind:    "chromium",
		Headless:       true,
		LaunchServer:   true,
		Refresh:        true,
		DescriptorPath: path,
		DriverPath:     filepath.Join(t.TempDir(), "missing-cli.js"),
		NodePath:       filepath.Join(t.TempDir(), "missing-node"),
	}

	_, err := Acquire(context.Background(), cfg)
	require.Error(t, err)

	loaded, err := LoadDescriptor(path)
	require.NoError(t, err)
	assert.Nil(t, loaded, "refresh must remove the descriptor unconditionally")
}

func TestAcquireServer_UnhealthyEndpointFallsThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	// Nothing listens on port 1; the health check must fail.
	dead := newDescriptor("ws://127.0.0.1:1/", 1, "chromium", true, driver.Version, "")
	require.NoError(t, dead.Save(path))

	cfg := &Config{
		BrowserKind:    "chromium",
		Headless:       true,
		LaunchServer:   true,
		DescriptorPath: path,
		DriverPath:     filepath.Join(t.TempDir(), "missing-cli.js"),
		NodePath:       filepath.Join(t.TempDir(), "missing-node"),
	}

	_, err := Acquire(context.Background(), cfg)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrBrowserLaunch)

	desc, err := LoadDescriptor(path)
	require.NoError(t, err)
	assert.Nil(t, desc, "unhealthy descriptor must be deleted")
}

func TestAcquireCDP_RequiresChromium(t *testing.T) {
	cfg := &Config{
		BrowserKind: "firefox",
		CDPEndpoint: "http://127.0.0.1:9222",
	}
	_, err := Acquire(context.Background(), cfg)
	require.ErrorContains(t, err, "chromium")
}

func TestAcquire_AuthLoadFailureSurfaces(t *testing.T) {
	cfg := &Config{
		BrowserKind: "chromium",
		AuthFile:    filepath.Join(t.TempDir(), "missing-auth.json"),
		DriverPath:  filepath.Join(t.TempDir(), "missing-cli.js"),
		NodePath:    filepath.Join(t.TempDir(), "missing-node"),
	}
	_, err := Acquire(context.Background(), cfg)
	require.Error(t, err)
}

func TestStop_WithoutDescriptorIsNoop(t *testing.T) {
	cfg := &Config{DescriptorPath: filepath.Join(t.TempDir(), "session.json")}
	stopped, err := Stop(context.Background(), cfg)
	require.NoError(t, err)
	assert.False(t, stopped)
}

func TestStop_DeadServerStillRemovesDescriptor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	dead := newDescriptor("ws://127.0.0.1:1/", 1, "chromium", true, driver.Version, "")
	require.NoError(t, dead.Save(path))

	cfg := &Config{DescriptorPath: path}
	stopped, err := Stop(context.Background(), cfg)
	require.NoError(t, err)
	assert.False(t, stopped)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestStatusAndClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	cfg := &Config{DescriptorPath: path}

	payload, err := Status(cfg)
	require.NoError(t, err)
	assert.Equal(t, false, payload["active"])

	desc := newDescriptor("ws://127.0.0.1:53211/", 9, "webkit", false, driver.Version, "")
	require.NoError(t, desc.Save(path))

	payload, err = Status(cfg)
	require.NoError(t, err)
	assert.Equal(t, true, payload["active"])
	assert.Equal(t, "ws://127.0.0.1:53211/", payload["ws_endpoint"])
	assert.Equal(t, "webkit", payload["browser_kind"])

	cleared, err := Clear(cfg)
	require.NoError(t, err)
	assert.True(t, cleared)

	cleared, err = Clear(cfg)
	require.NoError(t, err)
	assert.False(t, cleared)
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "cdp", ModeCDP.String())
	assert.Equal(t, "server", ModeServer.String())
	assert.Equal(t, "launch", ModeLaunch.String())
}
