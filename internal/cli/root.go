// Package cli wires the cobra command surface over the session broker.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/grantcarthew/pwctl/internal/config"
	"github.com/grantcarthew/pwctl/internal/observability"
	"github.com/grantcarthew/pwctl/internal/protocol"
	"github.com/grantcarthew/pwctl/internal/session"
)

// Version is set at build time.
var Version = "dev"

// Debug enables verbose debug output.
var Debug bool

// JSONOutput enables JSON output format (default is text).
var JSONOutput bool

// NoColor disables color output.
var NoColor bool

var (
	configFile   string
	browserKind  string
	headless     bool
	cdpEndpoint  string
	launchServer bool
	authFile     string
	waitUntil    string
)

var rootCmd = &cobra.Command{
	Use:           "pwctl",
	Short:         "Driver and session broker for a remote browser-automation engine",
	Long:          "pwctl supervises a Playwright-protocol engine process and brokers reusable browser sessions so repeated invocations share one live browser server.",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&Debug, "debug", false, "Enable verbose debug output")
	pf.BoolVar(&JSONOutput, "json", false, "Output in JSON format (default is text)")
	pf.BoolVar(&NoColor, "no-color", false, "Disable color output")
	pf.StringVar(&configFile, "config", "", "Path to YAML config file")
	pf.StringVar(&browserKind, "browser", "", "Browser kind: chromium, firefox, or webkit")
	pf.BoolVar(&headless, "headless", true, "Run the browser headless")
	pf.StringVar(&cdpEndpoint, "cdp-endpoint", "", "Attach to an existing browser over CDP")
	pf.BoolVar(&launchServer, "launch-server", false, "Launch a reusable local browser server")
	pf.StringVar(&authFile, "auth", "", "Storage-state file used to seed contexts")
	pf.StringVar(&waitUntil, "wait-until", "", "Default navigation wait: load, domcontentloaded, networkidle")

	rootCmd.SetVersionTemplate(`pwctl version {{.Version}}
`)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig resolves configuration and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	if browserKind != "" {
		cfg.BrowserKind = browserKind
	}
	if cmd.Flags().Changed("headless") {
		cfg.Headless = headless
	}
	if cmd.Flags().Changed("cdp-endpoint") {
		cfg.CDPEndpoint = cdpEndpoint
	}
	if cmd.Flags().Changed("launch-server") {
		cfg.LaunchServer = launchServer
	}
	if cmd.Flags().Changed("auth") {
		cfg.AuthFile = authFile
	}
	if waitUntil != "" {
		cfg.WaitUntil = waitUntil
	}
	if Debug {
		cfg.Logger.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	observability.Initialize(cfg.Logger)
	return cfg, nil
}

// brokerConfig maps resolved configuration onto the session broker.
func brokerConfig(cfg *config.Config, refresh bool) *session.Config {
	return &session.Config{
		BrowserKind:  cfg.BrowserKind,
		Headless:     cfg.Headless,
		CDPEndpoint:  cfg.CDPEndpoint,
		LaunchServer: cfg.LaunchServer,
		AuthFile:     cfg.AuthFile,
		WaitUntil:    protocol.WaitUntil(cfg.WaitUntil),
		Refresh:      refresh,
		DriverPath:   cfg.DriverPath,
		NodePath:     cfg.NodePath,
		Logger:       observability.Logger(),
	}
}

// printedError marks errors already rendered by a command handler.
type printedError struct{ err error }

func (e *printedError) Error() string { return e.err.Error() }
func (e *printedError) Unwrap() error { return e.err }

// IsPrintedError reports whether err was already printed.
func IsPrintedError(err error) bool {
	var pe *printedError
	return errors.As(err, &pe)
}

// outputSuccess renders a result payload in the selected format.
func outputSuccess(payload map[string]any) error {
	if JSONOutput {
		payload["ok"] = true
		return json.NewEncoder(os.Stdout).Encode(payload)
	}
	for key, value := range payload {
		fmt.Printf("%s: %v\n", key, value)
	}
	return nil
}

// outputError renders an error and marks it printed.
func outputError(msg string) error {
	if JSONOutput {
		_ = json.NewEncoder(os.Stderr).Encode(map[string]any{"ok": false, "error": msg})
	} else if NoColor {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	} else {
		fmt.Fprintf(os.Stderr, "%s %s\n", color.RedString("Error:"), msg)
	}
	return &printedError{err: errors.New(msg)}
}
