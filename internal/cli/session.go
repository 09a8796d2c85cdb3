package cli

import (
	"github.com/spf13/cobra"

	"github.com/grantcarthew/pwctl/internal/session"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and manage the persistent browser session",
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted session descriptor",
	RunE:  runSessionStatus,
}

var sessionStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the descriptor-backed browser server and remove its descriptor",
	RunE:  runSessionStop,
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the session descriptor without touching any live server",
	RunE:  runSessionClear,
}

func init() {
	sessionCmd.AddCommand(sessionStatusCmd, sessionStopCmd, sessionClearCmd)
	rootCmd.AddCommand(sessionCmd)
}

func runSessionStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return outputError(err.Error())
	}

	payload, err := session.Status(brokerConfig(cfg, false))
	if err != nil {
		return outputError(err.Error())
	}
	return outputSuccess(payload)
}

func runSessionStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return outputError(err.Error())
	}

	stopped, err := session.Stop(cmd.Context(), brokerConfig(cfg, false))
	if err != nil {
		return outputError(err.Error())
	}
	if !stopped {
		return outputSuccess(map[string]any{
			"stopped": false,
			"message": "no active session; nothing to stop",
		})
	}
	return outputSuccess(map[string]any{"stopped": true})
}

func runSessionClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return outputError(err.Error())
	}

	cleared, err := session.Clear(brokerConfig(cfg, false))
	if err != nil {
		return outputError(err.Error())
	}
	return outputSuccess(map[string]any{"cleared": cleared})
}
