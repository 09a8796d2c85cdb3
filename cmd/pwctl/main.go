package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/grantcarthew/pwctl/internal/cli"
	"github.com/grantcarthew/pwctl/internal/observability"
)

func main() {
	defer observability.Sync()

	if err := cli.Execute(); err != nil {
		// Print error if not already printed by a command handler.
		if !cli.IsPrintedError(err) {
			if cli.JSONOutput {
				resp := map[string]any{
					"ok":    false,
					"error": err.Error(),
				}
				_ = json.NewEncoder(os.Stderr).Encode(resp)
			} else {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			}
		}
		os.Exit(1)
	}
}
