package main

import (
	"os"

	"spx-engine/internal/cli"
	"spx-engine/internal/logging"
)

func main() {
	logger := logging.NewLogger()

	if err := cli.NewRootCmd(logger).Execute(); err != nil {
		logger.Error().Err(logging.RedactError(err)).Msg("Command failed")
		os.Exit(1)
	}
}
