package seed

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/rollcall/pkg/logger"
)

// SetupLogging configures logging to stdout and, when logFile is set, to
// that file as well.
func SetupLogging(logFile string, verbose bool) error {
	var out io.Writer = os.Stdout
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return fmt.Errorf("failed to create log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, file)
	}
	if err := logger.Init(logger.WithWriter(out)); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		return logger.SetLevelString("debug")
	}
	return nil
}

// ShowHelp prints usage information for the seed tool.
func ShowHelp() {
	os.Stdout.WriteString(`rollcall seed
=============

Generates squads with known attendance habits, uploads them to a running
rollcall service, recomputes every team and checks each served leaderboard against the
same scoring run locally.

Usage:
  go run ./cmd/seed [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -teams int
        Number of squads (default 3)
  -players int
        Players per squad (default 20)
  -weeks int
        Weeks of history (default 12)
  -workers int
        Squads seeded concurrently (default 4)
  -seed int
        Random seed (default: current time)
  -window int
        Evaluation window in days the service scores with (default 0, all history)
  -timeout duration
        HTTP request timeout (default 30s)
  -output string
        Write the generated dataset as JSON to this file
  -log string
        Also write logs to this file
  -verbose
        Enable debug logging
  -help
        Show this help message
`)
}
