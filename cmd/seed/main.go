package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/rollcall/internal/seed"
)

// Default configuration constants.
const (
	defaultTeams       = 3
	defaultPlayers     = 20
	defaultWeeks       = 12
	defaultWorkers     = 4
	defaultTimeout     = 30 * time.Second
	defaultSeedTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		teams      = flag.Int("teams", defaultTeams, "Number of squads")
		players    = flag.Int("players", defaultPlayers, "Players per squad")
		weeks      = flag.Int("weeks", defaultWeeks, "Weeks of history")
		workers    = flag.Int("workers", defaultWorkers, "Squads seeded concurrently")
		seedValue  = flag.Int64("seed", time.Now().UnixNano(), "Random seed")
		window     = flag.Int("window", 0, "Evaluation window in days the service scores with (0 = all history)")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		outputFile = flag.String("output", "", "Write the generated dataset as JSON to this file")
		logFile    = flag.String("log", "", "Also write logs to this file")
		verbose    = flag.Bool("verbose", false, "Enable debug logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		seed.ShowHelp()
		return
	}

	if err := seed.SetupLogging(*logFile, *verbose); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultSeedTimeout)
	defer cancel()

	cfg := &seed.Config{
		BaseURL:        *baseURL,
		Teams:          *teams,
		PlayersPerTeam: *players,
		Weeks:          *weeks,
		Workers:        *workers,
		Seed:           *seedValue,
		WindowDays:     *window,
		Timeout:        *timeout,
		OutputFile:     *outputFile,
		LogFile:        *logFile,
		Verbose:        *verbose,
	}

	if _, err := seed.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Seed failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
}
