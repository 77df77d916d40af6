package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "tronsend",
		Usage: "Send TRX transfers and inspect their lifecycle",
		Description: `A command-line tool for running Tron TRX transfers end to end.

Transfers run locally (transfer) or on the Temporal worker (submit). Runs are
dry by default: the transaction is built and signed but never broadcast unless
--broadcast is given.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			transferCommand(),
			balanceCommand(),
			statusCommand(),
			networksCommand(),
			// Journal inspection commands
			historyCommand(),
			showCommand(),
			// NATS event streaming
			eventsCommand(),
			// Temporal commands
			submitCommand(),
			awaitCommand(),
		},
		// Global flags available to all commands
		Flags: globalFlags(),
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "network",
			Aliases: []string{"n"},
			Usage:   "Tron network (local, nile, shasta, mainnet)",
			EnvVars: []string{"TRON_NETWORK"},
			Value:   "nile",
		},
		&cli.StringFlag{
			Name:    "rpc-url",
			Usage:   "Override the network's node endpoint",
			EnvVars: []string{"TRON_RPC_URL"},
		},
		&cli.StringFlag{
			Name:    "api-key",
			Usage:   "TronGrid API key (required for mainnet)",
			EnvVars: []string{"TRONGRID_API_KEY"},
		},
		&cli.Float64Flag{
			Name:    "rpc-rate-limit",
			Usage:   "Maximum node requests per second (0 disables limiting)",
			EnvVars: []string{"RPC_RATE_LIMIT"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Database connection URL",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "nats-url",
			Usage:   "NATS server URL",
			EnvVars: []string{"NATS_URL"},
		},
		&cli.StringFlag{
			Name:    "temporal-host",
			Usage:   "Temporal server address",
			EnvVars: []string{"TEMPORAL_HOST"},
			Value:   "localhost:7233",
		},
		&cli.StringFlag{
			Name:    "temporal-namespace",
			Usage:   "Temporal namespace",
			EnvVars: []string{"TEMPORAL_NAMESPACE"},
			Value:   "default",
		},
		&cli.StringFlag{
			Name:    "temporal-task-queue",
			Usage:   "Temporal task queue served by the worker",
			EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
			Value:   "tronsend-transfers",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			EnvVars: []string{"LOG_LEVEL"},
			Value:   "warn",
		},
		&cli.BoolFlag{
			Name:    "json",
			Aliases: []string{"j"},
			Usage:   "Output in JSON format",
		},
		&cli.StringFlag{
			Name:  "jq",
			Usage: "Filter JSON output through a jq expression (implies --json)",
		},
	}
}
