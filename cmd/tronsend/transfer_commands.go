package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/brojonat/tronsend/service/db"
	natspkg "github.com/brojonat/tronsend/service/nats"
	"github.com/brojonat/tronsend/service/network"
	"github.com/brojonat/tronsend/service/transfer"
	"github.com/brojonat/tronsend/service/tron"
	"github.com/urfave/cli/v2"
)

// transferFlags are shared by transfer and submit.
func transferFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "from",
			Usage:   "Sender address (defaults to the address of --private-key)",
			EnvVars: []string{"TRON_FROM_ADDRESS"},
		},
		&cli.StringFlag{
			Name:    "to",
			Usage:   "Receiver address",
			EnvVars: []string{"TRON_TO_ADDRESS"},
		},
		&cli.Uint64Flag{
			Name:    "amount",
			Aliases: []string{"a"},
			Usage:   "Amount in SUN (1 TRX = 1,000,000 SUN)",
			EnvVars: []string{"TRANSFER_AMOUNT"},
		},
		&cli.BoolFlag{
			Name:    "dry-run",
			Usage:   "Build and sign but never broadcast",
			EnvVars: []string{"DRY_RUN"},
			Value:   true,
		},
		&cli.BoolFlag{
			Name:    "broadcast",
			Usage:   "Actually broadcast the transaction (overrides --dry-run)",
			EnvVars: []string{"ACTUALLY_BROADCAST"},
		},
		&cli.BoolFlag{
			Name:  "build-only",
			Usage: "Stop after the node builds the transaction; never sign",
		},
		&cli.BoolFlag{
			Name:    "skip-confirmation",
			Usage:   "Do not wait for settlement after broadcasting",
			EnvVars: []string{"SKIP_CONFIRMATION"},
		},
		&cli.IntFlag{
			Name:    "max-broadcast-attempts",
			Usage:   "Broadcast attempts before giving up on transient failures",
			EnvVars: []string{"MAX_BROADCAST_ATTEMPTS"},
			Value:   transfer.DefaultMaxBroadcastAttempts,
		},
		&cli.DurationFlag{
			Name:    "broadcast-backoff",
			Usage:   "Delay before the first broadcast retry; doubles each attempt",
			EnvVars: []string{"BROADCAST_BACKOFF"},
			Value:   transfer.DefaultBaseBackoff,
		},
		&cli.DurationFlag{
			Name:    "broadcast-max-backoff",
			Usage:   "Upper bound on the broadcast retry delay",
			EnvVars: []string{"BROADCAST_MAX_BACKOFF"},
			Value:   transfer.DefaultMaxBackoff,
		},
		&cli.DurationFlag{
			Name:    "poll-interval",
			Usage:   "Delay between settlement queries",
			EnvVars: []string{"POLL_INTERVAL"},
			Value:   transfer.DefaultPollInterval,
		},
		&cli.DurationFlag{
			Name:    "max-wait",
			Usage:   "How long to wait for settlement before reporting unknown (0 skips confirmation)",
			EnvVars: []string{"CONFIRMATION_MAX_WAIT"},
			Value:   transfer.DefaultMaxWait,
		},
	}
}

// transferConfig assembles a transfer config from flags. The signing key is
// only read for local runs; submitted runs sign on the worker.
func transferConfig(c *cli.Context, withKey bool) transfer.Config {
	cfg := transfer.Config{
		Network:              c.String("network"),
		FromAddress:          c.String("from"),
		ToAddress:            c.String("to"),
		Amount:               c.Uint64("amount"),
		APIKey:               c.String("api-key"),
		DryRun:               c.Bool("dry-run"),
		BuildOnly:            c.Bool("build-only"),
		SkipConfirmation:     c.Bool("skip-confirmation"),
		MaxBroadcastAttempts: c.Int("max-broadcast-attempts"),
		BaseBackoff:          c.Duration("broadcast-backoff"),
		MaxBackoff:           c.Duration("broadcast-max-backoff"),
		PollInterval:         c.Duration("poll-interval"),
		MaxWait:              c.Duration("max-wait"),
	}
	if c.IsSet("broadcast") {
		cfg.DryRun = !c.Bool("broadcast")
	}
	// A zero wait in Config means the default, so an explicit --max-wait 0 skips instead.
	if c.IsSet("max-wait") && cfg.MaxWait == 0 {
		cfg.SkipConfirmation = true
	}
	if withKey {
		cfg.SigningKey = c.String("private-key")
		if cfg.FromAddress == "" && cfg.SigningKey != "" {
			if signer, err := tron.NewSigner(cfg.SigningKey); err == nil {
				cfg.FromAddress = signer.Address().String()
			}
		}
	}
	return cfg
}

// configView is the printable form of a transfer config.
type configView struct {
	Network              string `json:"network"`
	RPCEndpoint          string `json:"rpc_endpoint,omitempty"`
	FromAddress          string `json:"from_address"`
	ToAddress            string `json:"to_address"`
	Amount               uint64 `json:"amount"`
	SigningKey           string `json:"signing_key"`
	APIKey               string `json:"api_key"`
	DryRun               bool   `json:"dry_run"`
	BuildOnly            bool   `json:"build_only"`
	SkipConfirmation     bool   `json:"skip_confirmation"`
	MaxBroadcastAttempts int    `json:"max_broadcast_attempts"`
	BaseBackoff          string `json:"broadcast_backoff"`
	MaxBackoff           string `json:"broadcast_max_backoff"`
	PollInterval         string `json:"poll_interval"`
	MaxWait              string `json:"max_wait"`
}

func newConfigView(cfg transfer.Config, rpcURL string) configView {
	r := cfg.Redacted()
	view := configView{
		Network:              r.Network,
		FromAddress:          r.FromAddress,
		ToAddress:            r.ToAddress,
		Amount:               r.Amount,
		SigningKey:           r.SigningKey,
		APIKey:               r.APIKey,
		DryRun:               r.DryRun,
		BuildOnly:            r.BuildOnly,
		SkipConfirmation:     r.SkipConfirmation,
		MaxBroadcastAttempts: r.MaxBroadcastAttempts,
		BaseBackoff:          r.BaseBackoff.String(),
		MaxBackoff:           r.MaxBackoff.String(),
		PollInterval:         r.PollInterval.String(),
		MaxWait:              r.MaxWait.String(),
	}
	if profile, err := network.Resolve(r.Network); err == nil {
		view.RPCEndpoint = profile.RPCEndpoint
	}
	if rpcURL != "" {
		view.RPCEndpoint = rpcURL
	}
	return view
}

func printConfig(w io.Writer, v configView) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Network:\t%s\n", v.Network)
	fmt.Fprintf(tw, "Endpoint:\t%s\n", v.RPCEndpoint)
	fmt.Fprintf(tw, "From:\t%s\n", v.FromAddress)
	fmt.Fprintf(tw, "To:\t%s\n", v.ToAddress)
	fmt.Fprintf(tw, "Amount:\t%s (%d SUN)\n", formatTRX(v.Amount), v.Amount)
	fmt.Fprintf(tw, "Signing Key:\t%s\n", orNone(v.SigningKey))
	fmt.Fprintf(tw, "API Key:\t%s\n", orNone(v.APIKey))
	fmt.Fprintf(tw, "Dry Run:\t%v\n", v.DryRun)
	fmt.Fprintf(tw, "Build Only:\t%v\n", v.BuildOnly)
	fmt.Fprintf(tw, "Skip Confirmation:\t%v\n", v.SkipConfirmation)
	fmt.Fprintf(tw, "Broadcast Attempts:\t%d (backoff %s, max %s)\n", v.MaxBroadcastAttempts, v.BaseBackoff, v.MaxBackoff)
	fmt.Fprintf(tw, "Confirmation:\tpoll every %s, wait up to %s\n", v.PollInterval, v.MaxWait)
	tw.Flush()
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func transferCommand() *cli.Command {
	flags := append(transferFlags(),
		&cli.StringFlag{
			Name:    "private-key",
			Usage:   "Hex-encoded sender private key",
			EnvVars: []string{"TRON_PRIVATE_KEY"},
		},
		&cli.BoolFlag{
			Name:  "show-config",
			Usage: "Print the resolved configuration (secrets redacted) and exit",
		},
	)

	return &cli.Command{
		Name:  "transfer",
		Usage: "Run a TRX transfer locally",
		Description: `Checks balances, builds, signs and (with --broadcast) broadcasts a transfer,
then waits for settlement. Progress is written to stderr; the result to stdout.
The run is journaled when --database-url is set and its events published when
--nats-url is set.`,
		Flags: flags,
		Action: func(c *cli.Context) error {
			cfg := transferConfig(c, true)

			if c.Bool("show-config") {
				view := newConfigView(cfg, c.String("rpc-url"))
				if structured(c) {
					return outputStructured(c, view)
				}
				printConfig(c.App.Writer, view)
				return nil
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := newLogger(c)
			reporters := transfer.MultiReporter{transfer.LogReporter{Logger: logger}}
			if !structured(c) {
				reporters = append(reporters, progressReporter(c.App.ErrWriter))
			}

			var store *db.Store
			if c.String("database-url") != "" {
				s, closer, err := getStore(c)
				if err != nil {
					return err
				}
				defer closer()
				store = s
				reporters = append(reporters, store)
			}

			if natsURL := c.String("nats-url"); natsURL != "" {
				publisher, err := natspkg.NewPublisher(natsURL, nil, logger)
				if err != nil {
					return err
				}
				defer publisher.Close()
				reporters = append(reporters, natspkg.EventPublisher{Publisher: publisher})
			}

			orch := transfer.New(cfg, getDialer(c, logger),
				transfer.WithReporter(reporters),
				transfer.WithLogger(logger),
			)
			result, runErr := orch.Run(ctx)

			if store != nil && result != nil {
				if err := store.RecordResult(context.WithoutCancel(ctx), result); err != nil {
					logger.Warn("failed to journal transfer result", "run_id", result.RunID, "error", err)
				}
			}

			if result != nil {
				if structured(c) {
					if err := outputStructured(c, resultView(result)); err != nil {
						return err
					}
				} else {
					printResult(c.App.Writer, result)
				}
			}

			if runErr != nil {
				return fmt.Errorf("transfer aborted: %w", runErr)
			}
			return nil
		},
	}
}

// progressReporter prints one line per state change.
func progressReporter(w io.Writer) transfer.Reporter {
	return transfer.ReporterFunc(func(ctx context.Context, e transfer.Event) error {
		line := fmt.Sprintf("%s  %-22s", e.Timestamp.Format("15:04:05"), e.State)
		if e.ReferenceID != "" {
			line += " " + e.ReferenceID
		}
		if e.Message != "" {
			line += "  " + e.Message
		}
		_, err := fmt.Fprintln(w, line)
		return err
	})
}

// transferResultView adds advisories, which Result keeps as errors, to its JSON form.
type transferResultView struct {
	*transfer.Result
	Advisories []string `json:"advisories,omitempty"`
}

func resultView(r *transfer.Result) transferResultView {
	return transferResultView{Result: r, Advisories: r.AdvisoryMessages()}
}

func printResult(w io.Writer, r *transfer.Result) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Run ID:\t%s\n", r.RunID)
	fmt.Fprintf(tw, "Network:\t%s\n", r.Network)
	fmt.Fprintf(tw, "State:\t%s\n", r.State)
	if r.AbortedAt != "" {
		fmt.Fprintf(tw, "Aborted At:\t%s\n", r.AbortedAt)
	}
	fmt.Fprintf(tw, "From:\t%s\n", r.From)
	fmt.Fprintf(tw, "To:\t%s\n", r.To)
	fmt.Fprintf(tw, "Amount:\t%s\n", formatTRX(r.Amount))
	fmt.Fprintf(tw, "Dry Run:\t%v\n", r.DryRun)
	fmt.Fprintf(tw, "Sender Balance:\t%s\n", formatTRX(r.SenderBalance))
	if r.ReceiverBalance != nil {
		fmt.Fprintf(tw, "Receiver Balance:\t%s\n", formatTRX(*r.ReceiverBalance))
	}
	if r.ReferenceID != "" {
		fmt.Fprintf(tw, "Transaction:\t%s\n", r.ReferenceID)
	}
	fmt.Fprintf(tw, "Broadcasts:\t%d\n", r.BroadcastAttempts)
	fmt.Fprintf(tw, "Settlement:\t%s\n", r.Receipt.State)
	printReceiptDetails(tw, r.Receipt)
	for _, adv := range r.Advisories {
		fmt.Fprintf(tw, "Advisory:\t%s\n", adv)
	}
	if r.Error != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", r.Error)
	}
	fmt.Fprintf(tw, "Duration:\t%s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	tw.Flush()
}

func printReceiptDetails(w io.Writer, r tron.Receipt) {
	if r.BlockHeight != nil {
		fmt.Fprintf(w, "Block:\t%d\n", *r.BlockHeight)
	}
	if r.Resources != nil {
		fmt.Fprintf(w, "Energy Usage:\t%d\n", r.Resources.ComputeUnits)
		fmt.Fprintf(w, "Net Usage:\t%d\n", r.Resources.BandwidthUnits)
	}
	if r.Message != "" {
		fmt.Fprintf(w, "Message:\t%s\n", r.Message)
	}
}

// balanceView is the result of a balance query.
type balanceView struct {
	Network   string `json:"network"`
	Address   string `json:"address"`
	Balance   uint64 `json:"balance"`
	Activated bool   `json:"activated"`
}

func balanceCommand() *cli.Command {
	return &cli.Command{
		Name:      "balance",
		Usage:     "Show an account's TRX balance",
		ArgsUsage: "<address>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: address")
			}
			address := c.Args().First()
			if _, err := tron.ParseAddress(address); err != nil {
				return err
			}

			logger := newLogger(c)
			ledger, profile, err := openLedger(c.Context, c, logger)
			if err != nil {
				return err
			}

			view := balanceView{Network: profile.Name.String(), Address: address, Activated: true}
			account, err := ledger.GetAccount(c.Context, address)
			switch {
			case errors.Is(err, tron.ErrAccountNotFound):
				view.Activated = false
			case err != nil:
				return fmt.Errorf("failed to get account: %w", err)
			default:
				view.Balance = account.Balance
			}

			if structured(c) {
				return outputStructured(c, view)
			}

			fmt.Fprintf(c.App.Writer, "Network:   %s\n", view.Network)
			fmt.Fprintf(c.App.Writer, "Address:   %s\n", view.Address)
			fmt.Fprintf(c.App.Writer, "Balance:   %s (%d SUN)\n", formatTRX(view.Balance), view.Balance)
			if !view.Activated {
				fmt.Fprintf(c.App.Writer, "Activated: no (the account has never received funds)\n")
			}
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show the settlement status of a transaction",
		ArgsUsage: "<transaction-id>",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "wait",
				Usage: "Poll until the transaction settles or this long has passed",
			},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Usage: "Delay between settlement queries when --wait is set",
				Value: transfer.DefaultPollInterval,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction ID")
			}
			ref := c.Args().First()

			logger := newLogger(c)
			ledger, _, err := openLedger(c.Context, c, logger)
			if err != nil {
				return err
			}

			var receipt tron.Receipt
			if wait := c.Duration("wait"); wait > 0 {
				ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
				defer stop()
				poller := transfer.NewPoller(ledger, transfer.WithPollerLogger(logger))
				receipt = poller.Await(ctx, ref, wait, c.Duration("poll-interval"))
			} else {
				receipt, err = ledger.GetTransactionStatus(c.Context, ref)
				if err != nil {
					return fmt.Errorf("failed to get transaction status: %w", err)
				}
			}

			if structured(c) {
				return outputStructured(c, receipt)
			}

			tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "Transaction:\t%s\n", receipt.ReferenceID)
			fmt.Fprintf(tw, "Settlement:\t%s\n", receipt.State)
			printReceiptDetails(tw, receipt)
			return tw.Flush()
		},
	}
}

// networkView describes one supported network.
type networkView struct {
	Name           string `json:"name"`
	RPCEndpoint    string `json:"rpc_endpoint"`
	SolidityNode   string `json:"solidity_endpoint"`
	RequiresAPIKey bool   `json:"requires_api_key"`
}

func networksCommand() *cli.Command {
	return &cli.Command{
		Name:  "networks",
		Usage: "List supported networks and their endpoints",
		Action: func(c *cli.Context) error {
			var views []networkView
			for _, name := range network.Names() {
				p, err := network.Lookup(name)
				if err != nil {
					return err
				}
				views = append(views, networkView{
					Name:           p.Name.String(),
					RPCEndpoint:    p.RPCEndpoint,
					SolidityNode:   p.SolidityEndpoint(),
					RequiresAPIKey: p.RequiresAPIKey(),
				})
			}

			if structured(c) {
				return outputStructured(c, views)
			}

			tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NETWORK\tFULL NODE\tSOLIDITY NODE\tAPI KEY")
			for _, v := range views {
				key := "optional"
				if v.RequiresAPIKey {
					key = "required"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.Name, v.RPCEndpoint, v.SolidityNode, key)
			}
			return tw.Flush()
		},
	}
}
