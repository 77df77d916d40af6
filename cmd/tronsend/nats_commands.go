package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	natspkg "github.com/brojonat/tronsend/service/nats"
	"github.com/brojonat/tronsend/service/transfer"
	"github.com/urfave/cli/v2"
)

// errStopStream ends a subscription without reporting an error.
var errStopStream = errors.New("stop stream")

func eventsCommand() *cli.Command {
	return &cli.Command{
		Name:      "events",
		Usage:     "Stream transfer state changes from NATS",
		ArgsUsage: "[run-id]",
		Description: `Subscribe to transfer events published to NATS JetStream.

Events are published to the subject: transfers.{network}.{run_id}
With a run ID the stream ends once that run completes or aborts.

Example:
  tronsend events --all 5f0c2a1e-4d1b-4b8e-9c55-0d8f3f1c2b7a --json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "only",
				Usage: "Only stream events on this network",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Replay retained events before streaming new ones",
			},
			&cli.StringFlag{
				Name:  "durable",
				Usage: "Durable consumer name (survives restarts)",
			},
			&cli.IntFlag{
				Name:  "count",
				Usage: "Stop after this many events (0 streams until interrupted)",
			},
		},
		Action: func(c *cli.Context) error {
			natsURL := c.String("nats-url")
			if natsURL == "" {
				return fmt.Errorf("nats-url is required (set NATS_URL env var or use --nats-url)")
			}
			if c.NArg() > 1 {
				return fmt.Errorf("accepts at most one argument: run ID")
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := natspkg.SubscribeOptions{
				Network:    c.String("only"),
				RunID:      c.Args().First(),
				Durable:    c.String("durable"),
				DeliverAll: c.Bool("all"),
			}

			if !structured(c) {
				fmt.Fprintf(c.App.ErrWriter, "Listening on %s\n", natspkg.FilterSubject(opts.Network, opts.RunID))
			}

			seen := 0
			handler := eventPrinter(c, opts.RunID, c.Int("count"), &seen)
			err := natspkg.Subscribe(ctx, natsURL, opts, newLogger(c), handler)
			if errors.Is(err, errStopStream) || errors.Is(err, context.Canceled) {
				err = nil
			}
			if !structured(c) {
				fmt.Fprintf(c.App.ErrWriter, "\nReceived %d events\n", seen)
			}
			return err
		},
	}
}

// eventPrinter writes each event and decides when the stream is done.
func eventPrinter(c *cli.Context, runID string, limit int, seen *int) func(*natspkg.TransferEvent) error {
	return func(e *natspkg.TransferEvent) error {
		*seen++
		if structured(c) {
			if err := outputStructured(c, e); err != nil {
				return err
			}
		} else {
			line := fmt.Sprintf("%s  %-8s %s  %-22s",
				e.Timestamp.Format("15:04:05"), e.Network, e.RunID, e.State)
			if e.ReferenceID != "" {
				line += " " + e.ReferenceID
			}
			if e.Message != "" {
				line += "  " + e.Message
			}
			fmt.Fprintln(c.App.Writer, line)
		}

		if limit > 0 && *seen >= limit {
			return errStopStream
		}
		if runID != "" && transfer.State(e.State).Terminal() {
			return errStopStream
		}
		return nil
	}
}
