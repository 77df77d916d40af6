package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/brojonat/tronsend/service/db"
	"github.com/urfave/cli/v2"
)

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:    "history",
		Usage:   "List journaled transfer runs, newest first",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "only",
				Usage: "Only show runs on this network",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Limit number of runs",
				Value: 50,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Skip this many runs",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			transfers, err := store.ListTransfers(c.Context, db.ListTransfersParams{
				Network: c.String("only"),
				Limit:   int32(c.Int("limit")),
				Offset:  int32(c.Int("offset")),
			})
			if err != nil {
				return fmt.Errorf("failed to list transfers: %w", err)
			}

			if structured(c) {
				return outputStructured(c, transfers)
			}

			// Pretty table output
			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tNETWORK\tSTATE\tAMOUNT\tDRY RUN\tTRANSACTION\tSTARTED")
			for _, t := range transfers {
				amount := "-"
				if t.Amount != nil {
					amount = formatTRX(uint64(*t.Amount))
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\t%s\t%s\n",
					t.RunID,
					t.Network,
					t.State,
					amount,
					t.DryRun,
					formatOptional(t.ReferenceID),
					t.StartedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d runs\n", len(transfers))
			return nil
		},
	}
}

// transferDetail is a journaled run together with its transitions.
type transferDetail struct {
	*db.Transfer
	Events []*db.TransferEvent `json:"events"`
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show a journaled run and its state transitions",
		ArgsUsage: "<run-id | transaction-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: run ID or transaction ID")
			}
			id := c.Args().First()

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			t, err := store.GetTransfer(c.Context, id)
			if errors.Is(err, db.ErrNotFound) {
				t, err = store.GetTransferByReference(c.Context, id)
			}
			if err != nil {
				return fmt.Errorf("failed to get transfer %q: %w", id, err)
			}

			events, err := store.ListEvents(c.Context, t.RunID)
			if err != nil {
				return fmt.Errorf("failed to list events: %w", err)
			}

			if structured(c) {
				return outputStructured(c, transferDetail{Transfer: t, Events: events})
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Run ID:\t%s\n", t.RunID)
			fmt.Fprintf(w, "Network:\t%s\n", t.Network)
			fmt.Fprintf(w, "State:\t%s\n", t.State)
			if t.AbortedAt != nil {
				fmt.Fprintf(w, "Aborted At:\t%s\n", *t.AbortedAt)
			}
			fmt.Fprintf(w, "From:\t%s\n", formatOptional(t.FromAddress))
			fmt.Fprintf(w, "To:\t%s\n", formatOptional(t.ToAddress))
			if t.Amount != nil {
				fmt.Fprintf(w, "Amount:\t%s\n", formatTRX(uint64(*t.Amount)))
			}
			fmt.Fprintf(w, "Dry Run:\t%v\n", t.DryRun)
			fmt.Fprintf(w, "Transaction:\t%s\n", formatOptional(t.ReferenceID))
			fmt.Fprintf(w, "Broadcasts:\t%d\n", t.BroadcastAttempts)
			fmt.Fprintf(w, "Settlement:\t%s\n", formatOptional(t.Settlement))
			printReceiptDetails(w, t.Receipt())
			for _, adv := range t.Advisories {
				fmt.Fprintf(w, "Advisory:\t%s\n", adv)
			}
			if t.Error != nil {
				fmt.Fprintf(w, "Error:\t%s\n", *t.Error)
			}
			fmt.Fprintf(w, "Started:\t%s\n", t.StartedAt.Format(time.RFC3339))
			if t.FinishedAt != nil {
				fmt.Fprintf(w, "Finished:\t%s\n", t.FinishedAt.Format(time.RFC3339))
			}

			fmt.Fprintf(w, "\nEVENTS\n")
			for _, e := range events {
				fmt.Fprintf(w, "%s\t%s\t%s\n",
					e.OccurredAt.Format(time.RFC3339),
					e.State,
					formatOptional(e.Message),
				)
			}
			return w.Flush()
		},
	}
}
