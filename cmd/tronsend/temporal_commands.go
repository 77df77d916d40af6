package main

import (
	"fmt"

	"github.com/brojonat/tronsend/service/temporal"
	"github.com/urfave/cli/v2"
)

// submitView is printed after a workflow is started.
type submitView struct {
	WorkflowID string                 `json:"workflow_id"`
	Input      temporal.TransferInput `json:"input"`
}

func submitCommand() *cli.Command {
	flags := append(transferFlags(),
		&cli.StringFlag{
			Name:  "request-id",
			Usage: "Idempotency key; a request ID that already ran is rejected (default: random)",
		},
		&cli.BoolFlag{
			Name:    "wait",
			Aliases: []string{"w"},
			Usage:   "Wait for the workflow to finish and print the result",
		},
	)

	return &cli.Command{
		Name:  "submit",
		Usage: "Run a TRX transfer on the Temporal worker",
		Description: `Starts a TransferWorkflow. The worker signs with its own key, so no private
key is sent. Use --from to pick a sender the worker's key controls.`,
		Flags: flags,
		Action: func(c *cli.Context) error {
			logger := newLogger(c)
			input := temporal.InputFromConfig(transferConfig(c, false))

			client, err := getTemporalClient(c, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			workflowID, err := client.StartTransfer(c.Context, c.String("request-id"), input)
			if err != nil {
				return err
			}

			if !c.Bool("wait") {
				if structured(c) {
					return outputStructured(c, submitView{WorkflowID: workflowID, Input: input})
				}
				fmt.Fprintf(c.App.Writer, "Started workflow %s\n", workflowID)
				fmt.Fprintf(c.App.Writer, "Follow it with: tronsend await %s\n", workflowID)
				return nil
			}

			return awaitAndPrint(c, client, workflowID)
		},
	}
}

func awaitCommand() *cli.Command {
	return &cli.Command{
		Name:      "await",
		Usage:     "Wait for a submitted transfer and print its result",
		ArgsUsage: "<workflow-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: workflow ID")
			}

			client, err := getTemporalClient(c, newLogger(c))
			if err != nil {
				return err
			}
			defer client.Close()

			return awaitAndPrint(c, client, c.Args().First())
		},
	}
}

func awaitAndPrint(c *cli.Context, client *temporal.Client, workflowID string) error {
	out, err := client.AwaitTransfer(c.Context, workflowID)
	if out != nil && out.Result != nil {
		if structured(c) {
			if perr := outputStructured(c, out); perr != nil {
				return perr
			}
		} else {
			printResult(c.App.Writer, out.Result)
			for _, adv := range out.Advisories {
				fmt.Fprintf(c.App.Writer, "Advisory:  %s\n", adv)
			}
			if out.JournalError != "" {
				fmt.Fprintf(c.App.Writer, "Journal:   %s\n", out.JournalError)
			}
		}
	}
	if err != nil {
		return fmt.Errorf("transfer %s did not complete: %w", workflowID, err)
	}
	return nil
}
