package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// transferSlack covers dialing, balance checks, build and sign on top of the
// broadcast and confirmation budget.
const transferSlack = 2 * time.Minute

// TransferWorkflow runs a single transfer and journals its result.
//
// The workflow performs these steps:
// 1. Run the transfer state machine (ExecuteTransfer activity, never retried)
// 2. Journal the final result (RecordTransfer activity, retried)
// 3. Fail with a non-retryable application error if the run aborted
//
// A journal failure does not fail the workflow; the on-chain outcome is what counts.
func TransferWorkflow(ctx workflow.Context, input TransferInput) (*TransferOutput, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("TransferWorkflow started",
		"network", input.Network,
		"to", input.ToAddress,
		"amount", input.Amount,
		"dry_run", input.DryRun,
	)

	execCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: transferTimeout(input),
		RetryPolicy: &temporalsdk.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	var out *TransferOutput
	if err := workflow.ExecuteActivity(execCtx, a.ExecuteTransfer, input).Get(ctx, &out); err != nil {
		logger.Error("transfer activity failed", "error", err)
		return nil, fmt.Errorf("transfer activity failed: %w", err)
	}

	recordCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	})
	if err := workflow.ExecuteActivity(recordCtx, a.RecordTransfer, out).Get(ctx, nil); err != nil {
		logger.Warn("failed to journal transfer result", "run_id", out.Result.RunID, "error", err)
		out.JournalError = err.Error()
	}

	if out.Aborted() {
		logger.Warn("transfer aborted",
			"run_id", out.Result.RunID,
			"aborted_at", out.Result.AbortedAt,
			"error_type", out.ErrorType,
		)
		return out, temporalsdk.NewNonRetryableApplicationError(out.Result.Error, out.ErrorType, nil, out)
	}

	logger.Info("TransferWorkflow completed",
		"run_id", out.Result.RunID,
		"reference_id", out.Result.ReferenceID,
		"settlement", out.Result.Receipt.State,
	)
	return out, nil
}

// transferTimeout bounds one run: every broadcast attempt waiting the full
// backoff cap, then the whole confirmation window.
func transferTimeout(input TransferInput) time.Duration {
	cfg := input.config()
	budget := time.Duration(cfg.MaxBroadcastAttempts) * cfg.MaxBackoff
	if !cfg.SkipConfirmation {
		budget += cfg.MaxWait
	}
	return budget + transferSlack
}
