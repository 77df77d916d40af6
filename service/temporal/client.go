package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	temporalsdk "go.temporal.io/sdk/temporal"
)

// Client submits transfers to the Temporal worker.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// StartTransfer starts a TransferWorkflow and returns its workflow ID.
// The request ID makes submission idempotent: a request ID that already ran
// is rejected instead of sending funds twice. An empty request ID gets a fresh one.
func (c *Client) StartTransfer(ctx context.Context, requestID string, input TransferInput) (string, error) {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	id := workflowID(requestID)

	c.logger.Debug("starting transfer workflow",
		"workflow_id", id,
		"network", input.Network,
		"to", input.ToAddress,
		"amount", input.Amount,
		"dry_run", input.DryRun,
	)

	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                    id,
		TaskQueue:             c.taskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
		Memo: map[string]interface{}{
			"network":    input.Network,
			"to_address": input.ToAddress,
			"amount":     input.Amount,
			"dry_run":    input.DryRun,
			"created_by": "tronsend",
		},
	}, TransferWorkflow, input)
	if err != nil {
		c.logger.Error("failed to start transfer workflow",
			"workflow_id", id,
			"error", err,
		)
		return "", fmt.Errorf("failed to start transfer workflow %q: %w", id, err)
	}

	c.logger.Info("transfer workflow started",
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
	)
	return run.GetID(), nil
}

// AwaitTransfer blocks until the workflow finishes and returns its output.
// For aborted runs the output is returned together with the workflow error.
func (c *Client) AwaitTransfer(ctx context.Context, workflowID string) (*TransferOutput, error) {
	var out TransferOutput
	err := c.client.GetWorkflow(ctx, workflowID, "").Get(ctx, &out)
	if err != nil {
		var details TransferOutput
		if extractOutput(err, &details) {
			return &details, err
		}
		return nil, fmt.Errorf("transfer workflow %q failed: %w", workflowID, err)
	}
	return &out, nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// extractOutput pulls the TransferOutput attached to an aborted run's application error.
func extractOutput(err error, out *TransferOutput) bool {
	var appErr *temporalsdk.ApplicationError
	if !errors.As(err, &appErr) || !appErr.HasDetails() {
		return false
	}
	return appErr.Details(out) == nil
}

// workflowID generates the workflow ID for a transfer request.
func workflowID(requestID string) string {
	return "transfer-" + requestID
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
