package temporal

import (
	"errors"
	"testing"
	"time"

	"github.com/brojonat/tronsend/service/transfer"
	"github.com/brojonat/tronsend/service/tron"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
)

func completedOutput() *TransferOutput {
	height := uint64(4242)
	return &TransferOutput{
		Result: &transfer.Result{
			RunID:             "run-1",
			Network:           "nile",
			To:                testTo,
			Amount:            1_000_000,
			State:             transfer.StateCompleted,
			ReferenceID:       "abc123",
			Receipt:           tron.Receipt{ReferenceID: "abc123", State: tron.StateSuccess, BlockHeight: &height},
			BroadcastAttempts: 1,
		},
		Advisories: []string{"receiver account not activated"},
	}
}

func abortedOutput() *TransferOutput {
	return &TransferOutput{
		Result: &transfer.Result{
			RunID:     "run-2",
			Network:   "nile",
			State:     transfer.StateAborted,
			AbortedAt: transfer.StateInit,
			Error:     "insufficient funds: balance 10 < amount 1000000",
		},
		ErrorType: "InsufficientFunds",
	}
}

func TestTransferWorkflow(t *testing.T) {
	input := TransferInput{Network: "nile", ToAddress: testTo, Amount: 1_000_000}

	tests := []struct {
		name           string
		execute        func(*testsuite.MockCallWrapper)
		record         func(*testsuite.MockCallWrapper)
		expectedError  string
		validateResult func(*testing.T, *TransferOutput)
	}{
		{
			name:    "completed transfer is journaled",
			execute: func(m *testsuite.MockCallWrapper) { m.Return(completedOutput(), nil).Once() },
			record:  func(m *testsuite.MockCallWrapper) { m.Return(nil).Once() },
			validateResult: func(t *testing.T, out *TransferOutput) {
				assert.Equal(t, transfer.StateCompleted, out.Result.State)
				assert.Equal(t, "abc123", out.Result.ReferenceID)
				assert.Equal(t, []string{"receiver account not activated"}, out.Advisories)
				assert.Empty(t, out.JournalError)
			},
		},
		{
			name:    "journal failure does not fail the workflow",
			execute: func(m *testsuite.MockCallWrapper) { m.Return(completedOutput(), nil).Once() },
			record: func(m *testsuite.MockCallWrapper) {
				m.Return(temporalsdk.NewNonRetryableApplicationError("db down", "Journal", nil))
			},
			validateResult: func(t *testing.T, out *TransferOutput) {
				assert.Equal(t, transfer.StateCompleted, out.Result.State)
				assert.Contains(t, out.JournalError, "db down")
			},
		},
		{
			name:          "activity failure fails the workflow",
			execute:       func(m *testsuite.MockCallWrapper) { m.Return(nil, errors.New("worker lost")).Once() },
			expectedError: "worker lost",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testSuite := &testsuite.WorkflowTestSuite{}
			env := testSuite.NewTestWorkflowEnvironment()

			activities := &Activities{}
			env.RegisterActivity(activities)

			tt.execute(env.OnActivity(activities.ExecuteTransfer, mock.Anything, mock.Anything))
			if tt.record != nil {
				tt.record(env.OnActivity(activities.RecordTransfer, mock.Anything, mock.Anything))
			}

			env.ExecuteWorkflow(TransferWorkflow, input)
			require.True(t, env.IsWorkflowCompleted())

			if tt.expectedError != "" {
				err := env.GetWorkflowError()
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
				return
			}

			require.NoError(t, env.GetWorkflowError())
			var out TransferOutput
			require.NoError(t, env.GetWorkflowResult(&out))
			tt.validateResult(t, &out)
			env.AssertExpectations(t)
		})
	}
}

func TestTransferWorkflow_AbortedRunIsJournaledThenFails(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	activities := &Activities{}
	env.RegisterActivity(activities)

	env.OnActivity(activities.ExecuteTransfer, mock.Anything, mock.Anything).Return(abortedOutput(), nil).Once()
	var journaled *TransferOutput
	env.OnActivity(activities.RecordTransfer, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		journaled = args.Get(1).(*TransferOutput)
	}).Return(nil).Once()

	env.ExecuteWorkflow(TransferWorkflow, TransferInput{Network: "nile", ToAddress: testTo, Amount: 1_000_000})
	require.True(t, env.IsWorkflowCompleted())

	err := env.GetWorkflowError()
	require.Error(t, err)

	var appErr *temporalsdk.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "InsufficientFunds", appErr.Type())
	assert.True(t, appErr.NonRetryable())

	var details TransferOutput
	require.True(t, extractOutput(err, &details))
	assert.Equal(t, "run-2", details.Result.RunID)
	assert.Equal(t, transfer.StateInit, details.Result.AbortedAt)

	require.NotNil(t, journaled)
	assert.Equal(t, transfer.StateAborted, journaled.Result.State)
	env.AssertExpectations(t)
}

func TestTransferWorkflow_ActivityIsNotRetried(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	activities := &Activities{}
	env.RegisterActivity(activities)

	calls := 0
	env.OnActivity(activities.ExecuteTransfer, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		calls++
	}).Return(nil, errors.New("node timeout"))

	env.ExecuteWorkflow(TransferWorkflow, TransferInput{Network: "nile", ToAddress: testTo, Amount: 1})
	require.True(t, env.IsWorkflowCompleted())
	assert.Error(t, env.GetWorkflowError())
	assert.Equal(t, 1, calls)
}

func TestTransferTimeout(t *testing.T) {
	in := TransferInput{MaxBroadcastAttempts: 3, BaseBackoff: time.Second, MaxBackoff: 4 * time.Second, MaxWait: time.Minute}
	assert.Equal(t, 3*4*time.Second+time.Minute+transferSlack, transferTimeout(in))

	in.SkipConfirmation = true
	assert.Equal(t, 3*4*time.Second+transferSlack, transferTimeout(in))

	defaults := transfer.Config{}.WithDefaults()
	assert.Equal(t,
		time.Duration(defaults.MaxBroadcastAttempts)*defaults.MaxBackoff+defaults.MaxWait+transferSlack,
		transferTimeout(TransferInput{}),
	)
}
