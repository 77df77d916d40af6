package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_Transitions(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateInit, StateBalanceChecked, true},
		{StateBalanceChecked, StateBuilt, true},
		{StateBuilt, StateSigned, true},
		{StateBuilt, StateCompleted, true},
		{StateSigned, StateBroadcast, true},
		{StateSigned, StateSkipped, true},
		{StateSkipped, StateCompleted, true},
		{StateBroadcast, StateConfirmed, true},
		{StateBroadcast, StateSkippedConfirmation, true},
		{StateConfirmed, StateCompleted, true},
		{StateSkippedConfirmation, StateCompleted, true},

		{StateInit, StateBuilt, false},
		{StateBuilt, StateBalanceChecked, false},
		{StateSigned, StateSigned, false},
		{StateSkipped, StateBroadcast, false},
		{StateSigned, StateConfirmed, false},
		{StateCompleted, StateInit, false},
		{StateCompleted, StateAborted, false},
		{StateAborted, StateInit, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestState_AbortFromAnyNonTerminal(t *testing.T) {
	for from := range transitions {
		assert.True(t, from.CanTransition(StateAborted), "abort from %s", from)
	}
}

func TestState_Terminal(t *testing.T) {
	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateAborted.Terminal())
	assert.False(t, StateBroadcast.Terminal())
	assert.False(t, StateInit.Terminal())
}
