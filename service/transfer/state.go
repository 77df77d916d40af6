package transfer

// State is a step of the transfer lifecycle.
type State string

const (
	StateInit                State = "init"
	StateBalanceChecked      State = "balance_checked"
	StateBuilt               State = "built"
	StateSigned              State = "signed"
	StateBroadcast           State = "broadcast"
	StateSkipped             State = "skipped" // broadcast not attempted (dry run)
	StateConfirmed           State = "confirmed"
	StateSkippedConfirmation State = "skipped_confirmation"
	StateCompleted           State = "completed"
	StateAborted             State = "aborted"
)

// transitions lists the forward edges of the lifecycle. Aborted is reachable
// from every non-terminal state and is handled separately.
var transitions = map[State][]State{
	StateInit:                {StateBalanceChecked},
	StateBalanceChecked:      {StateBuilt},
	StateBuilt:               {StateSigned, StateCompleted}, // Completed: build-only runs
	StateSigned:              {StateBroadcast, StateSkipped},
	StateSkipped:             {StateCompleted},
	StateBroadcast:           {StateConfirmed, StateSkippedConfirmation},
	StateConfirmed:           {StateCompleted},
	StateSkippedConfirmation: {StateCompleted},
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s State) CanTransition(next State) bool {
	if s.Terminal() {
		return false
	}
	if next == StateAborted {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
