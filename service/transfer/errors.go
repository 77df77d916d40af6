package transfer

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigurationIncomplete is returned before any network call when required settings are missing.
	ErrConfigurationIncomplete = errors.New("configuration incomplete")

	// ErrInsufficientFunds aborts a run whose amount exceeds the sender's balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrConfirmationTimeout is a soft outcome: settlement was not observed within the wait budget.
	// It is reported as an advisory, never returned as a run error.
	ErrConfirmationTimeout = errors.New("confirmation timeout")

	// ErrInvalidTransition signals a programming error in the lifecycle.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// insufficientFunds builds the error for an underfunded sender.
func insufficientFunds(address string, balance, amount uint64) error {
	return fmt.Errorf("%w: %s has %d SUN, transfer needs %d SUN", ErrInsufficientFunds, address, balance, amount)
}
