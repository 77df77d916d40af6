package tron

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

var (
	// ErrConnection means the node could not be reached.
	ErrConnection = errors.New("connection error")

	// ErrAccountNotFound means the address has never been activated on the ledger.
	ErrAccountNotFound = errors.New("account not found")

	// ErrTransactionRejected means the node refused to build the transaction.
	ErrTransactionRejected = errors.New("transaction rejected")

	// ErrNoSigningKey means a signature was requested from a read-only session.
	ErrNoSigningKey = errors.New("no signing key")

	// ErrSigning means the key could not sign the transaction it was given.
	ErrSigning = errors.New("signing error")

	// ErrBroadcast means the node did not accept the signed transaction.
	ErrBroadcast = errors.New("broadcast error")

	// ErrRPC is any other failed remote call.
	ErrRPC = errors.New("rpc error")

	// ErrInvalidAddress means a string is not a base58check Tron address.
	ErrInvalidAddress = errors.New("invalid address")
)

// RemoteError describes a failed ledger operation. Kind is one of the sentinel
// errors above; Code and Message are copied verbatim from the remote when it
// answered, and Err carries the underlying transport error when it did not.
type RemoteError struct {
	Op        string
	Kind      error
	Code      string
	Message   string
	Transient bool
	Err       error
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the sentinel kind and the underlying cause to errors.Is/As.
func (e *RemoteError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsTransient reports whether err is a failure worth retrying: a transport
// problem or a remote busy signal, as opposed to a remote rejection.
func IsTransient(err error) bool {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Transient
	}
	return false
}

// RemoteMessage returns the remote-supplied message carried by err, if any.
func RemoteMessage(err error) string {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Message
	}
	return ""
}

// HTTPStatusError is returned by the HTTP adapter for non-2xx replies.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d: %s", e.StatusCode, e.Body)
}

// transportTransient classifies errors coming out of the RPC layer.
// Cancellation of the caller's own context is never transient: retrying
// after the caller gave up is pointless.
func transportTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == 429 || statusErr.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF)
}

// transientBroadcastCodes are broadcast return codes meaning the node could not
// take the transaction right now; the same signed payload may be resubmitted.
var transientBroadcastCodes = map[string]bool{
	"SERVER_BUSY":                     true,
	"NOT_ENOUGH_EFFECTIVE_CONNECTION": true,
	"NO_CONNECTION":                   true,
	"BLOCK_UNSOLIDIFIED":              true,
}

// CodeDuplicateTransaction is returned when the node already holds the transaction.
const CodeDuplicateTransaction = "DUP_TRANSACTION_ERROR"
