package tron

import (
	"encoding/json"
	"sync/atomic"
)

// Account is a read-only snapshot of an account's state.
// It is fetched fresh on every query and never cached.
type Account struct {
	Address string
	Balance uint64 // in SUN
}

// UnsignedTransaction is a transfer built by the remote node and not yet signed.
// Exactly one signing pass is valid per instance.
type UnsignedTransaction struct {
	From        string
	To          string
	Amount      uint64
	ReferenceID string // txID assigned by the remote
	Success     bool
	Message     string // remote failure message when Success is false

	rawDataHex string
	raw        json.RawMessage
	signed     atomic.Bool
}

// SignedTransaction is the opaque signed payload ready for broadcast.
// It must be passed to Broadcast unmodified.
type SignedTransaction struct {
	referenceID string
	payload     json.RawMessage
}

// ReferenceID returns the txID of the signed transaction.
func (s *SignedTransaction) ReferenceID() string {
	return s.referenceID
}

// Payload returns a copy of the signed JSON payload.
func (s *SignedTransaction) Payload() json.RawMessage {
	out := make(json.RawMessage, len(s.payload))
	copy(out, s.payload)
	return out
}

// SettlementState is the on-chain status of a broadcast transaction.
type SettlementState string

const (
	StatePending SettlementState = "pending"
	StateSuccess SettlementState = "success"
	StateFailed  SettlementState = "failed"
	StateUnknown SettlementState = "unknown"
)

// ResourceUsage reports what the transaction consumed.
type ResourceUsage struct {
	ComputeUnits   uint64 `json:"compute_units"`   // energy
	BandwidthUnits uint64 `json:"bandwidth_units"` // net usage (bytes)
}

// Receipt is the settlement result for a transaction.
type Receipt struct {
	ReferenceID string          `json:"reference_id"`
	State       SettlementState `json:"state"`
	BlockHeight *uint64         `json:"block_height,omitempty"`
	Resources   *ResourceUsage  `json:"resources,omitempty"`
	Message     string          `json:"message,omitempty"`
}

// UnknownReceipt is the sentinel receipt for transactions whose outcome was not observed.
func UnknownReceipt(referenceID string) Receipt {
	return Receipt{ReferenceID: referenceID, State: StateUnknown}
}
