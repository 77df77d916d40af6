package tron

import (
	"context"
	"encoding/json"
)

// RPCClient is the narrow set of Tron node operations this service needs.
// This allows us to mock the RPC layer in tests without hitting real Tron nodes.
type RPCClient interface {
	GetNowBlock(ctx context.Context) (uint64, error)
	GetAccount(ctx context.Context, address string) (*AccountReply, error)
	CreateTransaction(ctx context.Context, contract TransferContract) (*TransactionReply, error)
	BroadcastTransaction(ctx context.Context, signed json.RawMessage) (*BroadcastReply, error)
	GetTransactionInfoByID(ctx context.Context, txID string) (*TransactionInfoReply, error)
}

// TransferContract is the body of a TRX transfer request.
type TransferContract struct {
	OwnerAddress string `json:"owner_address"`
	ToAddress    string `json:"to_address"`
	Amount       uint64 `json:"amount"`
	Visible      bool   `json:"visible"`
}

// AccountReply is the node's view of an account. Exists is false when the node
// returned an empty object, which is how it answers for never-funded addresses.
type AccountReply struct {
	Exists  bool
	Address string
	Balance uint64
}

// TransactionReply is the reply to a create-transaction request.
type TransactionReply struct {
	Result     bool
	Code       string
	Message    string
	TxID       string
	RawDataHex string
	Raw        json.RawMessage // the full transaction object as returned by the node
}

// BroadcastReply is the reply to a broadcast request.
type BroadcastReply struct {
	Result  bool
	TxID    string
	Code    string
	Message string
}

// TransactionInfoReply is the solidity node's record of an executed transaction.
// Found is false while the transaction is not yet in a solidified block.
type TransactionInfoReply struct {
	Found         bool
	ID            string
	BlockNumber   uint64
	Result        string // "FAILED" on failure, empty otherwise
	ReceiptResult string // execution result for contract calls, e.g. "SUCCESS", "REVERT"
	ResMessage    string
	EnergyUsage   uint64
	NetUsage      uint64
}

// Failed reports whether the transaction executed unsuccessfully.
func (r *TransactionInfoReply) Failed() bool {
	if r.Result == "FAILED" {
		return true
	}
	switch r.ReceiptResult {
	case "", "SUCCESS", "DEFAULT":
		return false
	default:
		return true
	}
}
