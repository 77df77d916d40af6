package tron

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/tronsend/service/metrics"
	"github.com/brojonat/tronsend/service/network"
)

// Client is an authenticated session against one Tron network.
// Every operation performs at most one remote call and never retries;
// retry policy belongs to the caller.
//
// A Client is not meant to be shared by overlapping transfer runs.
// Signing is additionally serialized on the Signer.
type Client struct {
	rpc     RPCClient
	profile network.Profile
	signer  *Signer
	logger  *slog.Logger
	metrics *metrics.Metrics
	network string // network label for logs and metrics
}

// Connect opens a session and verifies the node is reachable.
// signer may be nil for read-only sessions; Sign then fails with ErrNoSigningKey.
// If metrics is nil, no metrics will be recorded.
func Connect(
	ctx context.Context,
	rpc RPCClient,
	profile network.Profile,
	signer *Signer,
	m *metrics.Metrics,
	logger *slog.Logger,
) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		rpc:     rpc,
		profile: profile,
		signer:  signer,
		logger:  logger.With("network", profile.Name.String()),
		metrics: m,
		network: profile.Name.String(),
	}

	start := time.Now()
	height, err := rpc.GetNowBlock(ctx)
	c.observe(ctx, "GetNowBlock", start, err)
	if err != nil {
		return nil, &RemoteError{
			Op:        "connect",
			Kind:      ErrConnection,
			Message:   profile.RPCEndpoint,
			Transient: transportTransient(err),
			Err:       err,
		}
	}

	c.logger.InfoContext(ctx, "connected to tron node",
		"endpoint", profile.RPCEndpoint,
		"block_height", height,
		"read_only", signer == nil,
	)
	return c, nil
}

// Profile returns the network profile this session is bound to.
func (c *Client) Profile() network.Profile {
	return c.profile
}

// GetAccount fetches the current balance of an address.
// Addresses that never received funds yield ErrAccountNotFound.
func (c *Client) GetAccount(ctx context.Context, address string) (*Account, error) {
	start := time.Now()
	reply, err := c.rpc.GetAccount(ctx, address)
	c.observe(ctx, "GetAccount", start, err)
	if err != nil {
		return nil, &RemoteError{Op: "get account", Kind: ErrRPC, Transient: transportTransient(err), Err: err}
	}
	if !reply.Exists {
		return nil, &RemoteError{Op: "get account", Kind: ErrAccountNotFound, Message: address}
	}

	c.logger.DebugContext(ctx, "fetched account",
		"address", address,
		"balance", reply.Balance,
	)
	return &Account{Address: address, Balance: reply.Balance}, nil
}

// BuildTransfer asks the node to construct an unsigned TRX transfer.
// When the node refuses, the returned transaction has Success=false and the error
// wraps ErrTransactionRejected with the node's message.
func (c *Client) BuildTransfer(ctx context.Context, from, to string, amount uint64) (*UnsignedTransaction, error) {
	start := time.Now()
	reply, err := c.rpc.CreateTransaction(ctx, TransferContract{
		OwnerAddress: from,
		ToAddress:    to,
		Amount:       amount,
	})
	c.observe(ctx, "CreateTransaction", start, err)
	if err != nil {
		return nil, &RemoteError{Op: "build transfer", Kind: ErrRPC, Transient: transportTransient(err), Err: err}
	}

	tx := &UnsignedTransaction{
		From:        from,
		To:          to,
		Amount:      amount,
		ReferenceID: reply.TxID,
		Success:     reply.Result,
		Message:     reply.Message,
		rawDataHex:  reply.RawDataHex,
		raw:         reply.Raw,
	}
	if !reply.Result {
		c.logger.WarnContext(ctx, "node rejected transfer",
			"from", from,
			"to", to,
			"amount", amount,
			"code", reply.Code,
			"message", reply.Message,
		)
		return tx, &RemoteError{
			Op:      "build transfer",
			Kind:    ErrTransactionRejected,
			Code:    reply.Code,
			Message: reply.Message,
		}
	}

	c.logger.DebugContext(ctx, "built transfer",
		"reference_id", tx.ReferenceID,
		"amount", amount,
	)
	return tx, nil
}

// Sign signs tx with the session key. The transaction's txID must equal
// sha256(raw_data) and the key must control the owner address.
// A transaction can be signed only once.
func (c *Client) Sign(ctx context.Context, tx *UnsignedTransaction) (*SignedTransaction, error) {
	if c.signer == nil {
		return nil, ErrNoSigningKey
	}
	if tx == nil || !tx.Success {
		return nil, fmt.Errorf("%w: transaction was not built successfully", ErrSigning)
	}

	owner, err := ParseAddress(tx.From)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}
	if owner != c.signer.Address() {
		return nil, fmt.Errorf("%w: key controls %s, not owner %s", ErrSigning, c.signer.Address(), tx.From)
	}

	rawData, err := hex.DecodeString(tx.rawDataHex)
	if err != nil || len(rawData) == 0 {
		return nil, fmt.Errorf("%w: invalid raw_data_hex", ErrSigning)
	}
	digest := sha256.Sum256(rawData)
	if hex.EncodeToString(digest[:]) != tx.ReferenceID {
		return nil, fmt.Errorf("%w: txID %s does not match raw data", ErrSigning, tx.ReferenceID)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(tx.raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: malformed transaction: %v", ErrSigning, err)
	}

	if !tx.signed.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: transaction %s already signed", ErrSigning, tx.ReferenceID)
	}

	sig, err := c.signer.SignDigest(digest[:])
	if err != nil {
		return nil, err
	}

	sigField, err := json.Marshal([]string{hex.EncodeToString(sig)})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}
	fields["signature"] = sigField
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}

	c.logger.DebugContext(ctx, "signed transaction", "reference_id", tx.ReferenceID)
	return &SignedTransaction{referenceID: tx.ReferenceID, payload: payload}, nil
}

// Broadcast submits a signed transaction and returns its reference ID.
// Failures wrap ErrBroadcast; IsTransient tells whether resubmitting may help.
func (c *Client) Broadcast(ctx context.Context, signed *SignedTransaction) (string, error) {
	start := time.Now()
	reply, err := c.rpc.BroadcastTransaction(ctx, signed.payload)
	c.observe(ctx, "BroadcastTransaction", start, err)
	if err != nil {
		return "", &RemoteError{
			Op:        "broadcast",
			Kind:      ErrBroadcast,
			Transient: transportTransient(err),
			Err:       err,
		}
	}
	if !reply.Result {
		return "", &RemoteError{
			Op:        "broadcast",
			Kind:      ErrBroadcast,
			Code:      reply.Code,
			Message:   reply.Message,
			Transient: transientBroadcastCodes[reply.Code],
		}
	}

	ref := reply.TxID
	if ref == "" {
		ref = signed.referenceID
	}
	c.logger.InfoContext(ctx, "broadcast transaction", "reference_id", ref)
	return ref, nil
}

// GetTransactionStatus queries the solidity node for the settlement state.
func (c *Client) GetTransactionStatus(ctx context.Context, referenceID string) (Receipt, error) {
	start := time.Now()
	info, err := c.rpc.GetTransactionInfoByID(ctx, referenceID)
	c.observe(ctx, "GetTransactionInfoByID", start, err)
	if err != nil {
		return Receipt{}, &RemoteError{Op: "get transaction status", Kind: ErrRPC, Transient: transportTransient(err), Err: err}
	}
	return receiptFromInfo(referenceID, info), nil
}

func receiptFromInfo(referenceID string, info *TransactionInfoReply) Receipt {
	if !info.Found {
		return Receipt{ReferenceID: referenceID, State: StatePending}
	}

	height := info.BlockNumber
	receipt := Receipt{
		ReferenceID: referenceID,
		State:       StateSuccess,
		BlockHeight: &height,
		Resources: &ResourceUsage{
			ComputeUnits:   info.EnergyUsage,
			BandwidthUnits: info.NetUsage,
		},
	}
	if info.Failed() {
		receipt.State = StateFailed
		receipt.Message = info.ResMessage
		if receipt.Message == "" {
			receipt.Message = info.ReceiptResult
		}
	}
	return receipt
}

// observe records metrics and debug logs for one RPC call.
func (c *Client) observe(ctx context.Context, method string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
		if errors.Is(err, context.Canceled) {
			status = "canceled"
		}
		c.logger.WarnContext(ctx, "tron rpc call failed",
			"method", method,
			"error", err,
		)
	}
	c.metrics.RecordRPCCall(method, status, c.network, duration)
}
