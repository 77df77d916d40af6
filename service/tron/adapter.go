package tron

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/brojonat/tronsend/service/metrics"
	"github.com/brojonat/tronsend/service/network"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// APIKeyHeader is the header TronGrid reads the API key from.
const APIKeyHeader = "TRON-PRO-API-KEY"

// maxErrorBody caps how much of a non-2xx body is kept in errors.
const maxErrorBody = 512

// HTTPClientOptions configures the HTTP adapter.
type HTTPClientOptions struct {
	HTTPClient *http.Client     // optional; defaults to a 30s-timeout client with metered transport
	RateLimit  float64          // requests per second, 0 disables limiting
	Metrics    *metrics.Metrics // optional
}

// httpRPCClient adapts the java-tron HTTP API to our RPCClient interface.
// Full node calls go to profile.RPCEndpoint, confirmed-state queries to the solidity endpoint.
type httpRPCClient struct {
	fullNode string
	solidity string
	apiKey   string
	network  string
	http     *http.Client
	limiter  *rate.Limiter
	metrics  *metrics.Metrics
}

// NewHTTPClient creates an RPCClient for the given network profile.
// TronGrid rate limits unauthenticated traffic aggressively; set RateLimit
// to stay under the quota instead of collecting 429s.
func NewHTTPClient(profile network.Profile, opts HTTPClientOptions) RPCClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   30 * time.Second,
			Transport: metrics.HTTPMetricsTransport(opts.Metrics, nil),
		}
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	return &httpRPCClient{
		fullNode: strings.TrimRight(profile.RPCEndpoint, "/"),
		solidity: strings.TrimRight(profile.SolidityEndpoint(), "/"),
		apiKey:   profile.APIKey,
		network:  profile.Name.String(),
		http:     httpClient,
		limiter:  limiter,
		metrics:  opts.Metrics,
	}
}

func (h *httpRPCClient) GetNowBlock(ctx context.Context) (uint64, error) {
	res, err := h.post(ctx, h.fullNode, "/wallet/getnowblock", struct{}{})
	if err != nil {
		return 0, err
	}
	number := res.Get("block_header.raw_data.number")
	if !number.Exists() {
		return 0, fmt.Errorf("getnowblock: missing block number in response")
	}
	return number.Uint(), nil
}

func (h *httpRPCClient) GetAccount(ctx context.Context, address string) (*AccountReply, error) {
	body := map[string]interface{}{
		"address": address,
		"visible": true,
	}
	res, err := h.post(ctx, h.fullNode, "/wallet/getaccount", body)
	if err != nil {
		return nil, err
	}
	if errMsg := res.Get("Error"); errMsg.Exists() {
		return nil, fmt.Errorf("getaccount: %s", errMsg.String())
	}

	// The node answers {} for addresses that were never activated.
	if !res.Get("address").Exists() {
		return &AccountReply{Exists: false, Address: address}, nil
	}
	return &AccountReply{
		Exists:  true,
		Address: res.Get("address").String(),
		Balance: res.Get("balance").Uint(),
	}, nil
}

func (h *httpRPCClient) CreateTransaction(ctx context.Context, contract TransferContract) (*TransactionReply, error) {
	contract.Visible = true
	res, err := h.post(ctx, h.fullNode, "/wallet/createtransaction", contract)
	if err != nil {
		return nil, err
	}

	if errMsg := res.Get("Error"); errMsg.Exists() {
		return &TransactionReply{Result: false, Message: errMsg.String()}, nil
	}
	if result := res.Get("result"); result.Exists() && !result.Get("result").Bool() {
		return &TransactionReply{
			Result:  false,
			Code:    result.Get("code").String(),
			Message: decodeMessage(result.Get("message").String()),
		}, nil
	}

	// Some node versions wrap the transaction in {"transaction": {...}, "txid": ...}.
	txn := res
	if wrapped := res.Get("transaction"); wrapped.Exists() {
		txn = wrapped
	}
	txID := txn.Get("txID").String()
	if txID == "" {
		return &TransactionReply{Result: false, Message: "node returned no transaction"}, nil
	}

	return &TransactionReply{
		Result:     true,
		TxID:       txID,
		RawDataHex: txn.Get("raw_data_hex").String(),
		Raw:        json.RawMessage(txn.Raw),
	}, nil
}

func (h *httpRPCClient) BroadcastTransaction(ctx context.Context, signed json.RawMessage) (*BroadcastReply, error) {
	res, err := h.post(ctx, h.fullNode, "/wallet/broadcasttransaction", signed)
	if err != nil {
		return nil, err
	}
	return &BroadcastReply{
		Result:  res.Get("result").Bool(),
		TxID:    res.Get("txid").String(),
		Code:    res.Get("code").String(),
		Message: decodeMessage(res.Get("message").String()),
	}, nil
}

func (h *httpRPCClient) GetTransactionInfoByID(ctx context.Context, txID string) (*TransactionInfoReply, error) {
	body := map[string]string{"value": txID}
	res, err := h.post(ctx, h.solidity, "/walletsolidity/gettransactioninfobyid", body)
	if err != nil {
		return nil, err
	}
	if !res.Get("id").Exists() {
		return &TransactionInfoReply{Found: false, ID: txID}, nil
	}

	energy := res.Get("receipt.energy_usage_total").Uint()
	if energy == 0 {
		energy = res.Get("receipt.energy_usage").Uint()
	}

	return &TransactionInfoReply{
		Found:         true,
		ID:            res.Get("id").String(),
		BlockNumber:   res.Get("blockNumber").Uint(),
		Result:        res.Get("result").String(),
		ReceiptResult: res.Get("receipt.result").String(),
		ResMessage:    decodeMessage(res.Get("resMessage").String()),
		EnergyUsage:   energy,
		NetUsage:      res.Get("receipt.net_usage").Uint(),
	}, nil
}

// post issues a JSON POST and returns the parsed reply.
func (h *httpRPCClient) post(ctx context.Context, base, path string, body interface{}) (gjson.Result, error) {
	if err := h.wait(ctx); err != nil {
		return gjson.Result{}, err
	}

	data, err := json.Marshal(body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(data))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if h.apiKey != "" {
		req.Header.Set(APIKeyHeader, h.apiKey)
	}

	resp, err := h.http.Do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(out) > maxErrorBody {
			out = out[:maxErrorBody]
		}
		return gjson.Result{}, &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(out)}
	}

	if !gjson.Valid(string(out)) {
		return gjson.Result{}, fmt.Errorf("%s: invalid JSON response", path)
	}
	return gjson.ParseBytes(out), nil
}

// wait blocks on the rate limiter, if any.
func (h *httpRPCClient) wait(ctx context.Context) error {
	if h.limiter == nil {
		return nil
	}
	if h.limiter.Tokens() < 1 {
		h.metrics.RecordRateLimited(h.network)
	}
	return h.limiter.Wait(ctx)
}

// decodeMessage returns the text of a hex-encoded node message, or s unchanged
// when it is not hex-encoded printable text.
func decodeMessage(s string) string {
	if s == "" || len(s)%2 != 0 {
		return s
	}
	raw, err := hex.DecodeString(s)
	if err != nil || !utf8.Valid(raw) {
		return s
	}
	for _, r := range string(raw) {
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return s
		}
	}
	return string(raw)
}
