package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/brojonat/tronsend/service/network"
	"github.com/brojonat/tronsend/service/tron"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNode serves the subset of the java-tron HTTP API a transfer run uses.
type fakeNode struct {
	mu         sync.Mutex
	broadcasts []map[string]json.RawMessage
	txID       string
}

func newFakeNode(t *testing.T) (*httptest.Server, *fakeNode) {
	t.Helper()
	node := &fakeNode{}

	rawData := []byte("fake-transfer-raw-data")
	digest := sha256.Sum256(rawData)
	node.txID = hex.EncodeToString(digest[:])
	tx := map[string]interface{}{
		"visible":      true,
		"txID":         node.txID,
		"raw_data":     map[string]interface{}{"expiration": 1700000000000},
		"raw_data_hex": hex.EncodeToString(rawData),
	}
	txJSON, err := json.Marshal(tx)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/wallet/getnowblock", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"block_header":{"raw_data":{"number":100}}}`))
	})
	mux.HandleFunc("/wallet/getaccount", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"address":"` + testTo + `","balance":900000000}`))
	})
	mux.HandleFunc("/wallet/createtransaction", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(txJSON)
	})
	mux.HandleFunc("/wallet/broadcasttransaction", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var fields map[string]json.RawMessage
		_ = json.Unmarshal(body, &fields)
		node.mu.Lock()
		node.broadcasts = append(node.broadcasts, fields)
		node.mu.Unlock()
		_, _ = w.Write([]byte(`{"result":true,"txid":"` + node.txID + `"}`))
	})
	mux.HandleFunc("/walletsolidity/gettransactioninfobyid", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"` + node.txID + `","blockNumber":101,"receipt":{"net_usage":267}}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, node
}

func (n *fakeNode) broadcastCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.broadcasts)
}

// localDialer points the HTTP dialer at the fake node regardless of network.
func localDialer(url string) DialFunc {
	return WithEndpoint(HTTPDialer(tron.HTTPClientOptions{}, nil, testLogger()), url)
}

func TestHTTPDialer_FullTransfer(t *testing.T) {
	srv, node := newFakeNode(t)

	result, err := New(testConfig(), localDialer(srv.URL), WithLogger(testLogger())).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, result.State)
	assert.Equal(t, node.txID, result.ReferenceID)
	assert.Equal(t, tron.StateSuccess, result.Receipt.State)
	require.NotNil(t, result.Receipt.BlockHeight)
	assert.Equal(t, uint64(101), *result.Receipt.BlockHeight)
	assert.Equal(t, uint64(900000000), result.SenderBalance)

	require.Equal(t, 1, node.broadcastCount())
	node.mu.Lock()
	defer node.mu.Unlock()
	assert.Contains(t, node.broadcasts[0], "signature")
	assert.Contains(t, node.broadcasts[0], "raw_data_hex")
}

func TestHTTPDialer_DryRunNeverHitsBroadcast(t *testing.T) {
	srv, node := newFakeNode(t)
	cfg := testConfig()
	cfg.DryRun = true

	result, err := New(cfg, localDialer(srv.URL), WithLogger(testLogger())).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, node.txID, result.ReferenceID)
	assert.Equal(t, 0, node.broadcastCount())
}

func TestWithEndpoint(t *testing.T) {
	var got network.Profile
	dial := func(ctx context.Context, profile network.Profile, signer *tron.Signer) (Ledger, error) {
		got = profile
		return nil, nil
	}
	profile, err := network.Lookup(network.Mainnet)
	require.NoError(t, err)

	_, _ = WithEndpoint(dial, "http://10.0.0.5:8090")(context.Background(), profile, nil)
	assert.Equal(t, network.Mainnet, got.Name)
	assert.Equal(t, "http://10.0.0.5:8090", got.RPCEndpoint)
	assert.Equal(t, "http://10.0.0.5:8090", got.SolidityEndpoint())

	_, _ = WithEndpoint(dial, "")(context.Background(), profile, nil)
	assert.Equal(t, profile, got)
}

func TestHTTPDialer_UnreachableNode(t *testing.T) {
	srv, _ := newFakeNode(t)
	url := srv.URL
	srv.Close()

	_, err := New(testConfig(), localDialer(url), WithLogger(testLogger())).Run(context.Background())
	assert.ErrorIs(t, err, tron.ErrConnection)
}
