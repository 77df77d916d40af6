package transfer

import (
	"context"
	"log/slog"

	"github.com/brojonat/tronsend/service/metrics"
	"github.com/brojonat/tronsend/service/network"
	"github.com/brojonat/tronsend/service/tron"
)

// HTTPDialer returns a DialFunc that talks to the node over the java-tron HTTP API.
func HTTPDialer(opts tron.HTTPClientOptions, m *metrics.Metrics, logger *slog.Logger) DialFunc {
	if opts.Metrics == nil {
		opts.Metrics = m
	}
	return func(ctx context.Context, profile network.Profile, signer *tron.Signer) (Ledger, error) {
		rpc := tron.NewHTTPClient(profile, opts)
		client, err := tron.Connect(ctx, rpc, profile, signer, m, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// WithEndpoint points every dial at url instead of the profile's endpoints.
// An empty url leaves profiles unchanged.
func WithEndpoint(dial DialFunc, url string) DialFunc {
	if url == "" {
		return dial
	}
	return func(ctx context.Context, profile network.Profile, signer *tron.Signer) (Ledger, error) {
		profile.RPCEndpoint = url
		profile.AuxEndpoint = url
		return dial(ctx, profile, signer)
	}
}
