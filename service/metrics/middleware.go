package metrics

import (
	"net/http"
	"time"
)

// HTTPMetricsTransport wraps an http.RoundTripper and records outbound request metrics.
// Requests are labeled by host and path; query strings are dropped so API keys
// passed as parameters never end up in label values.
// If base is nil, http.DefaultTransport is used.
func HTTPMetricsTransport(m *Metrics, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &meteredTransport{base: base, metrics: m}
}

type meteredTransport struct {
	base    http.RoundTripper
	metrics *Metrics
}

// RoundTrip executes the request and records its status and duration.
func (t *meteredTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(r)

	statusCode := 0
	if err == nil {
		statusCode = resp.StatusCode
	}
	t.metrics.RecordHTTPClientRequest(r.URL.Host, r.URL.Path, statusCode, time.Since(start).Seconds())

	return resp, err
}
