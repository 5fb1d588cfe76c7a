package probe

import (
	"context"
	"net/http"
	"time"

	"github.com/pulsegrid/sentinel/pkg/checks"
)

// defaultGrace is added to a check's max_latency to build the probe
// timeout, and is also the timeout used when max_latency is unset.
const defaultGrace = 30 * time.Second

// HTTPContext is the execution-ready form of an HTTPCheck: a request
// template whose URL was validated by Check.Validate when CommandLoop
// handled the Add. Headers are not validated at insertion; a header that
// net/http rejects makes the request fail when sent, and Execute reports
// that as the sentinel result.
type HTTPContext struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
}

// NewHTTPContext builds an HTTPContext from a validated HTTPCheck. maxLatency
// of zero falls back to defaultGrace alone, matching §4.2's "if not set, 30s".
func NewHTTPContext(check checks.HTTPCheck, maxLatency time.Duration) HTTPContext {
	timeout := defaultGrace
	if maxLatency > 0 {
		timeout = maxLatency + defaultGrace
	}
	return HTTPContext{
		URL:     check.URI,
		Headers: check.Headers,
		Timeout: timeout,
	}
}

// Execute issues a GET request using the pooled client and returns a
// ProbeResult. Transport, TLS, and I/O failures never propagate as an error
// — they are coerced into the §4.2 sentinel result so the worker never
// panics on adversarial input.
func (h HTTPContext) Execute(ctx context.Context, checkID string, client *http.Client) checks.ProbeResult {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, h.URL, nil)
	if err != nil {
		return sentinelResult(checkID, start)
	}
	for k, v := range h.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return sentinelResult(checkID, start)
	}
	defer resp.Body.Close()

	return checks.ProbeResult{
		CheckID:    checkID,
		Timestamp:  time.Now(),
		Latency:    time.Since(start),
		StatusCode: resp.StatusCode,
	}
}

// sentinelResult is the §4.2 failure outcome: a result is always produced,
// never a dropped sample.
func sentinelResult(checkID string, start time.Time) checks.ProbeResult {
	return checks.ProbeResult{
		CheckID:    checkID,
		Timestamp:  time.Now(),
		Latency:    time.Since(start),
		StatusCode: checks.SentinelStatus,
	}
}

// NewHTTPClient builds the *http.Client the pool hands out. A bare
// &http.Client{} is sufficient — per-request timeout is enforced via the
// request context, not the client's own Timeout field, so a pooled client
// can serve probes with different per-check timeouts.
func NewHTTPClient() *http.Client {
	return &http.Client{}
}
