package ghapi

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// retryDelay is the pause before the single retry of a failed request.
const retryDelay = time.Second

// retryTransport replays a request once after a network-class failure:
// a transport error or a 5xx response. Validation failures (4xx) are
// terminal and pass through untouched.
type retryTransport struct {
	base  http.RoundTripper
	delay time.Duration
}

func newRetryTransport(base http.RoundTripper) *retryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &retryTransport{base: base, delay: retryDelay}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if !retryableFailure(resp, err) {
		return resp, err
	}

	retry, rerr := replayableCopy(req)
	if rerr != nil {
		return resp, err
	}
	if resp != nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	select {
	case <-req.Context().Done():
		return nil, req.Context().Err()
	case <-time.After(t.delay):
	}
	slog.Warn("github request retried", "method", req.Method, "url", req.URL.Path, "error", err)
	return t.base.RoundTrip(retry)
}

func retryableFailure(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	return resp.StatusCode >= 500
}

// replayableCopy clones the request with a fresh body. Requests whose
// body cannot be rewound are not retried.
func replayableCopy(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("request body not replayable")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone.Body = body
	return clone, nil
}
