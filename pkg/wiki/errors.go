package wiki

import (
	"context"
	"fmt"
	"net"
	"net/url"

	"github.com/walteh/wikisync/pkg/retry"
	"gitlab.com/tozd/go/errors"
)

var (
	// ErrAuth means the server rejected the credentials during login.
	ErrAuth = errors.Base("authentication rejected")

	// ErrTokenRejected means the server refused the submitted write
	// token.
	ErrTokenRejected = errors.Base("write token rejected")
)

// APIError is a definite error response from the remote API.
type APIError struct {
	Code string
	Info string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %s: %s", e.Code, e.Info)
}

// HTTPError is a non-200 response with no parseable API body.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
}

// transientCodes are API error codes worth backing off and retrying.
var transientCodes = map[string]bool{
	"maxlag":      true,
	"ratelimited": true,
	"readonly":    true,
}

// Classify maps an error from a client call to a retry decision:
// a rejected token forces a refresh, server faults and network errors
// back off, anything else with a definite status fails immediately.
func Classify(err error) retry.Decision {
	if err == nil {
		return retry.Fail
	}

	if errors.Is(err, ErrTokenRejected) {
		return retry.RefreshAndRetry
	}
	if errors.Is(err, ErrAuth) {
		return retry.Fail
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if transientCodes[apiErr.Code] {
			return retry.Backoff
		}
		return retry.Fail
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode >= 500 {
			return retry.Backoff
		}
		return retry.Fail
	}

	// Timeouts, connection resets and other transport-level failures
	// surface as net/url errors or a deadline on the per-call context.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return retry.Backoff
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return retry.Backoff
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return retry.Backoff
	}

	return retry.Fail
}
