package upstream

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// RetryRoundTripper wraps a RoundTripper with exponential backoff retry,
// adapted from spothero-tools' RetryRoundTripper onto cenkalti/backoff/v4
// directly (no circuit breaker: this is transport-level resilience for the
// fetcher's single call per leaf, not a substitute for the engine's
// one-attempt-per-leaf contract).
type RetryRoundTripper struct {
	RoundTripper         http.RoundTripper
	RetriableStatusCodes map[int]bool
	InitialInterval      time.Duration
	Multiplier           float64
	RandomizationFactor  float64
	MaxInterval          time.Duration
	MaxRetries           uint64
	log                  *logrus.Entry
}

// NewDefaultRetryRoundTripper returns a RetryRoundTripper with the same
// defaults spothero-tools ships: retry on [500,502,503,504], 100ms initial
// interval, multiplier 2, up to 10s interval, 5 retries.
func NewDefaultRetryRoundTripper(rt http.RoundTripper, log *logrus.Entry) *RetryRoundTripper {
	if rt == nil {
		panic("upstream: no RoundTripper provided to RetryRoundTripper")
	}
	return &RetryRoundTripper{
		RoundTripper: rt,
		RetriableStatusCodes: map[int]bool{
			http.StatusInternalServerError: true,
			http.StatusBadGateway:          true,
			http.StatusServiceUnavailable:  true,
			http.StatusGatewayTimeout:      true,
		},
		InitialInterval:     100 * time.Millisecond,
		Multiplier:          2,
		RandomizationFactor: 0.5,
		MaxInterval:         10 * time.Second,
		MaxRetries:          5,
		log:                 log,
	}
}

// RoundTrip retries the request on network error or a retriable status code.
func (rrt *RetryRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var err error

	attempt := func() error {
		resp, err = rrt.RoundTripper.RoundTrip(req)
		if err != nil {
			rrt.log.WithError(err).Debug("retrying failed upstream request")
			return err
		}
		if resp.StatusCode < http.StatusBadRequest {
			return nil
		}
		if rrt.RetriableStatusCodes[resp.StatusCode] {
			rrt.log.WithField("status_code", resp.StatusCode).Debug("retrying retriable upstream response")
			return fmt.Errorf("status code %d is retriable", resp.StatusCode)
		}
		return nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = rrt.InitialInterval
	expBackoff.Multiplier = rrt.Multiplier
	expBackoff.RandomizationFactor = rrt.RandomizationFactor
	expBackoff.MaxInterval = rrt.MaxInterval

	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, rrt.MaxRetries), req.Context())
	if retryErr := backoff.Retry(attempt, policy); retryErr != nil {
		rrt.log.WithError(retryErr).Debug("exhausted retries on upstream request")
	}
	return resp, err
}
