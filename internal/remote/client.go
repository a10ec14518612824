// Package remote talks to the external feed, fingerprint, star-sync and
// device registration endpoints.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/conference-schedule/backend/internal/logging"
	"github.com/conference-schedule/backend/internal/metrics"
)

const maxBodySize = 16 << 20

// Options configures a Client.
type Options struct {
	ConnectTimeout   time.Duration
	SocketTimeout    time.Duration
	ProbeURL         string
	ProbeUnavailable string
	StarSyncURL      string
	RegistrationURL  string
	UserAgent        string

	// BreakerName labels the circuit breaker metrics. Defaults to "remote".
	BreakerName string
}

// Client performs remote calls through a shared circuit breaker.
type Client struct {
	http *http.Client
	cb   *gobreaker.CircuitBreaker[*response]
	opts Options
}

type response struct {
	status int
	body   []byte
}

// New creates a client. Connect and socket timeouts are enforced by the
// dialer and the transport; exceeding either yields a *TransportError.
func New(opts Options) *Client {
	if opts.BreakerName == "" {
		opts.BreakerName = "remote"
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "confsched-sync/1.0"
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   opts.ConnectTimeout,
		ResponseHeaderTimeout: opts.SocketTimeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}

	name := opts.BreakerName
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			trip := counts.ConsecutiveFailures >= 5
			if trip {
				logging.Warn().Uint32("failures", counts.ConsecutiveFailures).Str("breaker", name).Msg("Opening circuit")
			}
			return trip
		},
		// Client errors say nothing about the health of the remote side.
		IsSuccessful: func(err error) bool {
			var terr *TransportError
			if errors.As(err, &terr) {
				return !terr.Retryable()
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   opts.ConnectTimeout + opts.SocketTimeout,
		},
		cb:   cb,
		opts: opts,
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// do sends the request through the breaker. Any non-2xx status is returned
// as a *TransportError.
func (c *Client) do(ctx context.Context, method, rawURL string, body any) (*response, error) {
	resp, err := c.cb.Execute(func() (*response, error) {
		return c.roundTrip(ctx, method, rawURL, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(c.opts.BreakerName, "rejected").Inc()
			return nil, &TransportError{URL: rawURL, Err: err}
		}
		metrics.CircuitBreakerRequests.WithLabelValues(c.opts.BreakerName, "failure").Inc()
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(c.opts.BreakerName, "success").Inc()
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, method, rawURL string, body any) (*response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &TransportError{URL: rawURL, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Reason:     failureReason(data),
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	return &response{status: resp.StatusCode, body: data}, nil
}

// failureReason extracts {"reason": "..."} or {"error": "..."} from an error body.
func failureReason(body []byte) string {
	var payload struct {
		Reason string `json:"reason"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Reason != "" {
		return payload.Reason
	}
	return payload.Error
}

// Fetch GETs a feed and returns its body.
func (c *Client) Fetch(ctx context.Context, feedURL string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	return resp.body, nil
}

// Probe asks the fingerprint endpoint for the current hash of resourceURL.
// It returns ErrUnavailable when the endpoint answers with the sentinel value
// or an empty body.
func (c *Client) Probe(ctx context.Context, resourceURL string) (string, error) {
	probeURL := c.opts.ProbeURL + "?url=" + url.QueryEscape(resourceURL)
	resp, err := c.do(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return "", err
	}

	fp := strings.TrimSpace(string(resp.body))
	if fp == "" || fp == c.opts.ProbeUnavailable {
		return "", ErrUnavailable
	}
	return strings.ToLower(fp), nil
}
