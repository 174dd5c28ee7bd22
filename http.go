// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/gorilla/rpc/v2/json2"
	"github.com/rs/zerolog"
)

const (
	defaultMaxRetries    = 3
	defaultRetryBaseWait = 500 * time.Millisecond
	defaultHTTPTimeout   = 30 * time.Second
	maxErrorBody         = 1 << 20
)

// HTTPOption configures CallHTTP.
type HTTPOption func(*httpOptions)

type httpOptions struct {
	headers       http.Header
	queryParams   url.Values
	client        *http.Client
	log           zerolog.Logger
	maxRetries    int
	retryBaseWait time.Duration
}

func newHTTPOptions(opts []HTTPOption) *httpOptions {
	o := &httpOptions{
		headers:       make(http.Header),
		queryParams:   make(url.Values),
		log:           zerolog.Nop(),
		maxRetries:    defaultMaxRetries,
		retryBaseWait: defaultRetryBaseWait,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.client == nil {
		o.client = newHTTPClient()
	}
	return o
}

// WithHeader adds a request header.
func WithHeader(key, value string) HTTPOption {
	return func(o *httpOptions) { o.headers.Add(key, value) }
}

// WithBearerToken authorizes the request with token.
func WithBearerToken(token string) HTTPOption {
	return func(o *httpOptions) { o.headers.Set("Authorization", "Bearer "+token) }
}

// WithQueryParam adds a query parameter to the request URL.
func WithQueryParam(key, value string) HTTPOption {
	return func(o *httpOptions) { o.queryParams.Add(key, value) }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(o *httpOptions) { o.client = c }
}

func WithHTTPLogger(log zerolog.Logger) HTTPOption {
	return func(o *httpOptions) { o.log = log }
}

// WithRetry sets the number of attempts and the wait before the second one.
// The wait doubles for every further attempt.
func WithRetry(attempts int, baseWait time.Duration) HTTPOption {
	return func(o *httpOptions) {
		if attempts > 0 {
			o.maxRetries = attempts
		}
		if baseWait >= 0 {
			o.retryBaseWait = baseWait
		}
	}
}

// newHTTPClient returns a client that does not reuse connections, so a
// connection dropped by a proxy between calls does not fail the next one.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: defaultHTTPTimeout,
		Transport: &http.Transport{
			DisableKeepAlives: true,
		},
	}
}

// cleanlyCloseBody drains and closes an HTTP response body.
func cleanlyCloseBody(body io.ReadCloser) error {
	if body == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, body)
	return body.Close()
}

// isRetryableError reports whether err is a transient connection failure.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe")
}

// CallHTTP performs one JSON-RPC 2.0 call as an HTTP POST to uri and decodes
// the result into reply. An error object in the response is returned as a
// *ResponseError.
func CallHTTP(
	ctx context.Context,
	uri string,
	method string,
	params interface{},
	reply interface{},
	opts ...HTTPOption,
) error {
	o := newHTTPOptions(opts)

	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("parse uri: %w", err)
	}
	if len(o.queryParams) > 0 {
		q := u.Query()
		for k, vs := range o.queryParams {
			q[k] = append(q[k], vs...)
		}
		u.RawQuery = q.Encode()
	}

	body, err := json2.EncodeClientRequest(method, params)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	log := o.log.With().Str("method", method).Str("url", redactURL(u.String())).Logger()

	var lastErr error
	for attempt := 0; attempt < o.maxRetries; attempt++ {
		if attempt > 0 {
			wait := o.retryBaseWait * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		// The body buffer is consumed by every attempt.
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header = o.headers.Clone()
		req.Header.Set("Content-Type", "application/json")

		resp, err := o.client.Do(req)
		if err != nil {
			lastErr = err
			retryable := isRetryableError(err)
			log.Debug().Err(err).Int("attempt", attempt+1).Bool("retryable", retryable).Msg("http call failed")
			if retryable {
				continue
			}
			return fmt.Errorf("issue request: %w", err)
		}
		if attempt > 0 {
			log.Debug().Int("attempt", attempt+1).Msg("http call succeeded after retry")
		}
		return decodeHTTPResponse(resp, reply)
	}

	return fmt.Errorf("issue request after %d attempts: %w", o.maxRetries, lastErr)
}

func decodeHTTPResponse(resp *http.Response, reply interface{}) error {
	defer cleanlyCloseBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Some servers send the error object with a 4xx or 5xx status.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var ignored json.RawMessage
		var jerr *json2.Error
		if err := json2.DecodeClientResponse(bytes.NewReader(body), &ignored); errors.As(err, &jerr) {
			return fromJSON2Error(jerr)
		}
		return fmt.Errorf("received status code: %d", resp.StatusCode)
	}

	err := json2.DecodeClientResponse(resp.Body, reply)
	var jerr *json2.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &jerr):
		return fromJSON2Error(jerr)
	default:
		return fmt.Errorf("decode response: %w", err)
	}
}

func fromJSON2Error(jerr *json2.Error) *ResponseError {
	re := &ResponseError{
		Code:    jrpc2.Code(jerr.Code),
		Message: jerr.Message,
	}
	if jerr.Data != nil {
		re.Data, _ = json.Marshal(jerr.Data)
	}
	re.Raw, _ = json.Marshal(jerr)
	return re
}
