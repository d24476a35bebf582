// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// StatusError is returned by FetchJSON for a non-2xx response. Body holds
// the (size limited) response body for diagnostics.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d", ErrUnexpectedStatus, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}

// ReadLimited reads r to EOF, failing with ErrResponseTooLarge if it holds
// more than limit bytes.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, limit)
	}
	return body, nil
}

// FetchJSON GETs requestURL and decodes the JSON body into v. The request is
// bounded by a deadline (WithTimeout, default DefaultTimeout) and the body by
// a size ceiling (WithMaxResponseSize, default DefaultMaxResponseSize). The
// raw body is returned for callers that need to pass it through.
//
// Validating requestURL is the caller's job.
func FetchJSON(ctx context.Context, client *http.Client, requestURL string, v interface{}, opt ...Option) ([]byte, error) {
	const op = "http.FetchJSON"
	opts := getFetchOpts(opt...)
	if client == nil {
		client = http.DefaultClient
	}

	if opts.withTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.withTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create request: %w", op, err)
	}
	if opts.withAccept != "" {
		req.Header.Set("Accept", opts.withAccept)
	}

	resp, err := client.Do(req)
	if err != nil {
		if IsTimeout(err) {
			return nil, fmt.Errorf("%s: %w after %s", op, ErrTimeout, opts.withTimeout)
		}
		return nil, fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := ReadLimited(resp.Body, opts.withMaxResponseSize)
	if err != nil {
		if IsTimeout(err) {
			return nil, fmt.Errorf("%s: %w after %s", op, ErrTimeout, opts.withTimeout)
		}
		return nil, fmt.Errorf("%s: unable to read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return body, fmt.Errorf("%s: %w", op, &StatusError{StatusCode: resp.StatusCode, Body: body})
	}

	if v != nil {
		if err := json.Unmarshal(body, v); err != nil {
			return body, fmt.Errorf("%s: %w: %s", op, ErrInvalidResponse, err)
		}
	}
	return body, nil
}
