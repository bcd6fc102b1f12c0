// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// SessionIDHeader is the response header carrying a server-assigned
// session id for the exchange.
const SessionIDHeader = "X-Session-Id"

// streamReadSize is the chunk buffer size for reading the response body.
const streamReadSize = 4096

// =============================================================================
// STREAMING ASK
// =============================================================================

// AskStream sends a completion request and streams the reply through the
// callback, strictly in arrival order.
//
// If the response carries an X-Session-Id header, a chunk with only
// SessionID set is delivered before any content chunk. Content chunks carry
// decoded text; a multi-byte character split across network reads is held
// back until its remaining bytes arrive, so callbacks never see a torn rune.
//
// AskStream blocks until the stream ends. There is no read timeout on the
// body and no retry: any transport failure is returned to the caller once.
func (c *Client) AskStream(ctx context.Context, ask AskRequest, callback StreamCallback) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &ClientError{Type: ErrTypeUnknown, Message: "request cancelled", Cause: err}
	}

	body, err := json.Marshal(ask)
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/ask/stream"), bytes.NewReader(body))
	if err != nil {
		return &ClientError{Type: ErrTypeUnreachable, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	// A dedicated client without a timeout: the stream is allowed to stay
	// open for as long as the backend keeps producing chunks.
	streamClient := &http.Client{}

	resp, err := streamClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return ErrTimeout
		}
		return ErrUnreachable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ClientError{
			Type:    ErrTypeInvalidResponse,
			Message: "ask request failed: " + resp.Status,
		}
	}

	// Session reassignment arrives in the headers, before any body bytes.
	if assigned := resp.Header.Get(SessionIDHeader); assigned != "" {
		callback(StreamChunk{SessionID: assigned})
	}

	return readStream(ctx, resp.Body, callback)
}

// =============================================================================
// STREAM READER
// =============================================================================

// readStream pumps decoded text chunks from r into the callback until EOF.
// The transform reader keeps decoder state between reads, which is what
// carries a split UTF-8 sequence across a chunk boundary.
func readStream(ctx context.Context, r io.Reader, callback StreamCallback) error {
	decoded := transform.NewReader(r, unicode.UTF8.NewDecoder())
	buf := make([]byte, streamReadSize)

	for {
		select {
		case <-ctx.Done():
			return &ClientError{Type: ErrTypeStream, Message: "stream cancelled", Cause: ctx.Err()}
		default:
		}

		n, err := decoded.Read(buf)
		if n > 0 {
			callback(StreamChunk{Text: string(buf[:n])})
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return &ClientError{Type: ErrTypeStream, Message: "stream ended abnormally", Cause: err}
		}
	}
}
