package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cobra-poc/messaging-bridge/internal/retry"
	"github.com/cobra-poc/messaging-bridge/internal/util"
)

const (
	maxResponseBytes = 256 << 10
	maxLoggedBody    = 2000
)

type httpCaller struct {
	client  *http.Client
	policy  *retry.Policy
	headers map[string]string
}

// call sends one JSON request through the retry policy and decodes a 2xx
// body into out when out is non-nil.
func (c *httpCaller) call(ctx context.Context, operation, method, url string, body, out any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", operation, err)
		}
		payload = data
	}

	res := retry.Execute(ctx, c.policy, operation, func(ctx context.Context) (struct{}, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return struct{}{}, retry.Permanent(fmt.Errorf("create request: %w", err))
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}

		start := time.Now()
		resp, err := c.client.Do(req)
		elapsed := time.Since(start)
		if err != nil {
			if ctx.Err() != nil {
				return struct{}{}, ctx.Err()
			}
			return struct{}{}, retry.Transient(err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return struct{}{}, retry.Transient(fmt.Errorf("read response: %w", err))
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			evt := log.Warn()
			if !retry.IsTransientStatus(resp.StatusCode) {
				evt = log.Error()
			}
			evt.
				Str("operation", operation).
				Int("status", resp.StatusCode).
				Dur("elapsed", elapsed).
				Str("body", util.Truncate(string(raw), maxLoggedBody)).
				Msg("platform request failed")
			return struct{}{}, retry.StatusError(resp.StatusCode, string(raw))
		}

		log.Debug().
			Str("operation", operation).
			Int("status", resp.StatusCode).
			Dur("elapsed", elapsed).
			Msg("platform request")

		if out != nil && len(raw) > 0 {
			if err := json.Unmarshal(raw, out); err != nil {
				return struct{}{}, retry.Permanent(fmt.Errorf("decode %s response: %w", operation, err))
			}
		}
		return struct{}{}, nil
	}, nil)

	if !res.Success {
		return fmt.Errorf("%s: %w", operation, res.Err)
	}
	return nil
}
