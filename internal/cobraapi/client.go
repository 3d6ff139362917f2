// Package cobraapi is the Teams bot's client for the bridge server.
package cobraapi

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

	"github.com/rs/zerolog/log"

	"github.com/cobra-poc/messaging-bridge/internal/config"
	"github.com/cobra-poc/messaging-bridge/internal/retry"
	"github.com/cobra-poc/messaging-bridge/internal/util"
)

const (
	APIKeyHeader = "X-Api-Key"

	maxResponseBytes = 64 << 10
	maxLoggedBody    = 2000
)

var ErrNotConfigured = errors.New("bridge api base url is not configured")

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	policy  *retry.Policy
}

// NewClient returns a client for baseURL. A nil httpClient gets the default
// outbound timeout; a nil policy uses retry.DefaultOptions.
func NewClient(baseURL, apiKey string, httpClient *http.Client, policy *retry.Policy) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.OutboundHTTPTimeout}
	}
	if policy == nil {
		policy = retry.New(retry.DefaultOptions())
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  httpClient,
		policy:  policy,
	}
}

func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// DeliverWebhook posts a message for a known mapping. Permanent rejections
// are logged with the response body and not retried.
func (c *Client) DeliverWebhook(ctx context.Context, mappingID string, payload *WebhookPayload) bool {
	if !c.checkConfigured("deliver webhook") {
		return false
	}

	path := "/api/webhooks/teams/" + url.PathEscape(mappingID)
	res := retry.Execute(ctx, c.policy, "deliver webhook", func(ctx context.Context) (bool, error) {
		status, body, err := c.do(ctx, http.MethodPost, path, payload)
		if err != nil {
			return false, err
		}
		if isSuccess(status) {
			return true, nil
		}
		c.logRejection("webhook delivery rejected", status, body, mappingID)
		return false, retry.StatusError(status, body)
	}, nil)

	return res.Success && res.Value
}

// DeliverUnmappedMessage posts a message for a conversation without a known
// mapping. A 404 means the server has no mapping yet and is not an error.
func (c *Client) DeliverUnmappedMessage(ctx context.Context, conversationID string, payload *WebhookPayload) bool {
	if !c.checkConfigured("deliver unmapped message") {
		return false
	}

	path := "/api/webhooks/teams/conversations/" + url.PathEscape(conversationID)
	res := retry.Execute(ctx, c.policy, "deliver unmapped message", func(ctx context.Context) (bool, error) {
		status, body, err := c.do(ctx, http.MethodPost, path, payload)
		if err != nil {
			return false, err
		}
		if isSuccess(status) {
			return true, nil
		}
		if status == http.StatusNotFound {
			log.Debug().
				Str("conversationId", conversationID).
				Msg("no mapping for conversation")
			return false, nil
		}
		c.logRejection("unmapped message rejected", status, body, conversationID)
		return false, retry.StatusError(status, body)
	}, nil)

	return res.Success && res.Value
}

// LookupMappingID resolves the mapping id of a conversation. An unmapped
// conversation yields a successful result with an empty value.
func (c *Client) LookupMappingID(ctx context.Context, conversationID string) retry.Result[string] {
	if !c.checkConfigured("lookup mapping") {
		return retry.Result[string]{Err: ErrNotConfigured}
	}

	path := "/api/teams/mappings/" + url.PathEscape(conversationID)
	return retry.Execute(ctx, c.policy, "lookup mapping", func(ctx context.Context) (string, error) {
		status, body, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return "", err
		}
		if status == http.StatusNotFound {
			return "", nil
		}
		if !isSuccess(status) {
			c.logRejection("mapping lookup rejected", status, body, conversationID)
			return "", retry.StatusError(status, body)
		}

		var resp MappingLookupResponse
		if err := json.Unmarshal([]byte(body), &resp); err != nil {
			return "", retry.Permanent(fmt.Errorf("decode mapping lookup: %w", err))
		}
		return resp.MappingID, nil
	}, nil)
}

// StoreConversationReference pushes the latest reference for a conversation.
// The value reports whether the server implicitly created a mapping.
func (c *Client) StoreConversationReference(ctx context.Context, envelope *ReferenceEnvelope) retry.Result[bool] {
	if !c.checkConfigured("store conversation reference") {
		return retry.Result[bool]{Err: ErrNotConfigured}
	}

	path := "/api/teams/conversation-references/" + url.PathEscape(envelope.ConversationID)
	return retry.Execute(ctx, c.policy, "store conversation reference", func(ctx context.Context) (bool, error) {
		status, body, err := c.do(ctx, http.MethodPut, path, envelope)
		if err != nil {
			return false, err
		}
		if !isSuccess(status) {
			c.logRejection("conversation reference rejected", status, body, envelope.ConversationID)
			return false, retry.StatusError(status, body)
		}

		var resp StoreReferenceResponse
		if body != "" {
			if err := json.Unmarshal([]byte(body), &resp); err != nil {
				return false, retry.Permanent(fmt.Errorf("decode store reference response: %w", err))
			}
		}
		return resp.Created, nil
	}, nil)
}

// GetConversationReference fetches the server's stored reference. A missing
// reference yields a successful result with a nil value.
func (c *Client) GetConversationReference(ctx context.Context, conversationID string) retry.Result[*ReferenceEnvelope] {
	if !c.checkConfigured("get conversation reference") {
		return retry.Result[*ReferenceEnvelope]{Err: ErrNotConfigured}
	}

	path := "/api/teams/conversation-references/" + url.PathEscape(conversationID)
	return retry.Execute(ctx, c.policy, "get conversation reference", func(ctx context.Context) (*ReferenceEnvelope, error) {
		status, body, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		if status == http.StatusNotFound {
			return nil, nil
		}
		if !isSuccess(status) {
			c.logRejection("conversation reference fetch rejected", status, body, conversationID)
			return nil, retry.StatusError(status, body)
		}

		var envelope ReferenceEnvelope
		if err := json.Unmarshal([]byte(body), &envelope); err != nil {
			return nil, retry.Permanent(fmt.Errorf("decode conversation reference: %w", err))
		}
		if envelope.ConversationReference == nil {
			return nil, nil
		}
		return &envelope, nil
	}, nil)
}

func (c *Client) checkConfigured(operation string) bool {
	if c.Configured() {
		return true
	}
	log.Warn().Str("operation", operation).Msg("bridge api base url not configured, skipping")
	return false
}

// do performs one HTTP exchange. Transport failures come back tagged as
// transient unless the caller's context is done.
func (c *Client) do(ctx context.Context, method, path string, payload any) (int, string, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, "", retry.Permanent(fmt.Errorf("marshal payload: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, "", retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return 0, "", ctx.Err()
		}
		log.Debug().
			Err(err).
			Str("method", method).
			Str("path", path).
			Dur("elapsed", elapsed).
			Msg("bridge api request error")
		return 0, "", retry.Transient(fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctx.Err() != nil {
			return 0, "", ctx.Err()
		}
		return 0, "", retry.Transient(fmt.Errorf("read response: %w", err))
	}

	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("bridge api request")

	return resp.StatusCode, string(raw), nil
}

func (c *Client) logRejection(msg string, status int, body, id string) {
	if retry.IsTransientStatus(status) {
		return
	}
	log.Error().
		Int("status", status).
		Str("id", id).
		Str("body", util.Truncate(body, maxLoggedBody)).
		Msg(msg)
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
