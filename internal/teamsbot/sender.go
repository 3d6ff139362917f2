package teamsbot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/cobra-poc/messaging-bridge/internal/cobraapi"
	"github.com/cobra-poc/messaging-bridge/internal/config"
	"github.com/cobra-poc/messaging-bridge/internal/convref"
	apperrors "github.com/cobra-poc/messaging-bridge/internal/errors"
	"github.com/cobra-poc/messaging-bridge/internal/model"
	"github.com/cobra-poc/messaging-bridge/internal/retry"
	"github.com/cobra-poc/messaging-bridge/internal/util"
)

const (
	maxResponseBytes = 64 << 10
	maxLoggedBody    = 2000
	unknownSender    = "Unknown"
)

// ProactiveSender posts messages into Teams conversations the bot has seen.
type ProactiveSender struct {
	store  convref.Store
	api    BridgeClient
	client *http.Client
	policy *retry.Policy
	token  string
}

// NewProactiveSender builds a sender. token is sent as a bearer credential to
// the Bot Connector service when set.
func NewProactiveSender(store convref.Store, api BridgeClient, client *http.Client, policy *retry.Policy, token string) *ProactiveSender {
	if client == nil {
		client = &http.Client{Timeout: config.OutboundHTTPTimeout}
	}
	if policy == nil {
		policy = retry.New(retry.DefaultOptions())
	}
	return &ProactiveSender{store: store, api: api, client: client, policy: policy, token: token}
}

// FormatText renders an outbound message the way Teams users see it.
func FormatText(req *cobraapi.SendRequest) string {
	sender := req.SenderName
	if sender == "" {
		sender = unknownSender
	}
	text := fmt.Sprintf("**%s**: %s", sender, req.Text)
	if req.MultiChannel && req.ChannelName != "" {
		text = fmt.Sprintf("[%s] %s", req.ChannelName, text)
	}
	return text
}

type outgoingActivity struct {
	Type         string                    `json:"type"`
	Text         string                    `json:"text"`
	TextFormat   string                    `json:"textFormat"`
	From         model.ChannelAccount      `json:"from"`
	Conversation model.ConversationAccount `json:"conversation"`
}

type resourceResponse struct {
	ID string `json:"id"`
}

func (s *ProactiveSender) Send(ctx context.Context, req *cobraapi.SendRequest) (*cobraapi.SendResponse, error) {
	if req.ConversationID == "" && req.ConversationReference == nil {
		return nil, apperrors.MissingRequired("conversationId")
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, apperrors.MissingRequired("text")
	}

	ref, err := s.resolveReference(ctx, req)
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(ref.ServiceURL, "/") + "/v3/conversations/" + url.PathEscape(ref.Conversation.ID) + "/activities"
	body, err := json.Marshal(outgoingActivity{
		Type:         ActivityTypeMessage,
		Text:         FormatText(req),
		TextFormat:   "markdown",
		From:         ref.Bot,
		Conversation: ref.Conversation,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal activity: %w", err)
	}

	res := retry.Execute(ctx, s.policy, "teams proactive send", func(ctx context.Context) (string, error) {
		return s.post(ctx, endpoint, body)
	}, nil)
	if !res.Success {
		if retry.Classify(res.Err) == retry.KindPermanent {
			return nil, apperrors.ExternalRejected("Teams", retry.StatusCodeOf(res.Err), res.Err)
		}
		return nil, apperrors.External("Teams", res.Err)
	}

	log.Info().
		Str("conversationId", ref.Conversation.ID).
		Str("activityId", res.Value).
		Int("attempts", res.Attempts).
		Msg("proactive message sent")

	return &cobraapi.SendResponse{ActivityID: res.Value}, nil
}

// resolveReference prefers the reference in the request, then the local
// store, then the server's copy. Whatever is found is cached locally.
func (s *ProactiveSender) resolveReference(ctx context.Context, req *cobraapi.SendRequest) (*model.ConversationReference, error) {
	conversationID := req.ConversationID

	if ref := req.ConversationReference; ref != nil && ref.Validate() == nil {
		if conversationID == "" {
			conversationID = ref.Conversation.ID
		}
		s.cache(ctx, conversationID, ref)
		return ref, nil
	}
	if conversationID == "" {
		return nil, apperrors.NotFound("Conversation reference")
	}

	ref, err := s.store.Get(ctx, conversationID)
	if err != nil {
		log.Warn().Err(err).Str("conversationId", conversationID).Msg("conversation reference store lookup failed")
	}
	if ref != nil && ref.Validate() == nil {
		return ref, nil
	}

	if s.api != nil {
		res := s.api.GetConversationReference(ctx, conversationID)
		if res.Success && res.Value != nil && res.Value.ConversationReference != nil {
			ref = res.Value.ConversationReference
			if ref.Validate() == nil {
				s.cache(ctx, conversationID, ref)
				return ref, nil
			}
		}
	}

	return nil, apperrors.NotFound("Conversation reference")
}

func (s *ProactiveSender) cache(ctx context.Context, conversationID string, ref *model.ConversationReference) {
	if err := s.store.AddOrUpdate(ctx, conversationID, ref); err != nil {
		log.Warn().Err(err).Str("conversationId", conversationID).Msg("failed to cache conversation reference")
	}
}

func (s *ProactiveSender) post(ctx context.Context, endpoint string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", retry.Transient(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", retry.Transient(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if !retry.IsTransientStatus(resp.StatusCode) {
			log.Error().
				Int("status", resp.StatusCode).
				Str("body", util.Truncate(string(raw), maxLoggedBody)).
				Msg("bot connector rejected activity")
		}
		return "", retry.StatusError(resp.StatusCode, string(raw))
	}

	var out resourceResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			log.Debug().Err(err).Msg("unreadable bot connector response")
		}
	}
	return out.ID, nil
}
