package platform

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/cobra-poc/messaging-bridge/internal/cobraapi"
	apperrors "github.com/cobra-poc/messaging-bridge/internal/errors"
	"github.com/cobra-poc/messaging-bridge/internal/model"
	"github.com/cobra-poc/messaging-bridge/internal/retry"
)

type TeamsConfig struct {
	BotURL string
	APIKey string
}

// TeamsDriver hands outbound messages to the Teams bot relay, which owns the
// Bot Framework credentials.
type TeamsDriver struct {
	botURL string
	caller *httpCaller
}

func NewTeamsDriver(cfg TeamsConfig, client *http.Client, policy *retry.Policy) *TeamsDriver {
	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers[cobraapi.APIKeyHeader] = cfg.APIKey
	}
	return &TeamsDriver{
		botURL: strings.TrimRight(cfg.BotURL, "/"),
		caller: &httpCaller{client: client, policy: policy, headers: headers},
	}
}

func (d *TeamsDriver) Platform() model.Platform {
	return model.PlatformTeams
}

// Provision only records an existing conversation; the bridge cannot create
// Teams conversations.
func (d *TeamsDriver) Provision(ctx context.Context, req ProvisionRequest) (*Provisioned, error) {
	if req.ExternalGroupID == "" {
		return nil, apperrors.MissingRequired("externalGroupId (Teams conversation id)")
	}
	name := req.GroupName
	if name == "" {
		name = req.EventName
	}
	return &Provisioned{
		ExternalGroupID:   req.ExternalGroupID,
		ExternalGroupName: name,
	}, nil
}

func (d *TeamsDriver) Send(ctx context.Context, mapping *model.ChannelMapping, msg OutboundMessage) error {
	if !mapping.HasConversationReference() {
		return ErrMissingReference
	}
	if d.botURL == "" {
		return apperrors.NotConfigured("Teams bot URL")
	}

	ref, err := model.ParseConversationReference(*mapping.ConversationReferenceJSON)
	if err != nil {
		return err
	}

	return d.caller.call(ctx, "teams send", http.MethodPost, d.botURL+"/api/internal/send", &cobraapi.SendRequest{
		ConversationID:        mapping.ExternalGroupID,
		ConversationReference: ref,
		Text:                  msg.Text,
		SenderName:            msg.SenderName,
		EventName:             msg.EventName,
		ChannelName:           msg.ChannelName,
		MultiChannel:          msg.MultiChannel,
	}, nil)
}

func (d *TeamsDriver) Archive(ctx context.Context, mapping *model.ChannelMapping) error {
	log.Debug().Str("mappingId", mapping.ID).Msg("teams conversations are not archived")
	return nil
}
