package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	apperrors "github.com/cobra-poc/messaging-bridge/internal/errors"
	"github.com/cobra-poc/messaging-bridge/internal/model"
	"github.com/cobra-poc/messaging-bridge/internal/retry"
	"github.com/cobra-poc/messaging-bridge/internal/util"
)

const groupMeMaxTextLength = 1000

type GroupMeConfig struct {
	APIURL      string
	AccessToken string
	BotName     string
	// CallbackURL builds the webhook address GroupMe posts group messages to.
	CallbackURL func(mappingID, secret string) string
}

type GroupMeDriver struct {
	cfg    GroupMeConfig
	caller *httpCaller
}

func NewGroupMeDriver(cfg GroupMeConfig, client *http.Client, policy *retry.Policy) *GroupMeDriver {
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return &GroupMeDriver{
		cfg:    cfg,
		caller: &httpCaller{client: client, policy: policy},
	}
}

func (d *GroupMeDriver) Platform() model.Platform {
	return model.PlatformGroupMe
}

type groupMeGroup struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type groupMeBot struct {
	BotID string `json:"bot_id"`
}

type groupMeEnvelope[T any] struct {
	Response T `json:"response"`
}

// Provision creates a GroupMe group and a bot inside it whose callback points
// back at the mapping's webhook. The group is destroyed again when the bot
// cannot be created.
func (d *GroupMeDriver) Provision(ctx context.Context, req ProvisionRequest) (*Provisioned, error) {
	if d.cfg.AccessToken == "" {
		return nil, apperrors.NotConfigured("GroupMe access token")
	}

	name := req.GroupName
	if name == "" {
		name = req.EventName
	}

	var group groupMeEnvelope[groupMeGroup]
	err := d.caller.call(ctx, "groupme create group", http.MethodPost, d.endpoint("/groups"), map[string]any{
		"name":  name,
		"share": true,
	}, &group)
	if err != nil {
		return nil, err
	}
	if group.Response.ID == "" {
		return nil, fmt.Errorf("groupme create group: empty group id")
	}

	botBody := map[string]any{
		"name":     d.cfg.BotName,
		"group_id": group.Response.ID,
	}
	if d.cfg.CallbackURL != nil {
		if callback := d.cfg.CallbackURL(req.MappingID, req.WebhookSecret); callback != "" {
			botBody["callback_url"] = callback
		}
	}

	var bot groupMeEnvelope[struct {
		Bot groupMeBot `json:"bot"`
	}]
	err = d.caller.call(ctx, "groupme create bot", http.MethodPost, d.endpoint("/bots"), map[string]any{
		"bot": botBody,
	}, &bot)
	if err != nil {
		if destroyErr := d.destroyGroup(ctx, group.Response.ID); destroyErr != nil {
			log.Warn().Err(destroyErr).Str("groupId", group.Response.ID).Msg("failed to clean up groupme group")
		}
		return nil, err
	}

	log.Info().
		Str("mappingId", req.MappingID).
		Str("groupId", group.Response.ID).
		Str("botId", bot.Response.Bot.BotID).
		Msg("groupme group provisioned")

	groupName := group.Response.Name
	if groupName == "" {
		groupName = name
	}
	return &Provisioned{
		ExternalGroupID:   group.Response.ID,
		ExternalGroupName: groupName,
		BotID:             bot.Response.Bot.BotID,
	}, nil
}

func (d *GroupMeDriver) Send(ctx context.Context, mapping *model.ChannelMapping, msg OutboundMessage) error {
	if mapping.BotID == nil || *mapping.BotID == "" {
		return apperrors.NotConfigured("GroupMe bot for mapping " + mapping.ID)
	}

	return d.caller.call(ctx, "groupme post", http.MethodPost, d.cfg.APIURL+"/bots/post", map[string]any{
		"bot_id": *mapping.BotID,
		"text":   FormatGroupMeText(msg),
	}, nil)
}

func (d *GroupMeDriver) Archive(ctx context.Context, mapping *model.ChannelMapping) error {
	if d.cfg.AccessToken == "" {
		return apperrors.NotConfigured("GroupMe access token")
	}
	return d.destroyGroup(ctx, mapping.ExternalGroupID)
}

func (d *GroupMeDriver) destroyGroup(ctx context.Context, groupID string) error {
	path := "/groups/" + url.PathEscape(groupID) + "/destroy"
	return d.caller.call(ctx, "groupme destroy group", http.MethodPost, d.endpoint(path), nil, nil)
}

func (d *GroupMeDriver) endpoint(path string) string {
	return d.cfg.APIURL + path + "?token=" + url.QueryEscape(d.cfg.AccessToken)
}

// FormatGroupMeText renders "[sender] text", prefixed with the channel name
// when several channels share the group, within GroupMe's length limit.
func FormatGroupMeText(msg OutboundMessage) string {
	var b strings.Builder
	if msg.MultiChannel && msg.ChannelName != "" {
		b.WriteString("#")
		b.WriteString(msg.ChannelName)
		b.WriteString(" ")
	}
	if msg.SenderName != "" {
		b.WriteString("[")
		b.WriteString(msg.SenderName)
		b.WriteString("] ")
	}
	b.WriteString(msg.Text)
	return util.Truncate(b.String(), groupMeMaxTextLength)
}
