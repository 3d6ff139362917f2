// Package teamsbot relays Microsoft Teams conversations to the bridge server
// and posts the server's outbound messages back into Teams.
package teamsbot

import (
	"regexp"
	"strings"
	"time"

	"github.com/cobra-poc/messaging-bridge/internal/cobraapi"
	"github.com/cobra-poc/messaging-bridge/internal/model"
)

const (
	ActivityTypeMessage            = "message"
	ActivityTypeConversationUpdate = "conversationUpdate"

	roleBot          = "bot"
	botAccountPrefix = "28:"
)

// Activity is the subset of a Bot Framework activity the relay reads.
type Activity struct {
	Type         string                    `json:"type"`
	ID           string                    `json:"id"`
	Timestamp    time.Time                 `json:"timestamp"`
	ServiceURL   string                    `json:"serviceUrl"`
	ChannelID    string                    `json:"channelId"`
	From         Account                   `json:"from"`
	Conversation model.ConversationAccount `json:"conversation"`
	Recipient    Account                   `json:"recipient"`
	Text         string                    `json:"text"`
	Locale       string                    `json:"locale,omitempty"`
	Attachments  []Attachment              `json:"attachments,omitempty"`
	Entities     []Entity                  `json:"entities,omitempty"`
	ChannelData  *ChannelData              `json:"channelData,omitempty"`
}

type Account struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

type Attachment struct {
	ContentType string `json:"contentType"`
	ContentURL  string `json:"contentUrl,omitempty"`
	Name        string `json:"name,omitempty"`
}

type Entity struct {
	Type      string   `json:"type"`
	Text      string   `json:"text,omitempty"`
	Mentioned *Account `json:"mentioned,omitempty"`
}

type ChannelData struct {
	Tenant *struct {
		ID string `json:"id"`
	} `json:"tenant,omitempty"`
}

func (a *Activity) tenantID() string {
	if a.Conversation.TenantID != "" {
		return a.Conversation.TenantID
	}
	if a.ChannelData != nil && a.ChannelData.Tenant != nil {
		return a.ChannelData.Tenant.ID
	}
	return ""
}

// FromBot is true for activities authored by this or any other bot.
func (a *Activity) FromBot() bool {
	if strings.EqualFold(a.From.Role, roleBot) {
		return true
	}
	return a.From.ID != "" && a.From.ID == a.Recipient.ID
}

// SentByApp reports whether the activity came from the bot registered as
// appID. Teams prefixes bot account ids with "28:".
func (a *Activity) SentByApp(appID string) bool {
	if appID == "" || a.From.ID == "" {
		return false
	}
	return strings.TrimPrefix(a.From.ID, botAccountPrefix) == strings.TrimPrefix(appID, botAccountPrefix)
}

// ReferenceFromActivity captures what a later proactive send needs to reach
// the activity's conversation.
func ReferenceFromActivity(a *Activity) *model.ConversationReference {
	ref := &model.ConversationReference{
		ActivityID:   a.ID,
		Bot:          model.ChannelAccount{ID: a.Recipient.ID, Name: a.Recipient.Name},
		Conversation: a.Conversation,
		ChannelID:    a.ChannelID,
		ServiceURL:   a.ServiceURL,
		Locale:       a.Locale,
	}
	if ref.Conversation.TenantID == "" {
		ref.Conversation.TenantID = a.tenantID()
	}
	if a.From.ID != "" {
		ref.User = &model.ChannelAccount{ID: a.From.ID, Name: a.From.Name}
	}
	return ref
}

var (
	atTagPattern      = regexp.MustCompile(`(?is)<at[^>]*>.*?</at>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// StripMentions removes @-mentions from text. Teams renders mentions as
// <at>Name</at>; the matching mention entities carry the same markup.
func StripMentions(text string, entities []Entity) string {
	for _, e := range entities {
		if e.Type == "mention" && e.Text != "" {
			text = strings.ReplaceAll(text, e.Text, " ")
		}
	}
	text = atTagPattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}

func firstImage(attachments []Attachment) string {
	for _, a := range attachments {
		if a.ContentURL != "" && strings.HasPrefix(a.ContentType, "image/") {
			return a.ContentURL
		}
	}
	return ""
}

func toPayload(a *Activity, text string, ref *model.ConversationReference) *cobraapi.WebhookPayload {
	ts := a.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &cobraapi.WebhookPayload{
		MessageID:             a.ID,
		ConversationID:        a.Conversation.ID,
		ConversationName:      a.Conversation.Name,
		TenantID:              a.tenantID(),
		SenderID:              a.From.ID,
		SenderName:            a.From.Name,
		Text:                  text,
		AttachmentURL:         firstImage(a.Attachments),
		Timestamp:             ts,
		ActivityType:          a.Type,
		IsFromBot:             a.FromBot(),
		ConversationReference: ref,
	}
}
