package model

import (
	"encoding/json"
	"fmt"
)

type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type ConversationAccount struct {
	ID               string `json:"id"`
	Name             string `json:"name,omitempty"`
	ConversationType string `json:"conversationType,omitempty"`
	TenantID         string `json:"tenantId,omitempty"`
	IsGroup          bool   `json:"isGroup,omitempty"`
}

// ConversationReference is what the Bot Framework needs to message a
// conversation proactively. The service URL can change between turns.
type ConversationReference struct {
	ActivityID   string              `json:"activityId,omitempty"`
	User         *ChannelAccount     `json:"user,omitempty"`
	Bot          ChannelAccount      `json:"bot"`
	Conversation ConversationAccount `json:"conversation"`
	ChannelID    string              `json:"channelId"`
	ServiceURL   string              `json:"serviceUrl"`
	Locale       string              `json:"locale,omitempty"`
}

func (r *ConversationReference) Validate() error {
	if r.ServiceURL == "" {
		return fmt.Errorf("conversation reference: serviceUrl is empty")
	}
	if r.Conversation.ID == "" {
		return fmt.Errorf("conversation reference: conversation id is empty")
	}
	return nil
}

func (r *ConversationReference) MarshalString() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func ParseConversationReference(raw string) (*ConversationReference, error) {
	var ref ConversationReference
	if err := json.Unmarshal([]byte(raw), &ref); err != nil {
		return nil, fmt.Errorf("parse conversation reference: %w", err)
	}
	return &ref, nil
}
