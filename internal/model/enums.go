package model

import "strings"

type Platform string

const (
	PlatformGroupMe Platform = "groupme"
	PlatformTeams   Platform = "teams"
)

// ParsePlatform accepts the platform name in any case.
func ParsePlatform(s string) (Platform, bool) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	return p, p.Valid()
}

func (p Platform) Valid() bool {
	switch p {
	case PlatformGroupMe, PlatformTeams:
		return true
	}
	return false
}

// SupportsChannelFanIn reports whether several local channels may share one
// mapping, each receiving inbound messages independently.
func (p Platform) SupportsChannelFanIn() bool {
	return p == PlatformTeams
}

// RequiresConversationReference reports whether outbound delivery needs a
// stored proactive-messaging reference.
func (p Platform) RequiresConversationReference() bool {
	return p == PlatformTeams
}

func (p Platform) DisplayName() string {
	switch p {
	case PlatformGroupMe:
		return "GroupMe"
	case PlatformTeams:
		return "Microsoft Teams"
	default:
		return string(p)
	}
}

type DeliveryStatus string

const (
	DeliveryStatusPending DeliveryStatus = "pending"
	DeliveryStatusSent    DeliveryStatus = "sent"
	DeliveryStatusFailed  DeliveryStatus = "failed"
	DeliveryStatusSkipped DeliveryStatus = "skipped"
	// DeliveryStatusRetrying marks a failed delivery claimed by a redelivery
	// sweep and not yet settled.
	DeliveryStatusRetrying DeliveryStatus = "retrying"
)

// MessageSourceLocal marks chat messages typed inside the application.
// Bridged messages carry the platform name as their source.
const MessageSourceLocal = "local"

// InboundKindSystem marks platform notices such as member joins.
const InboundKindSystem = "system"
