// Package platform talks to the external chat platforms a mapping can point
// at.
package platform

import (
	"context"
	"errors"
	"sort"

	apperrors "github.com/cobra-poc/messaging-bridge/internal/errors"
	"github.com/cobra-poc/messaging-bridge/internal/model"
)

// ErrMissingReference is returned by drivers that need a stored
// proactive-messaging reference to send.
var ErrMissingReference = errors.New("conversation reference not stored")

type ProvisionRequest struct {
	MappingID string
	EventID   string
	EventName string
	GroupName string
	// ExternalGroupID names an existing conversation for platforms where the
	// bridge cannot create one.
	ExternalGroupID string
	WebhookSecret   string
}

type Provisioned struct {
	ExternalGroupID   string
	ExternalGroupName string
	BotID             string
}

type OutboundMessage struct {
	SenderName   string
	Text         string
	EventName    string
	ChannelName  string
	MultiChannel bool
}

type Driver interface {
	Platform() model.Platform
	Provision(ctx context.Context, req ProvisionRequest) (*Provisioned, error)
	Send(ctx context.Context, mapping *model.ChannelMapping, msg OutboundMessage) error
	Archive(ctx context.Context, mapping *model.ChannelMapping) error
}

type Registry struct {
	drivers map[model.Platform]Driver
}

func NewRegistry(drivers ...Driver) *Registry {
	r := &Registry{drivers: make(map[model.Platform]Driver, len(drivers))}
	for _, d := range drivers {
		r.drivers[d.Platform()] = d
	}
	return r
}

func (r *Registry) Get(p model.Platform) (Driver, error) {
	d, ok := r.drivers[p]
	if !ok {
		return nil, apperrors.PlatformUnsupported(string(p))
	}
	return d, nil
}

func (r *Registry) Platforms() []model.Platform {
	platforms := make([]model.Platform, 0, len(r.drivers))
	for p := range r.drivers {
		platforms = append(platforms, p)
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })
	return platforms
}
