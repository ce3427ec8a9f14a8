package domain

import "context"

// ChannelStatus reports the runtime state of a messaging channel.
type ChannelStatus struct {
	ChannelID string `json:"channelId"`
	Kind      string `json:"kind"`
	Connected bool   `json:"connected"`
	Running   bool   `json:"running"`
	LastError string `json:"lastError,omitempty"`
}

// Channel is a messaging integration that feeds customer messages in
// and delivers replies out.
type Channel interface {
	// ID returns the integration identifier (e.g. "irc", "email").
	ID() string

	// Kind returns the customer-care channel it serves (ChannelChat, ChannelEmail, ...).
	Kind() string

	// Start connects and begins delivering inbound messages. It may block.
	Start(ctx context.Context) error

	// Stop disconnects.
	Stop(ctx context.Context) error

	// Send delivers a reply.
	Send(ctx context.Context, msg OutboundMessage) error

	// OnMessage registers the inbound handler.
	OnMessage(handler func(msg InboundMessage))
}
