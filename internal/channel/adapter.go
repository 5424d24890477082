package channel

import "context"

// Adapter delivers text and typing indicators on one platform. Targets are the
// platform-native part of an Address.
type Adapter interface {
	Type() ChannelType
	Descriptor() Descriptor
	Send(ctx context.Context, target, text string) error
	Typing(ctx context.Context, target string) error
}

// Descriptor holds read-only metadata for a registered channel type.
type Descriptor struct {
	Type             ChannelType
	DisplayName      string
	MaxMessageLength int
}
