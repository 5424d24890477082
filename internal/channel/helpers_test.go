package channel_test

import (
	"context"
	"sync"

	"github.com/memohai/lexdesk/internal/channel"
)

const testChannelType = channel.ChannelType("test")

type sentMessage struct {
	Target string
	Text   string
}

type fakeAdapter struct {
	channelType channel.ChannelType

	mu       sync.Mutex
	sent     []sentMessage
	typing   []string
	sendErrs []error
}

func newFakeAdapter(ct channel.ChannelType) *fakeAdapter {
	return &fakeAdapter{channelType: ct}
}

func (a *fakeAdapter) Type() channel.ChannelType { return a.channelType }

func (a *fakeAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{Type: a.channelType, DisplayName: "Test"}
}

func (a *fakeAdapter) Send(_ context.Context, target, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.sendErrs) > 0 {
		err := a.sendErrs[0]
		a.sendErrs = a.sendErrs[1:]
		if err != nil {
			return err
		}
	}
	a.sent = append(a.sent, sentMessage{Target: target, Text: text})
	return nil
}

func (a *fakeAdapter) Typing(_ context.Context, target string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.typing = append(a.typing, target)
	return nil
}
